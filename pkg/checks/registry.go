package checks

import (
	"github.com/jihwankim/mailprobe/pkg/config"
	"github.com/jihwankim/mailprobe/pkg/probe"
)

// All builds every configured probe in a stable order. The TCP reachability
// probes cover the four configured ports; the TLS and SMTP conversation
// probes target the hostname so certificate verification has a name to
// check against.
func All(cfg *config.Config, pinger Pinger) []probe.Probe {
	t := cfg.Target

	return []probe.Probe{
		NewMXDomain(t.MXDomain),
		NewMXTargetIP(t.MXDomain, t.ExpectedMXIP),
		NewPing(t.ServerIP, pinger),
		NewTCPPort("http_port", t.ServerIP, t.HTTPPort),
		NewTCPPort("https_port", t.ServerIP, t.HTTPSPort),
		NewTCPPort("mail_port", t.ServerIP, t.SMTPPort),
		NewTCPPort("smtp_port", t.ServerIP, t.SubmissionPort),
		NewHTTPSCertificate(t.Hostname, t.HTTPSPort),
		NewSMTPCertificate(t.Hostname, t.SubmissionPort, t.SubmissionPort),
		NewSMTPAuthenticated(t.Hostname, t.SubmissionPort, cfg.SMTP.Username, cfg.SMTP.Password),
		NewSMTPUnauthenticated(t.Hostname, t.SMTPPort, cfg.SMTP.FromAddress, cfg.SMTP.ToAddress),
	}
}
