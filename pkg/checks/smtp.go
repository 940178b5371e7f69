package checks

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"

	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// heloName identifies the agent in EHLO commands
const heloName = "mailprobe"

// SMTPAuthCheck walks the full authenticated submission handshake: greeting,
// EHLO, STARTTLS upgrade when advertised, EHLO over TLS, AUTH, QUIT.
type SMTPAuthCheck struct {
	hostname string
	port     int
	username string
	password string

	// RootCAs overrides the system trust store. Tests inject their own CA.
	RootCAs *x509.CertPool
}

// NewSMTPAuthenticated creates the smtp_authenticated probe against the
// submission port.
func NewSMTPAuthenticated(hostname string, port int, username, password string) *SMTPAuthCheck {
	return &SMTPAuthCheck{
		hostname: hostname,
		port:     port,
		username: username,
		password: password,
	}
}

func (c *SMTPAuthCheck) Name() string { return "smtp_authenticated" }

func (c *SMTPAuthCheck) Check(ctx context.Context) error {
	client, err := dialSMTP(ctx, c.hostname, c.port)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		// StartTLS re-issues EHLO over the upgraded connection
		if err := client.StartTLS(newTLSConfig(c.hostname, 0, c.RootCAs)); err != nil {
			return startTLSErr(err)
		}
	}

	auth := smtp.PlainAuth("", c.username, c.password, c.hostname)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	return client.Quit()
}

// SMTPEnvelopeCheck walks an unauthenticated delivery handshake on the SMTP
// port: greeting, EHLO, opportunistic STARTTLS, MAIL FROM, RCPT TO, RSET,
// QUIT. Success means the server accepts the test envelope; no message data
// is ever sent.
type SMTPEnvelopeCheck struct {
	hostname string
	port     int
	from     string
	to       string

	// RootCAs overrides the system trust store. Tests inject their own CA.
	RootCAs *x509.CertPool
}

// NewSMTPUnauthenticated creates the smtp_unauthenticated probe
func NewSMTPUnauthenticated(hostname string, port int, from, to string) *SMTPEnvelopeCheck {
	return &SMTPEnvelopeCheck{
		hostname: hostname,
		port:     port,
		from:     from,
		to:       to,
	}
}

func (c *SMTPEnvelopeCheck) Name() string { return "smtp_unauthenticated" }

func (c *SMTPEnvelopeCheck) Check(ctx context.Context) error {
	client, err := dialSMTP(ctx, c.hostname, c.port)
	if err != nil {
		return err
	}
	defer client.Close()

	// STARTTLS is opportunistic here: attempted when advertised, but its
	// absence on port 25 is not a failure.
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(newTLSConfig(c.hostname, 0, c.RootCAs)); err != nil {
			return startTLSErr(err)
		}
	}

	if err := client.Mail(c.from); err != nil {
		return envelopeErr("MAIL FROM", err)
	}
	if err := client.Rcpt(c.to); err != nil {
		return envelopeErr("RCPT TO", err)
	}

	if err := client.Reset(); err != nil {
		return fmt.Errorf("rset: %w", err)
	}
	return client.Quit()
}

// envelopeErr maps an envelope rejection to its category: a permanent 5xx
// means the server refuses the test addresses outright, a transient 4xx is
// treated as a server availability problem.
func envelopeErr(stage string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return fmt.Errorf("%w: %s rejected: %v", resilience.ErrCheckFailed, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

var (
	_ probe.Probe = (*SMTPAuthCheck)(nil)
	_ probe.Probe = (*SMTPEnvelopeCheck)(nil)
)
