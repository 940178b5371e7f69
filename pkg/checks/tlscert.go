package checks

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// fallbackTLSVersions are tried in order until one handshake completes.
// The 1.1 and 1.0 fallbacks exist for parity with old server deployments.
var fallbackTLSVersions = []uint16{tls.VersionTLS12, tls.VersionTLS11, tls.VersionTLS10}

// newTLSConfig builds a config pinned to a single protocol version (zero
// keeps the library defaults) with full chain and hostname verification.
// A certificate that does not match the hostname is never accepted.
func newTLSConfig(hostname string, version uint16, roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		ServerName: hostname,
		MinVersion: version,
		MaxVersion: version,
		RootCAs:    roots,
	}
}

// TLSCertificateCheck validates the server certificate on one port, either
// through an implicit TLS handshake or through a plain SMTP session upgraded
// via STARTTLS. Protocol versions are tried per fallbackTLSVersions; the
// check succeeds as soon as any version completes with a valid chain and
// matching hostname.
type TLSCertificateCheck struct {
	name     string
	hostname string
	port     int
	starttls bool

	// RootCAs overrides the system trust store. Tests inject their own CA.
	RootCAs *x509.CertPool
}

// NewHTTPSCertificate creates the https_certificate probe
func NewHTTPSCertificate(hostname string, port int) *TLSCertificateCheck {
	return &TLSCertificateCheck{
		name:     "https_certificate",
		hostname: hostname,
		port:     port,
	}
}

// NewSMTPCertificate creates the smtp_certificate probe. The submission
// port speaks plain SMTP first and upgrades via STARTTLS; any other port is
// treated as implicit TLS.
func NewSMTPCertificate(hostname string, port, submissionPort int) *TLSCertificateCheck {
	return &TLSCertificateCheck{
		name:     "smtp_certificate",
		hostname: hostname,
		port:     port,
		starttls: port == submissionPort,
	}
}

func (c *TLSCertificateCheck) Name() string { return c.name }

func (c *TLSCertificateCheck) Check(ctx context.Context) error {
	var lastErr error
	for _, version := range fallbackTLSVersions {
		var err error
		if c.starttls {
			err = c.checkStartTLS(ctx, version)
		} else {
			err = c.checkImplicit(ctx, version)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		// A rejected certificate stays rejected at every protocol
		// version, so it ends the walk; any other failure moves on to
		// the next version.
		if isVerificationErr(err) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func isVerificationErr(err error) bool {
	if errors.Is(err, resilience.ErrCertificate) {
		return true
	}

	var (
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		authorityErr x509.UnknownAuthorityError
		verifyErr    *tls.CertificateVerificationError
	)
	return errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &verifyErr)
}

// checkImplicit performs a full TLS handshake on the raw connection
func (c *TLSCertificateCheck) checkImplicit(ctx context.Context, version uint16) error {
	dialer := &tls.Dialer{
		Config: newTLSConfig(c.hostname, version, c.RootCAs),
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.hostname, strconv.Itoa(c.port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// checkStartTLS opens a plain SMTP session and upgrades it before validating
func (c *TLSCertificateCheck) checkStartTLS(ctx context.Context, version uint16) error {
	client, err := dialSMTP(ctx, c.hostname, c.port)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("%w: server on port %d does not offer STARTTLS", resilience.ErrCertificate, c.port)
	}

	if err := client.StartTLS(newTLSConfig(c.hostname, version, c.RootCAs)); err != nil {
		return startTLSErr(err)
	}

	return client.Quit()
}

// dialSMTP opens a plain SMTP session, reads the greeting and sends EHLO.
// The context deadline is applied to the whole conversation.
func dialSMTP(ctx context.Context, host string, port int) (*smtp.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp greeting: %w", err)
	}

	if err := client.Hello(heloName); err != nil {
		client.Close()
		return nil, fmt.Errorf("ehlo: %w", err)
	}

	return client, nil
}

// startTLSErr maps a failed upgrade to its category: an SMTP-level refusal
// of an advertised STARTTLS is a certificate problem, while handshake
// failures already carry their own x509/tls error types.
func startTLSErr(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return fmt.Errorf("%w: starttls refused: %w", resilience.ErrCertificate, err)
	}
	return fmt.Errorf("starttls upgrade: %w", err)
}

var _ probe.Probe = (*TLSCertificateCheck)(nil)
