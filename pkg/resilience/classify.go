package resilience

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/textproto"
	"os"
	"syscall"
)

// Category is an operationally meaningful class of probe failure. The set is
// closed: metrics and logs only ever carry one of the values below.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryDNS            Category = "dns"
	CategoryAuth           Category = "auth"
	CategoryCert           Category = "cert"
	CategoryTimeout        Category = "timeout"
	CategoryCheckFailed    Category = "check_failed"
	CategoryCircuitBreaker Category = "circuit_breaker"
	CategoryUnknown        Category = "unknown"

	// CategoryNone labels successful executions on the probe counter.
	CategoryNone Category = "none"
)

// Categories returns every failure category, in a stable order. Used to
// pre-register metric label sets at startup.
func Categories() []Category {
	return []Category{
		CategoryNetwork,
		CategoryDNS,
		CategoryAuth,
		CategoryCert,
		CategoryTimeout,
		CategoryCheckFailed,
		CategoryCircuitBreaker,
		CategoryUnknown,
	}
}

// ErrCheckFailed marks a failure raised by a probe's own success predicate,
// as opposed to a transport or protocol error. Probes wrap it with context.
var ErrCheckFailed = errors.New("check assertion failed")

// ErrCertificate marks a TLS trust failure that carries no x509 error type,
// such as a refused STARTTLS upgrade. Probes wrap it with context.
var ErrCertificate = errors.New("certificate validation failed")

// Classifier maps probe failures to categories
type Classifier struct {
	enabled bool
}

// NewClassifier creates a classifier. With enabled false every cause is
// reported as CategoryUnknown.
func NewClassifier(enabled bool) *Classifier {
	return &Classifier{enabled: enabled}
}

// Classify maps a probe failure to its category. The decision rules are
// ordered: breaker short-circuit, timeout, DNS, certificate, SMTP auth,
// generic network, probe assertion, unknown.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	if !c.enabled {
		return CategoryUnknown
	}

	if errors.Is(err, ErrCircuitOpen) {
		return CategoryCircuitBreaker
	}

	if isTimeout(err) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}

	if isCertificate(err) {
		return CategoryCert
	}

	if isAuth(err) {
		return CategoryAuth
	}

	if isNetwork(err) {
		return CategoryNetwork
	}

	if errors.Is(err, ErrCheckFailed) {
		return CategoryCheckFailed
	}

	return CategoryUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isCertificate(err error) bool {
	if errors.Is(err, ErrCertificate) {
		return true
	}

	var (
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		authorityErr x509.UnknownAuthorityError
		rootsErr     x509.SystemRootsError
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
	)
	return errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &rootsErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr)
}

// isAuth recognizes SMTP authentication rejections. 535 is the canonical
// "authentication credentials invalid" reply; 530, 534 and 538 are the other
// credential-related refusals from RFC 4954.
func isAuth(err error) bool {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return false
	}
	switch protoErr.Code {
	case 530, 534, 535, 538:
		return true
	}
	return false
}

func isNetwork(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	// Transient SMTP replies (4xx) signal a server-side availability
	// problem rather than a broken check predicate.
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 400 && protoErr.Code < 500 {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
