package checks

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

const resolvConfPath = "/etc/resolv.conf"

// dnsResolver issues MX and address queries against one upstream resolver.
// Every query opens its own exchange; nothing is cached between checks.
type dnsResolver struct {
	client *dns.Client

	// addr is the "host:port" of the resolver. Resolved from
	// /etc/resolv.conf on first use when empty; tests inject their own.
	addr string
}

func (r *dnsResolver) resolverAddr() (string, error) {
	if r.addr != "" {
		return r.addr, nil
	}

	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", resolvConfPath, err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", resolvConfPath)
	}

	r.addr = net.JoinHostPort(conf.Servers[0], conf.Port)
	return r.addr, nil
}

// query runs one exchange and normalizes negative responses to *net.DNSError
func (r *dnsResolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	addr, err := r.resolverAddr()
	if err != nil {
		return nil, err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, addr)
	if err != nil {
		return nil, fmt.Errorf("dns exchange for %s: %w", name, err)
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, &net.DNSError{
			Err:        dns.RcodeToString[resp.Rcode],
			Name:       name,
			Server:     addr,
			IsNotFound: resp.Rcode == dns.RcodeNameError,
		}
	}

	return resp.Answer, nil
}

// lookupMX returns the MX target hostnames for a domain
func (r *dnsResolver) lookupMX(ctx context.Context, domain string) ([]string, error) {
	answers, err := r.query(ctx, domain, dns.TypeMX)
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, rr := range answers {
		if mx, ok := rr.(*dns.MX); ok {
			targets = append(targets, mx.Mx)
		}
	}
	return targets, nil
}

// lookupAddrs returns the address records for a host, A or AAAA depending
// on the address family of the expected IP.
func (r *dnsResolver) lookupAddrs(ctx context.Context, host string, v4 bool) ([]net.IP, error) {
	qtype := dns.TypeA
	if !v4 {
		qtype = dns.TypeAAAA
	}

	answers, err := r.query(ctx, host, qtype)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, rr := range answers {
		switch a := rr.(type) {
		case *dns.A:
			ips = append(ips, a.A)
		case *dns.AAAA:
			ips = append(ips, a.AAAA)
		}
	}
	return ips, nil
}

// MXDomainCheck succeeds when the MX domain resolves to a non-empty MX set
type MXDomainCheck struct {
	domain   string
	resolver *dnsResolver
}

// NewMXDomain creates the dns_mx_domain probe
func NewMXDomain(domain string) *MXDomainCheck {
	return &MXDomainCheck{
		domain:   domain,
		resolver: &dnsResolver{client: new(dns.Client)},
	}
}

func (c *MXDomainCheck) Name() string { return "dns_mx_domain" }

func (c *MXDomainCheck) Check(ctx context.Context) error {
	targets, err := c.resolver.lookupMX(ctx, c.domain)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no MX records for %s", resilience.ErrCheckFailed, c.domain)
	}
	return nil
}

// MXTargetIPCheck succeeds when every MX target of the domain resolves to
// exactly the expected IP.
type MXTargetIPCheck struct {
	domain     string
	expectedIP net.IP
	resolver   *dnsResolver
}

// NewMXTargetIP creates the dns_mx_ip probe
func NewMXTargetIP(domain, expectedIP string) *MXTargetIPCheck {
	return &MXTargetIPCheck{
		domain:     domain,
		expectedIP: net.ParseIP(expectedIP),
		resolver:   &dnsResolver{client: new(dns.Client)},
	}
}

func (c *MXTargetIPCheck) Name() string { return "dns_mx_ip" }

func (c *MXTargetIPCheck) Check(ctx context.Context) error {
	targets, err := c.resolver.lookupMX(ctx, c.domain)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no MX records for %s", resilience.ErrCheckFailed, c.domain)
	}

	v4 := c.expectedIP.To4() != nil
	var missing []string

	for _, target := range targets {
		ips, err := c.resolver.lookupAddrs(ctx, target, v4)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			missing = append(missing, target)
			continue
		}
		for _, ip := range ips {
			if !ip.Equal(c.expectedIP) {
				return fmt.Errorf("%w: MX target %s resolves to %s, expected %s",
					resilience.ErrCheckFailed, target, ip, c.expectedIP)
			}
		}
	}

	if len(missing) > 0 {
		return &net.DNSError{
			Err:        "no address records",
			Name:       missing[0],
			IsNotFound: true,
		}
	}

	return nil
}

var (
	_ probe.Probe = (*MXDomainCheck)(nil)
	_ probe.Probe = (*MXTargetIPCheck)(nil)
)
