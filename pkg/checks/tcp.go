package checks

import (
	"context"
	"net"
	"strconv"

	"github.com/jihwankim/mailprobe/pkg/probe"
)

// TCPPortCheck succeeds when a TCP connection to (ip, port) establishes
// within the context deadline. The connection is closed immediately.
type TCPPortCheck struct {
	name string
	addr string
}

// NewTCPPort creates a TCP reachability probe with the given probe name
func NewTCPPort(name, ip string, port int) *TCPPortCheck {
	return &TCPPortCheck{
		name: name,
		addr: net.JoinHostPort(ip, strconv.Itoa(port)),
	}
}

func (c *TCPPortCheck) Name() string { return c.name }

func (c *TCPPortCheck) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

var _ probe.Probe = (*TCPPortCheck)(nil)
