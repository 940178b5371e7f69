package checks

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// Pinger issues a single ICMP echo within the context deadline. The default
// implementation shells out to the OS ping tool; raw-socket implementations
// can be swapped in where the process has the needed capability.
type Pinger interface {
	Ping(ctx context.Context, host string) error
}

// ExecPinger runs the platform ping tool for one echo request
type ExecPinger struct{}

func (ExecPinger) Ping(ctx context.Context, host string) error {
	cmd := exec.CommandContext(ctx, "ping", pingArgs(ctx, host)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ping to %s: %v", resilience.ErrCheckFailed, host, err)
	}
	return nil
}

// pingArgs builds one-shot arguments for the platform ping flavor. The
// count flag and the unit of the timeout flag differ per platform.
func pingArgs(ctx context.Context, host string) []string {
	seconds := 5
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := int(time.Until(deadline).Seconds()); remaining >= 1 {
			seconds = remaining
		} else {
			seconds = 1
		}
	}

	switch runtime.GOOS {
	case "windows":
		return []string{"-n", "1", "-w", fmt.Sprintf("%d", seconds*1000), host}
	case "darwin":
		return []string{"-c", "1", "-t", fmt.Sprintf("%d", seconds), host}
	default:
		return []string{"-c", "1", "-W", fmt.Sprintf("%d", seconds), host}
	}
}

// PingCheck succeeds when one ICMP echo to the server IP completes
type PingCheck struct {
	host   string
	pinger Pinger
}

// NewPing creates the ip_ping probe
func NewPing(host string, pinger Pinger) *PingCheck {
	if pinger == nil {
		pinger = ExecPinger{}
	}
	return &PingCheck{host: host, pinger: pinger}
}

func (c *PingCheck) Name() string { return "ip_ping" }

func (c *PingCheck) Check(ctx context.Context) error {
	return c.pinger.Ping(ctx, c.host)
}

var _ probe.Probe = (*PingCheck)(nil)
