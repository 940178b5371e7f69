package probe

import (
	"context"
	"time"

	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// Probe is one independently scheduled health check. Check either returns
// nil (success) or the cause of the failure. Implementations must honor the
// context deadline on every network operation and must not share connections
// across invocations.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a bare function to a named Probe
type CheckFunc func(ctx context.Context) error

type funcProbe struct {
	name string
	fn   CheckFunc
}

// New creates a probe from a name and a check function
func New(name string, fn CheckFunc) Probe {
	return &funcProbe{name: name, fn: fn}
}

func (p *funcProbe) Name() string { return p.name }

func (p *funcProbe) Check(ctx context.Context) error { return p.fn(ctx) }

// Status is a point-in-time view of one kernel, safe to hand to readers
// outside the probe worker.
type Status struct {
	Name                string                  `json:"name"`
	BreakerState        resilience.BreakerState `json:"-"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	TotalFailures       int                     `json:"total_failures"`
	LastCategory        resilience.Category     `json:"last_category,omitempty"`
	LastChecked         time.Time               `json:"last_checked"`
}

// Healthy reports whether the probe's breaker is not open
func (s Status) Healthy() bool {
	return s.BreakerState != resilience.StateOpen
}
