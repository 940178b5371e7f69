package probe

import (
	"context"
	"sync"
	"time"

	"github.com/jihwankim/mailprobe/pkg/metrics"
	"github.com/jihwankim/mailprobe/pkg/reporting"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// KernelConfig contains the collaborators and tuning for a probe kernel
type KernelConfig struct {
	Probe      Probe
	Breaker    *resilience.Breaker
	Backoff    *resilience.Backoff
	Classifier *resilience.Classifier
	Metrics    *metrics.Metrics
	Logger     *reporting.Logger

	// CheckTimeout bounds a single check. It is used as given, with no
	// default and no upper limit; the run command sets it to the probe
	// interval.
	CheckTimeout time.Duration

	// Verbose logs successful checks at info level instead of debug
	Verbose bool
}

// Kernel coordinates one probe: it runs the check through the circuit
// breaker, classifies failures, updates metrics and counters, and picks the
// next sleep via the backoff calculator. One check is in flight at a time.
type Kernel struct {
	probe      Probe
	breaker    *resilience.Breaker
	backoff    *resilience.Backoff
	classifier *resilience.Classifier
	metrics    *metrics.Metrics
	logger     *reporting.Logger

	checkTimeout time.Duration
	verbose      bool

	mu                  sync.RWMutex
	consecutiveFailures int
	totalFailures       int
	lastCategory        resilience.Category
	lastChecked         time.Time
}

// NewKernel creates a kernel for the given probe
func NewKernel(cfg KernelConfig) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = reporting.Nop()
	}

	return &Kernel{
		probe:        cfg.Probe,
		breaker:      cfg.Breaker,
		backoff:      cfg.Backoff,
		classifier:   cfg.Classifier,
		metrics:      cfg.Metrics,
		logger:       logger.WithField("probe", cfg.Probe.Name()),
		checkTimeout: cfg.CheckTimeout,
		verbose:      cfg.Verbose,
	}
}

// Name returns the probe name
func (k *Kernel) Name() string {
	return k.probe.Name()
}

// Run executes the probe loop until the context is cancelled. The first
// check waits one jittered base interval so that probes started together do
// not fire in lockstep.
func (k *Kernel) Run(ctx context.Context) {
	k.metrics.InitProbe(k.probe.Name())

	timer := time.NewTimer(k.backoff.Next(0))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Debug("probe worker stopping")
			return
		case <-timer.C:
		}

		k.runOnce(ctx)

		timer.Reset(k.backoff.Next(k.ConsecutiveFailures()))
	}
}

// runOnce performs a single breaker-wrapped check and records the outcome
func (k *Kernel) runOnce(ctx context.Context) {
	start := time.Now()

	err := k.breaker.Call(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, k.checkTimeout)
		defer cancel()
		return k.probe.Check(checkCtx)
	})

	duration := time.Since(start)
	k.recordOutcome(err, duration)
}

// recordOutcome updates counters, metrics and logs for one execution.
// Exactly one probe counter increment is emitted per call.
func (k *Kernel) recordOutcome(err error, duration time.Duration) {
	name := k.probe.Name()

	k.mu.Lock()
	k.lastChecked = time.Now()

	if err == nil {
		k.consecutiveFailures = 0
		k.lastCategory = resilience.CategoryNone
		k.mu.Unlock()

		k.metrics.RecordSuccess(name, duration)
		k.metrics.SetBreakerState(name, k.breaker.State())

		if k.verbose {
			k.logger.Info("probe check succeeded", "duration_ms", duration.Milliseconds())
		} else {
			k.logger.Debug("probe check succeeded", "duration_ms", duration.Milliseconds())
		}
		return
	}

	category := k.classifier.Classify(err)
	k.consecutiveFailures++
	k.totalFailures++
	consecutive := k.consecutiveFailures
	total := k.totalFailures
	k.lastCategory = category
	k.mu.Unlock()

	k.metrics.RecordFailure(name, category, duration)
	k.metrics.SetBreakerState(name, k.breaker.State())

	k.logger.Warn("probe check failed",
		"error", err.Error(),
		"error_type", string(category),
		"duration_ms", duration.Milliseconds(),
		"consecutive_failures", consecutive,
		"total_failures", total,
	)
}

// ConsecutiveFailures returns the current consecutive failure count
func (k *Kernel) ConsecutiveFailures() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.consecutiveFailures
}

// Status returns a point-in-time view of the kernel
func (k *Kernel) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return Status{
		Name:                k.probe.Name(),
		BreakerState:        k.breaker.State(),
		ConsecutiveFailures: k.consecutiveFailures,
		TotalFailures:       k.totalFailures,
		LastCategory:        k.lastCategory,
		LastChecked:         k.lastChecked,
	}
}
