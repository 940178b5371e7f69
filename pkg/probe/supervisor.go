package probe

import (
	"context"
	"sync"
	"time"

	"github.com/jihwankim/mailprobe/pkg/reporting"
)

// Supervisor owns the set of probe kernels. It starts one worker per kernel,
// broadcasts cancellation on shutdown, and waits a bounded grace period for
// the workers to exit before abandoning stragglers.
type Supervisor struct {
	kernels []*Kernel
	logger  *reporting.Logger
	grace   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewSupervisor creates a supervisor over the given kernels
func NewSupervisor(kernels []*Kernel, logger *reporting.Logger, grace time.Duration) *Supervisor {
	if logger == nil {
		logger = reporting.Nop()
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}

	return &Supervisor{
		kernels: kernels,
		logger:  logger,
		grace:   grace,
	}
}

// Start launches one worker per kernel. It is a no-op when already started.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, k := range s.kernels {
		s.wg.Add(1)
		go func(k *Kernel) {
			defer s.wg.Done()
			k.Run(workerCtx)
		}(k)
	}

	s.logger.Info("probe supervisor started", "probes", len(s.kernels))
}

// Stop broadcasts cancellation and waits up to the grace period for all
// workers to exit. Workers that overrun the grace are abandoned after
// logging; they hold no shared resources beyond the metrics registry.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all probe workers stopped")
	case <-time.After(s.grace):
		s.logger.Warn("probe workers did not stop within grace period, abandoning", "grace", s.grace.String())
	}
}

// Run starts the workers and blocks until the context is cancelled, then
// performs the graceful stop. Shaped for use under an errgroup.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Snapshot returns a read-only view of every kernel's state
func (s *Supervisor) Snapshot() []Status {
	statuses := make([]Status, 0, len(s.kernels))
	for _, k := range s.kernels {
		statuses = append(statuses, k.Status())
	}
	return statuses
}
