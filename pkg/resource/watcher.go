package resource

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jihwankim/mailprobe/pkg/config"
	"github.com/jihwankim/mailprobe/pkg/metrics"
	"github.com/jihwankim/mailprobe/pkg/reporting"
)

// Warning types published on the resource warnings gauge
const (
	WarningMemory  = "memory"
	WarningThreads = "threads"
)

// Sample is one observation of process resource usage
type Sample struct {
	MemoryMB float64  `json:"memory_mb"`
	Threads  int      `json:"threads"`
	Warnings []string `json:"warnings"`
}

// Watcher samples resident memory and worker count on a low-frequency loop,
// publishes them as gauges and raises advisory warning flags when a value
// exceeds its configured threshold. Warnings never disable a probe.
type Watcher struct {
	cfg     config.ResourceConfig
	metrics *metrics.Metrics
	logger  *reporting.Logger
	proc    *process.Process

	mu   sync.RWMutex
	last Sample
}

// NewWatcher creates a watcher for the current process
func NewWatcher(cfg config.ResourceConfig, m *metrics.Metrics, logger *reporting.Logger) (*Watcher, error) {
	if logger == nil {
		logger = reporting.Nop()
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process handle: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		proc:    proc,
		last:    Sample{Warnings: []string{}},
	}, nil
}

// Run samples until the context is cancelled. When the watcher is disabled
// it blocks without sampling so the caller's group shuts down uniformly.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	interval := w.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.sample()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

// sample takes one observation and publishes gauges and warning flags
func (w *Watcher) sample() {
	s := Sample{Warnings: []string{}}

	if info, err := w.proc.MemoryInfo(); err == nil {
		s.MemoryMB = float64(info.RSS) / (1024 * 1024)
	} else {
		w.logger.Debug("failed to sample process memory", "error", err.Error())
	}

	s.Threads = runtime.NumGoroutine()

	memWarn := w.cfg.MemoryWarningMB > 0 && s.MemoryMB > float64(w.cfg.MemoryWarningMB)
	threadWarn := w.cfg.ThreadWarningCount > 0 && s.Threads > w.cfg.ThreadWarningCount

	if memWarn {
		s.Warnings = append(s.Warnings, WarningMemory)
		w.logger.Warn("memory usage above threshold",
			"memory_mb", s.MemoryMB, "threshold_mb", w.cfg.MemoryWarningMB)
	}
	if threadWarn {
		s.Warnings = append(s.Warnings, WarningThreads)
		w.logger.Warn("worker count above threshold",
			"threads", s.Threads, "threshold", w.cfg.ThreadWarningCount)
	}

	w.metrics.SetMemoryUsageMB(s.MemoryMB)
	w.metrics.SetThreadCount(s.Threads)
	w.metrics.SetResourceWarning(WarningMemory, memWarn)
	w.metrics.SetResourceWarning(WarningThreads, threadWarn)

	w.mu.Lock()
	w.last = s
	w.mu.Unlock()
}

// Snapshot returns the most recent sample
func (w *Watcher) Snapshot() Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := w.last
	s.Warnings = append([]string{}, w.last.Warnings...)
	return s
}
