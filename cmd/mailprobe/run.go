package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/mailprobe/pkg/checks"
	"github.com/jihwankim/mailprobe/pkg/config"
	"github.com/jihwankim/mailprobe/pkg/metrics"
	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/reporting"
	"github.com/jihwankim/mailprobe/pkg/resilience"
	"github.com/jihwankim/mailprobe/pkg/resource"
	"github.com/jihwankim/mailprobe/pkg/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run the monitoring agent",
	Long: `Starts all probe workers, the resource watcher and the metrics
exposition server, and runs until SIGINT or SIGTERM.`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Info("mailprobe starting",
		"version", version,
		"target", cfg.Target.Hostname,
		"interval", cfg.Probing.Interval.String(),
	)

	m := metrics.New()

	supervisor := probe.NewSupervisor(buildKernels(cfg, m, logger), logger, cfg.Framework.ShutdownGrace)

	watcher, err := resource.NewWatcher(cfg.Resources, m, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Metrics.Port, m.Registry(), supervisor, watcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("mailprobe stopped")
	return nil
}

// buildKernels wires one kernel per configured probe. Every probe gets its
// own breaker and backoff calculator; the classifier is shared.
func buildKernels(cfg *config.Config, m *metrics.Metrics, logger *reporting.Logger) []*probe.Kernel {
	classifier := resilience.NewClassifier(cfg.Probing.Categorization)

	probes := checks.All(cfg, nil)
	kernels := make([]*probe.Kernel, 0, len(probes))

	for _, p := range probes {
		kernels = append(kernels, probe.NewKernel(probe.KernelConfig{
			Probe:        p,
			Breaker:      resilience.NewBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout),
			Backoff:      resilience.NewBackoff(cfg.BackoffBase(), cfg.Backoff.MaxInterval, cfg.Backoff.Multiplier, cfg.Backoff.MaxFailures),
			Classifier:   classifier,
			Metrics:      m,
			Logger:       logger,
			CheckTimeout: cfg.Probing.Interval,
			Verbose:      cfg.Framework.EnhancedLogging,
		}))
	}

	return kernels
}

func newLogger(cfg *config.Config) *reporting.Logger {
	level := reporting.LogLevel(cfg.Framework.LogLevel)
	if verbose || cfg.Framework.EnhancedLogging {
		level = reporting.LogLevelDebug
	}

	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  level,
		Format: reporting.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})
}
