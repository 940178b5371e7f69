package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/mailprobe/pkg/checks"
	"github.com/jihwankim/mailprobe/pkg/config"
	"github.com/jihwankim/mailprobe/pkg/resilience"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Args:  cobra.NoArgs,
	Short: "Run every probe once and report the results",
	Long: `Executes each configured probe a single time, prints a pass/fail
line per probe and exits non-zero if any probe fails. Useful for verifying
a configuration before deploying the agent.`,
	RunE: runCheckOnce,
}

func runCheckOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	classifier := resilience.NewClassifier(cfg.Probing.Categorization)

	failed := 0
	for _, p := range checks.All(cfg, nil) {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Probing.Interval)
		start := time.Now()
		err := p.Check(ctx)
		duration := time.Since(start).Round(time.Millisecond)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("FAIL  %-22s %-16s %v (%v)\n", p.Name(), classifier.Classify(err), err, duration)
			continue
		}
		fmt.Printf("ok    %-22s (%v)\n", p.Name(), duration)
	}

	if failed > 0 {
		return fmt.Errorf("%d probe(s) failed", failed)
	}

	fmt.Println("all probes passed")
	return nil
}
