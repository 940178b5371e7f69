package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "mailprobe",
	Short: "External health monitoring agent for an email server",
	Long: `Mailprobe continuously probes one email server from an external vantage
point: DNS MX records, TCP reachability, ICMP, TLS certificates and full
SMTP conversations. Results are published as Prometheus metrics together
with a composite health endpoint.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (environment variables always win)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - checkCmd in check.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
