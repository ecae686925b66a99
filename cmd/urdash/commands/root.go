package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "urdash",
	Short: "urdash - BringYour provider location dashboard backend",
	Long: `urdash Unified CLI

Polls the BringYour provider-locations feed every hour, keeps 26h of
snapshots, and serves per-country provider counts with 1h/3h/6h/12h/24h
deltas to the dashboard.

Usage:
  go run ./cmd/urdash [command]

Examples:
  go run ./cmd/urdash serve
  go run ./cmd/urdash update
  go run ./cmd/urdash history --json
  go run ./cmd/urdash scheduler list`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
