package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// updateCmd runs a single location cycle
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one snapshot cycle now",
	Long: `Fetches the provider-locations feed, writes a snapshot, refreshes the
deltas and purges expired history, exactly like one scheduled cycle.

Example:
  go run ./cmd/urdash update`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	summary, err := a.updater.RunCycle(ctx, nil)
	if err != nil {
		PrintError(fmt.Sprintf("Cycle failed: %v", err))
		return err
	}

	PrintDoubleSeparator()
	fmt.Printf("  Snapshot  : %s\n", time.UnixMilli(summary.Timestamp).UTC().Format(time.RFC3339))
	fmt.Printf("  Countries : %d\n", summary.Countries)
	fmt.Printf("  Purged    : %d\n", summary.Purged)
	PrintDoubleSeparator()

	if summary.FetchFailed {
		PrintWarning("Upstream unavailable, tracked countries were zero-filled")
	}
	PrintSuccess(fmt.Sprintf("Cycle completed in %.2fs", time.Since(start).Seconds()))
	return nil
}
