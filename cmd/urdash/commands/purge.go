package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// purgeCmd deletes expired snapshots
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete snapshots older than the retention window",
	Long: `Deletes snapshots older than LOCATION_RETENTION (26h by default).
Running it repeatedly is harmless.

Example:
  go run ./cmd/urdash purge`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.updater.Purge(ctx, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Purged %d snapshot rows", n))
	return nil
}
