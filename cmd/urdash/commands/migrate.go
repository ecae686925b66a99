package commands

import (
	"github.com/spf13/cobra"
)

// migrateCmd creates or upgrades the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and add missing columns",
	Long: `Creates the snapshots and current_locations tables if needed and adds
any delta columns missing from older databases. Existing rows are kept.

Example:
  go run ./cmd/urdash migrate
  DB_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/urdash migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	// newApp migrates on open
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	PrintSuccess("Schema is up to date (" + a.cfg.Database.Driver + ")")
	return nil
}
