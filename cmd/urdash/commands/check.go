package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/urdash/pkg/config"
)

// checkCmd verifies the configured store
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the database connection",
	Long: `Loads configuration, opens the configured store, migrates it and pings it.

Example:
  go run ./cmd/urdash check
  DB_DRIVER=postgres go run ./cmd/urdash check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== urdash Store Check ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	defer a.Close()

	fmt.Printf("✅ Config loaded (ENV: %s)\n", a.cfg.Env)
	fmt.Printf("   Driver: %s\n", a.cfg.Database.Driver)
	fmt.Printf("   Target: %s\n\n", storeTarget(a.cfg.Database))

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := a.repo.Ping(ctx); err != nil {
		return fmt.Errorf("❌ Failed to ping database: %w", err)
	}
	fmt.Printf("✅ Ping successful (%v)\n", time.Since(start).Round(time.Microsecond))

	tracked, err := a.repo.TrackedCountries(ctx)
	if err != nil {
		return fmt.Errorf("❌ Failed to read current state: %w", err)
	}
	fmt.Printf("✅ %d tracked countries\n", len(tracked))

	fmt.Println("\n✅ All checks passed!")
	return nil
}

// storeTarget describes the store without leaking credentials
func storeTarget(cfg config.DatabaseConfig) string {
	if cfg.Driver != config.DriverPostgres {
		return cfg.Path
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "(unparseable DATABASE_URL)"
	}
	return u.Redacted()
}
