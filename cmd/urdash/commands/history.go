package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/urdash/internal/location"
)

// historyCmd prints the current-state view
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show provider counts and deltas per country",
	Long: `Prints the current-state view, largest countries first.
With --json the exact /api/locations/history payload is printed.

Example:
  go run ./cmd/urdash history
  go run ./cmd/urdash history --json --limit 0`,
	RunE: runHistory,
}

var (
	historyJSON  bool
	historyLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the API payload")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 25, "max rows in table output (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.updater.History(ctx)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"history": history})
	}

	views := make([]location.LocationView, 0, len(history))
	for _, v := range history {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].ProviderCount != views[j].ProviderCount {
			return views[i].ProviderCount > views[j].ProviderCount
		}
		return views[i].Name < views[j].Name
	})
	if historyLimit > 0 && len(views) > historyLimit {
		views = views[:historyLimit]
	}

	widths := []int{24, 4, 9, 8, 8, 8, 8, 8}
	PrintTableHeader([]string{"Country", "Code", "Providers", "1h", "3h", "6h", "12h", "24h"}, widths)
	for _, v := range views {
		PrintTableRow([]string{
			v.Name,
			v.CountryCode,
			strconv.FormatInt(v.ProviderCount, 10),
			formatDelta(v.Delta1h),
			formatDelta(v.Delta3h),
			formatDelta(v.Delta6h),
			formatDelta(v.Delta12h),
			formatDelta(v.Delta24h),
		}, widths)
	}

	fmt.Printf("\n%d of %d countries\n", len(views), len(history))
	return nil
}
