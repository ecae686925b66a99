package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Inspect and run scheduled jobs",
	Long: `Lists registered jobs or runs one immediately.

Registered jobs:
- location_update: top of every hour (LOCATION_SCHEDULE)
- database_maintenance: daily at 3 AM UTC (MAINTENANCE_SCHEDULE)

Subcommands:
  list    - registered jobs and their next run
  run     - run a job now and wait for it

Example:
  go run ./cmd/urdash scheduler list
  go run ./cmd/urdash scheduler run location_update`,
}

var (
	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerRun,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	stats := sched.GetJobStats()
	widths := []int{24, 16, 25}
	PrintTableHeader([]string{"Job", "Schedule", "Next run (UTC)"}, widths)
	for _, name := range sched.GetAllJobs() {
		s := stats[name]
		next := ""
		if s.NextRun != nil {
			next = s.NextRun.UTC().Format(time.RFC3339)
		}
		PrintTableRow([]string{name, s.Schedule, next}, widths)
	}
	return nil
}

func runSchedulerRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	name := args[0]
	start := time.Now()
	if err := sched.RunNow(ctx, name); err != nil {
		PrintError(fmt.Sprintf("%s failed: %v", name, err))
		return err
	}

	PrintSuccess(fmt.Sprintf("%s completed in %.2fs", name, time.Since(start).Seconds()))
	return nil
}
