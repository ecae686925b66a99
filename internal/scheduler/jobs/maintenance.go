package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/urdash/internal/location"
	"github.com/wonny/urdash/internal/scheduler"
	"github.com/wonny/urdash/pkg/logger"
)

// MaintenanceJob refreshes planner statistics on the location store
type MaintenanceJob struct {
	repo     location.Repository
	schedule string
	logger   *logger.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(repo location.Repository, schedule string, log *logger.Logger) *MaintenanceJob {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	return &MaintenanceJob{
		repo:     repo,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Schedule returns the cron schedule (daily at 3 AM UTC)
func (j *MaintenanceJob) Schedule() string {
	return j.schedule
}

// Run executes the maintenance
func (j *MaintenanceJob) Run(ctx context.Context, report scheduler.StateFunc) error {
	j.logger.Debug("Starting scheduled database maintenance")

	report(scheduler.StatePersisting)
	if err := j.repo.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	j.logger.Info("Database maintenance completed")
	return nil
}
