package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/urdash/internal/location"
	"github.com/wonny/urdash/internal/scheduler"
	"github.com/wonny/urdash/pkg/logger"
)

// LocationUpdateJob polls the provider-locations feed and refreshes deltas
// ⭐ SSOT: the location snapshot cadence is only defined by this job
type LocationUpdateJob struct {
	updater  *location.Updater
	schedule string
	logger   *logger.Logger
}

// NewLocationUpdateJob creates a new location update job
func NewLocationUpdateJob(updater *location.Updater, schedule string, log *logger.Logger) *LocationUpdateJob {
	if schedule == "" {
		schedule = "@aligned 1h"
	}
	return &LocationUpdateJob{
		updater:  updater,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *LocationUpdateJob) Name() string {
	return "location_update"
}

// Schedule returns the schedule (top of every hour by default)
func (j *LocationUpdateJob) Schedule() string {
	return j.schedule
}

// RunOnStart makes the first cycle run as soon as the scheduler starts
func (j *LocationUpdateJob) RunOnStart() bool {
	return true
}

// Run executes one snapshot cycle
func (j *LocationUpdateJob) Run(ctx context.Context, report scheduler.StateFunc) error {
	j.logger.Info("Starting scheduled location update")

	summary, err := j.updater.RunCycle(ctx, func(p location.Phase) {
		switch p {
		case location.PhaseFetching:
			report(scheduler.StateFetching)
		case location.PhasePersisting:
			report(scheduler.StatePersisting)
		}
	})
	if err != nil {
		return fmt.Errorf("location cycle: %w", err)
	}

	if summary.FetchFailed {
		j.logger.WithField("countries", summary.Countries).Warn("Upstream unavailable, tracked countries zero-filled")
	}

	return nil
}
