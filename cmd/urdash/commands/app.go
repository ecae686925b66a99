package commands

import (
	"context"
	"fmt"

	"github.com/wonny/urdash/internal/external/bringyour"
	"github.com/wonny/urdash/internal/location"
	"github.com/wonny/urdash/internal/scheduler"
	"github.com/wonny/urdash/internal/scheduler/jobs"
	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/database"
	"github.com/wonny/urdash/pkg/httputil"
	"github.com/wonny/urdash/pkg/logger"
)

// app holds the wiring shared by every command
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	repo    location.Repository
	fetcher *bringyour.Client
	updater *location.Updater
}

// newApp loads config, opens and migrates the store and builds the updater.
// Config and data directory failures are fatal.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	httpClient := httputil.New(cfg, log)
	fetcher := bringyour.NewClient(httpClient, cfg.Upstream, log)
	updater := location.NewUpdater(repo, fetcher, cfg.Location, log)

	log.WithFields(map[string]interface{}{
		"driver": cfg.Database.Driver,
		"env":    cfg.Env,
	}).Debug("Application initialized")

	return &app{
		cfg:     cfg,
		log:     log,
		repo:    repo,
		fetcher: fetcher,
		updater: updater,
	}, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (location.Repository, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return location.NewPostgresRepository(db.Pool, cfg.Location.Tolerance), nil

	default:
		db, err := database.OpenSQLite(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return location.NewSQLiteRepository(db, cfg.Location.Tolerance), nil
	}
}

// newScheduler registers the location cycle and the maintenance job
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	if err := sched.AddJob(jobs.NewLocationUpdateJob(a.updater, a.cfg.Location.Schedule, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewMaintenanceJob(a.repo, a.cfg.Location.MaintenanceSchedule, a.log)); err != nil {
		return nil, err
	}

	return sched, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
}
