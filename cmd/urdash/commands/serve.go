package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wonny/urdash/internal/api"
	"github.com/wonny/urdash/internal/api/handlers"
	"github.com/wonny/urdash/internal/realtime"
	"github.com/wonny/urdash/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the hourly scheduler",
	Long: `Starts the HTTP API, the websocket hub and the scheduler in one process.

The location cycle runs once immediately, then at the top of every hour.

Endpoints:
  GET  /health                              - Health check
  GET  /api/locations/history               - Current state with deltas
  GET  /api/location-history                - Same, frontend path
  GET  /api/locations                       - Raw upstream passthrough
  GET  /api/scheduler/jobs                  - Job stats
  GET  /api/scheduler/jobs/{name}/history   - Recent runs of a job
  POST /api/scheduler/jobs/{name}/run       - Trigger a job
  GET  /ws/locations                        - Cycle notifications

Example:
  go run ./cmd/urdash serve
  go run ./cmd/urdash serve --port 9090`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Port = servePort
	}
	log := a.log

	// Redis history cache (no-op when disabled)
	redisClient, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, "urdash")

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	hub := realtime.NewHub(log)
	limiter := rate.NewLimiter(rate.Limit(a.cfg.ProxyRateLimit), a.cfg.ProxyBurst)

	locationHandler := handlers.NewLocationHandler(a.updater, a.fetcher, cache, limiter, log)
	schedulerHandler := handlers.NewSchedulerHandler(sched, log)

	a.updater.OnCycle(locationHandler.InvalidateHistory)
	a.updater.OnCycle(hub.NotifyCycle)

	router := api.NewRouter(locationHandler, schedulerHandler, hub.ServeWS, log)
	server := api.New(a.cfg, log, router)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(server.Start)

	g.Go(func() error {
		h, err := sched.Start(gctx)
		if err != nil {
			return err
		}
		<-h.Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.WithFields(map[string]interface{}{
		"port":     a.cfg.Port,
		"schedule": a.cfg.Location.Schedule,
		"redis":    redisClient.Enabled(),
	}).Info("urdash started")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("urdash stopped")
	return nil
}
