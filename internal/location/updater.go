package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/urdash/internal/external/bringyour"
	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/logger"
)

// Fetcher retrieves the live provider locations
type Fetcher interface {
	ProviderLocations(ctx context.Context) ([]bringyour.Location, error)
}

// Phase of a running cycle
type Phase int

const (
	PhaseFetching Phase = iota
	PhasePersisting
)

// CycleSummary describes a completed cycle
type CycleSummary struct {
	Timestamp   int64 `json:"timestamp"`
	Countries   int   `json:"countries"`
	FetchFailed bool  `json:"fetch_failed"`
	Purged      int64 `json:"purged"`
}

// Listener is notified after every successful cycle
type Listener func(ctx context.Context, summary CycleSummary)

// Updater runs the snapshot → current-state → purge pipeline.
// It is the only writer of the current-state view.
type Updater struct {
	repo      Repository
	fetcher   Fetcher
	logger    *logger.Logger
	retention time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// NewUpdater creates an updater
func NewUpdater(repo Repository, fetcher Fetcher, cfg config.LocationConfig, log *logger.Logger) *Updater {
	retention := cfg.Retention
	if retention <= 0 {
		retention = 26 * time.Hour
	}

	return &Updater{
		repo:      repo,
		fetcher:   fetcher,
		logger:    log.Component("location"),
		retention: retention,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock
func (u *Updater) SetClock(now func() time.Time) {
	u.now = now
}

// OnCycle registers a listener for completed cycles
func (u *Updater) OnCycle(l Listener) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.listeners = append(u.listeners, l)
}

// Repository returns the underlying store
func (u *Updater) Repository() Repository {
	return u.repo
}

// RunCycle fetches, writes a snapshot, refreshes the current-state view and
// purges expired history. The timestamp is taken before the fetch so retries
// do not shift it.
func (u *Updater) RunCycle(ctx context.Context, onPhase func(Phase)) (CycleSummary, error) {
	ts := u.now().UnixMilli()

	if onPhase != nil {
		onPhase(PhaseFetching)
	}
	measurements, failed, err := u.Fetch(ctx)
	if err != nil {
		return CycleSummary{Timestamp: ts}, err
	}

	if onPhase != nil {
		onPhase(PhasePersisting)
	}
	return u.Persist(ctx, ts, measurements, failed)
}

// Fetch pulls measurements from upstream. On total failure it returns a
// synthetic zero-filled set of every tracked country and failed=true.
func (u *Updater) Fetch(ctx context.Context) ([]Measurement, bool, error) {
	locations, err := u.fetcher.ProviderLocations(ctx)
	if err == nil {
		if len(locations) == 0 {
			u.logger.Warn("Upstream returned no locations")
		}
		return fromUpstream(locations), false, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}

	u.logger.WithError(err).Error("All fetch attempts failed, zero-filling tracked countries")

	tracked, trackErr := u.repo.TrackedCountries(ctx)
	if trackErr != nil {
		return nil, true, errors.Join(err, trackErr)
	}

	return ZeroFill(tracked), true, nil
}

func fromUpstream(locations []bringyour.Location) []Measurement {
	out := make([]Measurement, 0, len(locations))
	for _, l := range locations {
		out = append(out, Measurement{
			Name:          l.Name,
			CountryCode:   l.CountryCode,
			ProviderCount: l.ProviderCount,
			Stable:        l.Stable,
			StrongPrivacy: l.StrongPrivacy,
		})
	}
	return out
}

// Persist writes the snapshot, refreshes deltas and purges, then notifies listeners
func (u *Updater) Persist(ctx context.Context, ts int64, measurements []Measurement, fetchFailed bool) (CycleSummary, error) {
	summary := CycleSummary{Timestamp: ts, FetchFailed: fetchFailed}

	written, err := u.WriteSnapshot(ctx, ts, measurements)
	if err != nil {
		return summary, err
	}
	summary.Countries = written

	if _, err := u.UpdateCurrentState(ctx, ts); err != nil {
		return summary, err
	}

	purged, err := u.Purge(ctx, ts)
	if err != nil {
		return summary, err
	}
	summary.Purged = purged

	u.logger.WithFields(map[string]interface{}{
		"timestamp":    ts,
		"countries":    summary.Countries,
		"fetch_failed": fetchFailed,
		"purged":       purged,
	}).Info("Location cycle complete")

	u.notify(ctx, summary)
	return summary, nil
}

func (u *Updater) notify(ctx context.Context, summary CycleSummary) {
	u.mu.RLock()
	listeners := append([]Listener(nil), u.listeners...)
	u.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, summary)
	}
}

// WriteSnapshot stores one row per tracked or fetched country at ts
func (u *Updater) WriteSnapshot(ctx context.Context, ts int64, measurements []Measurement) (int, error) {
	tracked, err := u.repo.TrackedCountries(ctx)
	if err != nil {
		return 0, err
	}

	rows := BuildSnapshot(ts, tracked, measurements)
	if err := u.repo.InsertSnapshot(ctx, rows); err != nil {
		return 0, err
	}

	u.logger.WithFields(map[string]interface{}{
		"timestamp": ts,
		"fetched":   len(measurements),
		"tracked":   len(tracked),
		"rows":      len(rows),
	}).Debug("Snapshot written")

	return len(rows), nil
}

// UpdateCurrentState recomputes deltas for every row of the snapshot at ts
// and upserts the current-state view
func (u *Updater) UpdateCurrentState(ctx context.Context, ts int64) (int, error) {
	rows, err := u.repo.SnapshotsAt(ctx, ts)
	if err != nil {
		return 0, err
	}

	current := make([]CurrentLocation, 0, len(rows))
	for _, row := range rows {
		c := CurrentLocation{
			Country:       row.Country,
			CountryCode:   row.CountryCode,
			ProviderCount: row.ProviderCount,
			Stable:        row.Stable,
			StrongPrivacy: row.StrongPrivacy,
			LastUpdated:   ts,
		}

		for i, h := range Horizons {
			past, err := u.repo.SnapshotAtOffset(ctx, row.Country, h, ts)
			if err != nil {
				return 0, err
			}
			c.Deltas[i] = CalculateDelta(row.ProviderCount, past)
		}

		current = append(current, c)
	}

	if err := u.repo.UpsertCurrent(ctx, current); err != nil {
		return 0, err
	}

	return len(current), nil
}

// Purge deletes snapshots older than the retention window relative to ts
func (u *Updater) Purge(ctx context.Context, ts int64) (int64, error) {
	cutoff := ts - u.retention.Milliseconds()

	n, err := u.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		u.logger.WithFields(map[string]interface{}{
			"cutoff":  cutoff,
			"deleted": n,
		}).Info("Purged old snapshots")
	}
	return n, nil
}

// History returns the current-state view keyed by country
func (u *Updater) History(ctx context.Context) (map[string]LocationView, error) {
	rows, err := u.repo.ListCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	history := make(map[string]LocationView, len(rows))
	for _, c := range rows {
		history[c.Country] = c.View()
	}
	return history, nil
}
