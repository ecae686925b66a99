package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStore marks persistence failures. A cycle that hits one is aborted.
var ErrStore = errors.New("store error")

// DefaultTolerance is the ± window around a delta target timestamp
const DefaultTolerance = 30 * time.Minute

// Repository persists snapshots and the current-state view.
// Every call checks out its own connection and releases it before returning.
type Repository interface {
	// Migrate creates missing tables, indexes and delta columns
	Migrate(ctx context.Context) error

	// TrackedCountries returns every country ever written to the current-state view
	TrackedCountries(ctx context.Context) ([]string, error)

	// InsertSnapshot writes all rows in one transaction
	InsertSnapshot(ctx context.Context, rows []Snapshot) error

	// SnapshotsAt returns the rows written at exactly takenAt
	SnapshotsAt(ctx context.Context, takenAt int64) ([]Snapshot, error)

	// SnapshotAtOffset returns the provider count of the snapshot nearest to
	// asOf - hoursAgo within the tolerance window, or nil if none exists
	SnapshotAtOffset(ctx context.Context, country string, hoursAgo Horizon, asOf int64) (*int64, error)

	// UpsertCurrent writes current-state rows, keeping a stored country code
	// when the incoming one is empty
	UpsertCurrent(ctx context.Context, rows []CurrentLocation) error

	// ListCurrent returns the whole current-state view ordered by country
	ListCurrent(ctx context.Context) ([]CurrentLocation, error)

	// PurgeBefore deletes snapshots with taken_at < cutoff
	PurgeBefore(ctx context.Context, cutoff int64) (int64, error)

	// Optimize runs planner statistics / checkpoint maintenance
	Optimize(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// offsetWindow returns the [from, to] range searched for a horizon lookup
func offsetWindow(hoursAgo Horizon, asOf int64, tolerance time.Duration) (target, from, to int64) {
	target = asOf - hoursAgo.Millis()
	tol := tolerance.Milliseconds()
	return target, target - tol, target + tol
}

func nullableCount(snapshots []Snapshot, target int64, tolerance time.Duration) *int64 {
	s, ok := NearestWithin(snapshots, target, tolerance.Milliseconds())
	if !ok {
		return nil
	}
	count := s.ProviderCount
	return &count
}
