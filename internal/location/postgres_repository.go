package location

import (
	"context"
	"time"

	"github.com/wonny/urdash/pkg/database"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id             BIGSERIAL PRIMARY KEY,
		taken_at       BIGINT  NOT NULL,
		country        TEXT    NOT NULL,
		country_code   TEXT    NOT NULL DEFAULT '',
		provider_count BIGINT  NOT NULL,
		stable         BOOLEAN NOT NULL DEFAULT FALSE,
		strong_privacy BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_country_taken_at ON snapshots(country, taken_at)`,
	`CREATE TABLE IF NOT EXISTS current_locations (
		country        TEXT PRIMARY KEY,
		country_code   TEXT    NOT NULL DEFAULT '',
		provider_count BIGINT  NOT NULL,
		stable         BOOLEAN NOT NULL DEFAULT FALSE,
		strong_privacy BOOLEAN NOT NULL DEFAULT FALSE,
		last_updated   BIGINT  NOT NULL
	)`,
	`ALTER TABLE current_locations ADD COLUMN IF NOT EXISTS delta_1h BIGINT`,
	`ALTER TABLE current_locations ADD COLUMN IF NOT EXISTS delta_3h BIGINT`,
	`ALTER TABLE current_locations ADD COLUMN IF NOT EXISTS delta_6h BIGINT`,
	`ALTER TABLE current_locations ADD COLUMN IF NOT EXISTS delta_12h BIGINT`,
	`ALTER TABLE current_locations ADD COLUMN IF NOT EXISTS delta_24h BIGINT`,
}

// PostgresRepository stores snapshots in Postgres through a pgx pool
type PostgresRepository struct {
	pool      database.Pool
	tolerance time.Duration
}

// NewPostgresRepository creates a repository on top of a pgx pool
func NewPostgresRepository(pool database.Pool, tolerance time.Duration) *PostgresRepository {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &PostgresRepository{pool: pool, tolerance: tolerance}
}

// Migrate applies the schema statements in order
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range postgresMigrations {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return storeErr("migrate", err)
		}
	}
	return nil
}

// TrackedCountries returns every country present in current_locations
func (r *PostgresRepository) TrackedCountries(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT country FROM current_locations ORDER BY country`)
	if err != nil {
		return nil, storeErr("tracked countries", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, storeErr("scan tracked country", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("tracked countries", err)
	}

	return countries, nil
}

// InsertSnapshot writes the batch in one transaction
func (r *PostgresRepository) InsertSnapshot(ctx context.Context, rows []Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin snapshot", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO snapshots (taken_at, country, country_code, provider_count, stable, strong_privacy)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, s := range rows {
		if _, err := tx.Exec(ctx, query,
			s.TakenAt, s.Country, s.CountryCode, s.ProviderCount, s.Stable, s.StrongPrivacy,
		); err != nil {
			return storeErr("insert snapshot "+s.Country, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit snapshot", err)
	}
	return nil
}

// SnapshotsAt returns the rows of one snapshot ordered by country
func (r *PostgresRepository) SnapshotsAt(ctx context.Context, takenAt int64) ([]Snapshot, error) {
	return r.querySnapshots(ctx, "snapshots at", `
		SELECT taken_at, country, country_code, provider_count, stable, strong_privacy
		FROM snapshots
		WHERE taken_at = $1
		ORDER BY country`, takenAt)
}

// SnapshotAtOffset finds the nearest snapshot to asOf - hoursAgo within tolerance
func (r *PostgresRepository) SnapshotAtOffset(ctx context.Context, country string, hoursAgo Horizon, asOf int64) (*int64, error) {
	target, from, to := offsetWindow(hoursAgo, asOf, r.tolerance)

	candidates, err := r.querySnapshots(ctx, "snapshot at offset", `
		SELECT taken_at, country, country_code, provider_count, stable, strong_privacy
		FROM snapshots
		WHERE country = $1 AND taken_at BETWEEN $2 AND $3
		ORDER BY taken_at`, country, from, to)
	if err != nil {
		return nil, err
	}

	return nullableCount(candidates, target, r.tolerance), nil
}

func (r *PostgresRepository) querySnapshots(ctx context.Context, op, query string, args ...any) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.TakenAt, &s.Country, &s.CountryCode, &s.ProviderCount, &s.Stable, &s.StrongPrivacy); err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}

	return out, nil
}

// UpsertCurrent writes the current-state rows in one transaction
func (r *PostgresRepository) UpsertCurrent(ctx context.Context, rows []CurrentLocation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO current_locations
			(country, country_code, provider_count, stable, strong_privacy,
			 delta_1h, delta_3h, delta_6h, delta_12h, delta_24h, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (country) DO UPDATE SET
			country_code = CASE WHEN EXCLUDED.country_code <> '' THEN EXCLUDED.country_code
			                    ELSE current_locations.country_code END,
			provider_count = EXCLUDED.provider_count,
			stable = EXCLUDED.stable,
			strong_privacy = EXCLUDED.strong_privacy,
			delta_1h = EXCLUDED.delta_1h,
			delta_3h = EXCLUDED.delta_3h,
			delta_6h = EXCLUDED.delta_6h,
			delta_12h = EXCLUDED.delta_12h,
			delta_24h = EXCLUDED.delta_24h,
			last_updated = EXCLUDED.last_updated`

	for _, c := range rows {
		if _, err := tx.Exec(ctx, query,
			c.Country, c.CountryCode, c.ProviderCount, c.Stable, c.StrongPrivacy,
			c.Deltas[0], c.Deltas[1], c.Deltas[2], c.Deltas[3], c.Deltas[4],
			c.LastUpdated,
		); err != nil {
			return storeErr("upsert current "+c.Country, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

// ListCurrent returns the current-state view
func (r *PostgresRepository) ListCurrent(ctx context.Context) ([]CurrentLocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT country, country_code, provider_count, stable, strong_privacy,
		       delta_1h, delta_3h, delta_6h, delta_12h, delta_24h, last_updated
		FROM current_locations
		ORDER BY country`)
	if err != nil {
		return nil, storeErr("list current", err)
	}
	defer rows.Close()

	var out []CurrentLocation
	for rows.Next() {
		var c CurrentLocation
		if err := rows.Scan(
			&c.Country, &c.CountryCode, &c.ProviderCount, &c.Stable, &c.StrongPrivacy,
			&c.Deltas[0], &c.Deltas[1], &c.Deltas[2], &c.Deltas[3], &c.Deltas[4], &c.LastUpdated,
		); err != nil {
			return nil, storeErr("scan current", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list current", err)
	}

	return out, nil
}

// PurgeBefore deletes snapshots strictly older than cutoff
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("purge", err)
	}
	return tag.RowsAffected(), nil
}

// Optimize refreshes planner statistics
func (r *PostgresRepository) Optimize(ctx context.Context) error {
	for _, table := range []string{"snapshots", "current_locations"} {
		if _, err := r.pool.Exec(ctx, "ANALYZE "+table); err != nil {
			return storeErr("analyze "+table, err)
		}
	}
	return nil
}

// Ping checks the pool
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
