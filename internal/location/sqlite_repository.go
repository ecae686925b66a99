package location

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at       INTEGER NOT NULL,
	country        TEXT    NOT NULL,
	country_code   TEXT    NOT NULL DEFAULT '',
	provider_count INTEGER NOT NULL,
	stable         INTEGER NOT NULL DEFAULT 0,
	strong_privacy INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_country_taken_at ON snapshots(country, taken_at);

CREATE TABLE IF NOT EXISTS current_locations (
	country        TEXT PRIMARY KEY,
	country_code   TEXT    NOT NULL DEFAULT '',
	provider_count INTEGER NOT NULL,
	stable         INTEGER NOT NULL DEFAULT 0,
	strong_privacy INTEGER NOT NULL DEFAULT 0,
	last_updated   INTEGER NOT NULL
);`

const sqliteUpsertCurrent = `
INSERT INTO current_locations
	(country, country_code, provider_count, stable, strong_privacy,
	 delta_1h, delta_3h, delta_6h, delta_12h, delta_24h, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(country) DO UPDATE SET
	country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code
	                    ELSE current_locations.country_code END,
	provider_count = excluded.provider_count,
	stable = excluded.stable,
	strong_privacy = excluded.strong_privacy,
	delta_1h = excluded.delta_1h,
	delta_3h = excluded.delta_3h,
	delta_6h = excluded.delta_6h,
	delta_12h = excluded.delta_12h,
	delta_24h = excluded.delta_24h,
	last_updated = excluded.last_updated`

// SQLiteRepository is the default store, backed by modernc.org/sqlite
type SQLiteRepository struct {
	db        *sql.DB
	tolerance time.Duration
}

// NewSQLiteRepository wraps an open database (see database.OpenSQLite)
func NewSQLiteRepository(db *sql.DB, tolerance time.Duration) *SQLiteRepository {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &SQLiteRepository{db: db, tolerance: tolerance}
}

// Migrate creates the schema and adds delta columns missing from older databases
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storeErr("create schema", err)
	}

	existing, err := r.columns(ctx, "current_locations")
	if err != nil {
		return err
	}

	for _, h := range Horizons {
		col := h.Column()
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE current_locations ADD COLUMN %s INTEGER", col)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("add column "+col, err)
		}
	}

	return nil
}

func (r *SQLiteRepository) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, storeErr("table info", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, storeErr("scan table info", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("table info", err)
	}

	return cols, nil
}

// TrackedCountries returns every country present in current_locations
func (r *SQLiteRepository) TrackedCountries(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT country FROM current_locations ORDER BY country`)
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
func (r *SQLiteRepository) InsertSnapshot(ctx context.Context, rows []Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (taken_at, country, country_code, provider_count, stable, strong_privacy)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeErr("prepare snapshot", err)
	}
	defer stmt.Close()

	for _, s := range rows {
		if _, err := stmt.ExecContext(ctx,
			s.TakenAt, s.Country, s.CountryCode, s.ProviderCount, s.Stable, s.StrongPrivacy,
		); err != nil {
			return storeErr("insert snapshot "+s.Country, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit snapshot", err)
	}
	return nil
}

// SnapshotsAt returns the rows of one snapshot ordered by country
func (r *SQLiteRepository) SnapshotsAt(ctx context.Context, takenAt int64) ([]Snapshot, error) {
	return r.querySnapshots(ctx, "snapshots at", `
		SELECT taken_at, country, country_code, provider_count, stable, strong_privacy
		FROM snapshots
		WHERE taken_at = ?
		ORDER BY country`, takenAt)
}

// SnapshotAtOffset finds the nearest snapshot to asOf - hoursAgo within tolerance
func (r *SQLiteRepository) SnapshotAtOffset(ctx context.Context, country string, hoursAgo Horizon, asOf int64) (*int64, error) {
	target, from, to := offsetWindow(hoursAgo, asOf, r.tolerance)

	candidates, err := r.querySnapshots(ctx, "snapshot at offset", `
		SELECT taken_at, country, country_code, provider_count, stable, strong_privacy
		FROM snapshots
		WHERE country = ? AND taken_at BETWEEN ? AND ?
		ORDER BY taken_at`, country, from, to)
	if err != nil {
		return nil, err
	}

	return nullableCount(candidates, target, r.tolerance), nil
}

func (r *SQLiteRepository) querySnapshots(ctx context.Context, op, query string, args ...any) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
func (r *SQLiteRepository) UpsertCurrent(ctx context.Context, rows []CurrentLocation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertCurrent)
	if err != nil {
		return storeErr("prepare upsert", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx,
			c.Country, c.CountryCode, c.ProviderCount, c.Stable, c.StrongPrivacy,
			c.Deltas[0], c.Deltas[1], c.Deltas[2], c.Deltas[3], c.Deltas[4],
			c.LastUpdated,
		); err != nil {
			return storeErr("upsert current "+c.Country, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

// ListCurrent returns the current-state view
func (r *SQLiteRepository) ListCurrent(ctx context.Context) ([]CurrentLocation, error) {
	rows, err := r.db.QueryContext(ctx, `
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
		var (
			c      CurrentLocation
			deltas [HorizonCount]sql.NullInt64
		)
		if err := rows.Scan(
			&c.Country, &c.CountryCode, &c.ProviderCount, &c.Stable, &c.StrongPrivacy,
			&deltas[0], &deltas[1], &deltas[2], &deltas[3], &deltas[4], &c.LastUpdated,
		); err != nil {
			return nil, storeErr("scan current", err)
		}
		for i, d := range deltas {
			if d.Valid {
				v := d.Int64
				c.Deltas[i] = &v
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list current", err)
	}

	return out, nil
}

// PurgeBefore deletes snapshots strictly older than cutoff
func (r *SQLiteRepository) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE taken_at < ?`, cutoff)
	if err != nil {
		return 0, storeErr("purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("purge rows affected", err)
	}
	return n, nil
}

// Optimize refreshes planner statistics and truncates the WAL
func (r *SQLiteRepository) Optimize(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return storeErr("optimize", err)
	}
	if _, err := r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return storeErr("wal checkpoint", err)
	}
	return nil
}

// Ping checks the database connection
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the underlying database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
