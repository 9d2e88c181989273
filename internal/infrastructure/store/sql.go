package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// timeLayout keeps a fixed width so text timestamps sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT,
		total       INTEGER NOT NULL DEFAULT 0,
		processed   INTEGER NOT NULL DEFAULT 0,
		created     INTEGER NOT NULL DEFAULT 0,
		updated     INTEGER NOT NULL DEFAULT 0,
		unchanged   INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs (started_at)`,
	`CREATE TABLE IF NOT EXISTS sync_product_outcomes (
		run_id           TEXT NOT NULL,
		family_key       TEXT NOT NULL,
		product_id       BIGINT NOT NULL DEFAULT 0,
		title            TEXT NOT NULL DEFAULT '',
		action           TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT '',
		variants_created INTEGER NOT NULL DEFAULT 0,
		variants_updated INTEGER NOT NULL DEFAULT 0,
		variants_deleted INTEGER NOT NULL DEFAULT 0,
		images_created   INTEGER NOT NULL DEFAULT 0,
		images_deleted   INTEGER NOT NULL DEFAULT 0,
		writes           INTEGER NOT NULL DEFAULT 0,
		failures         INTEGER NOT NULL DEFAULT 0,
		error            TEXT NOT NULL DEFAULT '',
		at               TEXT NOT NULL,
		PRIMARY KEY (run_id, family_key)
	)`,
}

const upsertRun = `INSERT INTO sync_runs
	(id, started_at, finished_at, total, processed, created, updated, unchanged, skipped, failed, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		finished_at = excluded.finished_at,
		total = excluded.total,
		processed = excluded.processed,
		created = excluded.created,
		updated = excluded.updated,
		unchanged = excluded.unchanged,
		skipped = excluded.skipped,
		failed = excluded.failed,
		error = excluded.error`

const upsertOutcome = `INSERT INTO sync_product_outcomes
	(run_id, family_key, product_id, title, action, status, variants_created, variants_updated,
	 variants_deleted, images_created, images_deleted, writes, failures, error, at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (run_id, family_key) DO UPDATE SET
		product_id = excluded.product_id,
		title = excluded.title,
		action = excluded.action,
		status = excluded.status,
		variants_created = excluded.variants_created,
		variants_updated = excluded.variants_updated,
		variants_deleted = excluded.variants_deleted,
		images_created = excluded.images_created,
		images_deleted = excluded.images_deleted,
		writes = excluded.writes,
		failures = excluded.failures,
		error = excluded.error,
		at = excluded.at`

const selectRuns = `SELECT id, started_at, finished_at, total, processed, created, updated, unchanged, skipped, failed, error
	FROM sync_runs ORDER BY started_at DESC LIMIT ?`

const selectOutcomes = `SELECT run_id, family_key, product_id, title, action, status, variants_created, variants_updated,
	variants_deleted, images_created, images_deleted, writes, failures, error, at
	FROM sync_product_outcomes WHERE run_id = ? ORDER BY at, family_key`

// SQLStore keeps run reports and product outcomes in Postgres or SQLite
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects with the given driver, checks the connection and creates the tables
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: unsupported store driver %q", domain.ErrConfig, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[STORE] Connected (%s)", driver)
	return s, nil
}

// New wraps an open database handle
func New(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Migrate creates the tables when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate run store: %w", err)
		}
	}
	return nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run or updates its counters
func (s *SQLStore) SaveRun(ctx context.Context, run *domain.RunReport) error {
	var finished sql.NullString
	if run.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(upsertRun),
		run.ID, formatTime(run.StartedAt), finished,
		run.Total, run.Processed, run.Created, run.Updated, run.Unchanged, run.Skipped, run.Failed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveOutcome inserts or replaces the outcome of one family within a run
func (s *SQLStore) SaveOutcome(ctx context.Context, o *domain.ProductOutcome) error {
	_, err := s.db.ExecContext(ctx, s.rebind(upsertOutcome),
		o.RunID, o.FamilyKey, o.ProductID, o.Title, o.Action, o.Status,
		o.VariantsCreated, o.VariantsUpdated, o.VariantsDeleted, o.ImagesCreated, o.ImagesDeleted,
		o.Writes, o.Failures, o.Error, formatTime(o.At),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome %s/%s: %w", o.RunID, o.FamilyKey, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectRuns), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunReport{}
	for rows.Next() {
		var (
			r        domain.RunReport
			started  string
			finished sql.NullString
		)
		err := rows.Scan(&r.ID, &started, &finished,
			&r.Total, &r.Processed, &r.Created, &r.Updated, &r.Unchanged, &r.Skipped, &r.Failed,
			&r.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListOutcomes returns the outcomes of one run in processing order
func (s *SQLStore) ListOutcomes(ctx context.Context, runID string) ([]domain.ProductOutcome, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectOutcomes), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []domain.ProductOutcome{}
	for rows.Next() {
		var (
			o  domain.ProductOutcome
			at string
		)
		err := rows.Scan(&o.RunID, &o.FamilyKey, &o.ProductID, &o.Title, &o.Action, &o.Status,
			&o.VariantsCreated, &o.VariantsUpdated, &o.VariantsDeleted, &o.ImagesCreated, &o.ImagesDeleted,
			&o.Writes, &o.Failures, &o.Error, &at)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if o.At, err = parseTime(at); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// rebind turns ? placeholders into $n for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// NopStore discards runs; it backs store.driver=none
type NopStore struct{}

func (NopStore) SaveRun(ctx context.Context, run *domain.RunReport) error { return nil }

func (NopStore) SaveOutcome(ctx context.Context, outcome *domain.ProductOutcome) error { return nil }

func (NopStore) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	return []domain.RunReport{}, nil
}

func (NopStore) ListOutcomes(ctx context.Context, runID string) ([]domain.ProductOutcome, error) {
	return []domain.ProductOutcome{}, nil
}
