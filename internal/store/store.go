// Package store keeps the summary cache and the run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/paperdigest/internal/errs"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Persistent("open store", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.Persistent("open store", fmt.Errorf("failed to open database: %w", err))
	}
	// one writer; the CLI never needs more
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.Persistent("open store", fmt.Errorf("failed to migrate: %w", err))
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summary_cache (
		id TEXT PRIMARY KEY,
		abstract TEXT NOT NULL,
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		title TEXT,
		summary TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(abstract, backend, model)
	);

	-- runs records one row per digest run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		format TEXT NOT NULL,
		report_path TEXT,
		dry_run BOOLEAN DEFAULT FALSE,
		status TEXT DEFAULT 'running',
		processed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		no_abstract INTEGER DEFAULT 0,
		fallbacks INTEGER DEFAULT 0,
		cached INTEGER DEFAULT 0,
		feed_errors INTEGER DEFAULT 0,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cache_lookup ON summary_cache(abstract, backend, model);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CacheEntry is a row from the summary_cache table.
type CacheEntry struct {
	ID         string
	Abstract   string
	Backend    string
	Model      string
	Title      string
	Summary    string
	UsageCount int
	LastUsed   time.Time
}

// CacheStats summarises summary cache usage.
type CacheStats struct {
	TotalEntries int
	TotalUsage   int
	Backends     int
}

// GetCachedSummary returns the summary stored for abstract by backend/model.
func (s *Store) GetCachedSummary(ctx context.Context, abstract, backend, model string) (string, bool, error) {
	key := normalizeText(abstract)

	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM summary_cache WHERE abstract = ? AND backend = ? AND model = ?`,
		key, backend, model).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE summary_cache SET usage_count = usage_count + 1, last_used = ? WHERE abstract = ? AND backend = ? AND model = ?`,
		time.Now(), key, backend, model)

	return summary, true, err
}

// SaveSummary stores or replaces the summary for abstract by backend/model.
func (s *Store) SaveSummary(ctx context.Context, abstract, backend, model, title, summary string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summary_cache (id, abstract, backend, model, title, summary, usage_count, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(abstract, backend, model) DO UPDATE SET summary = excluded.summary, title = excluded.title, last_used = excluded.last_used`,
		uuid.NewString(), normalizeText(abstract), backend, model, title, summary, now, now)
	return err
}

// ListSummaries returns cache entries ordered by most recently used. A
// positive limit caps the result.
func (s *Store) ListSummaries(ctx context.Context, limit int) ([]CacheEntry, error) {
	query := `SELECT id, abstract, backend, model, COALESCE(title, ''), summary, usage_count, last_used FROM summary_cache ORDER BY last_used DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.ID, &e.Abstract, &e.Backend, &e.Model, &e.Title, &e.Summary, &e.UsageCount, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the cache.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(usage_count), 0),
			COUNT(DISTINCT backend || '/' || model)
		FROM summary_cache`).Scan(
		&stats.TotalEntries,
		&stats.TotalUsage,
		&stats.Backends,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteSummary permanently removes a cache entry by ID. It reports whether
// the entry existed.
func (s *Store) DeleteSummary(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearSummaries removes all cache entries.
func (s *Store) ClearSummaries(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM summary_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Run is a row from the runs table.
type Run struct {
	ID         string
	Format     string
	ReportPath string
	DryRun     bool
	Status     string
	Counts     RunCounts
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunCounts are the per-run counters.
type RunCounts struct {
	Processed  int
	Skipped    int
	NoAbstract int
	Fallbacks  int
	Cached     int
	FeedErrors int
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// StartRun records a new run and returns its ID.
func (s *Store) StartRun(ctx context.Context, format string, dryRun bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, format, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, format, dryRun, RunRunning, time.Now())
	return id, err
}

// FinishRun stores the final counters of a run. A non-nil runErr marks the
// run failed.
func (s *Store) FinishRun(ctx context.Context, id, reportPath string, counts RunCounts, runErr error) error {
	status, msg := RunCompleted, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report_path = ?, status = ?, processed = ?, skipped = ?, no_abstract = ?, fallbacks = ?, cached = ?, feed_errors = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		reportPath, status, counts.Processed, counts.Skipped, counts.NoAbstract, counts.Fallbacks, counts.Cached, counts.FeedErrors, msg, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs first. A positive limit caps the
// result.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, format, COALESCE(report_path, ''), dry_run, status, processed, skipped, no_abstract, fallbacks, cached, feed_errors, COALESCE(error, ''), started_at, finished_at
		FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Format, &r.ReportPath, &r.DryRun, &r.Status,
			&r.Counts.Processed, &r.Counts.Skipped, &r.Counts.NoAbstract, &r.Counts.Fallbacks, &r.Counts.Cached, &r.Counts.FeedErrors,
			&r.Error, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
