package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"opuspress/internal/config"
)

// Store persists terminal job records backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    source_name TEXT NOT NULL,
    tier TEXT NOT NULL,
    speech_optimized INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    failure_kind TEXT NOT NULL DEFAULT '',
    diagnostic TEXT NOT NULL DEFAULT '',
    input_bytes INTEGER NOT NULL DEFAULT 0,
    output_bytes INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    compression_ratio REAL NOT NULL DEFAULT 0,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_history_user ON job_history(user_id);
CREATE INDEX IF NOT EXISTS idx_job_history_created ON job_history(created_at);
`

// Entry is one finished job as stored in the ledger.
type Entry struct {
	ID               int64
	JobID            string
	UserID           string
	SourceName       string
	Tier             string
	SpeechOptimized  bool
	Outcome          string
	FailureKind      string
	Diagnostic       string
	InputBytes       int64
	OutputBytes      int64
	DurationSeconds  float64
	CompressionRatio float64
	Elapsed          time.Duration
	CreatedAt        time.Time
}

// Outcome values recorded per job.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Open initializes or connects to the job history database under the
// configured log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "history.db"))
}

// OpenPath initializes or connects to the job history database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.execWithRetry(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a terminal job entry.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.execWithRetry(ctx, `
INSERT INTO job_history (
    job_id, user_id, source_name, tier, speech_optimized,
    outcome, failure_kind, diagnostic,
    input_bytes, output_bytes, duration_seconds, compression_ratio,
    elapsed_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID, entry.UserID, entry.SourceName, entry.Tier, boolToInt(entry.SpeechOptimized),
		entry.Outcome, entry.FailureKind, entry.Diagnostic,
		entry.InputBytes, entry.OutputBytes, entry.DurationSeconds, entry.CompressionRatio,
		entry.Elapsed.Milliseconds(), entry.CreatedAt.Format(time.RFC3339Nano))
}

// List returns the most recent entries, newest first. A non-positive
// limit returns up to 100 rows.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+`
FROM job_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListByUser returns the most recent entries for one user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+`
FROM job_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetByJobID returns the entry for jobID, or sql.ErrNoRows.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
FROM job_history WHERE job_id = ?`, jobID)
	return scanEntry(row)
}

// Summary aggregates recorded outcome counts.
type Summary struct {
	Completed int64
	Failed    int64
}

// Total returns the number of recorded jobs.
func (s Summary) Total() int64 {
	return s.Completed + s.Failed
}

// Summarize counts recorded jobs per outcome.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM job_history GROUP BY outcome`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize job history: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		switch outcome {
		case OutcomeCompleted:
			summary.Completed = count
		case OutcomeFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

const selectColumns = `
SELECT id, job_id, user_id, source_name, tier, speech_optimized,
       outcome, failure_kind, diagnostic,
       input_bytes, output_bytes, duration_seconds, compression_ratio,
       elapsed_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0, 16)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (Entry, error) {
	var entry Entry
	var speech int
	var elapsedMs int64
	var createdAt string
	if err := row.Scan(
		&entry.ID, &entry.JobID, &entry.UserID, &entry.SourceName, &entry.Tier, &speech,
		&entry.Outcome, &entry.FailureKind, &entry.Diagnostic,
		&entry.InputBytes, &entry.OutputBytes, &entry.DurationSeconds, &entry.CompressionRatio,
		&elapsedMs, &createdAt,
	); err != nil {
		return Entry{}, err
	}
	entry.SpeechOptimized = speech != 0
	entry.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = parsed
	}
	return entry, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
