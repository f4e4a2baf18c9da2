package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status values recorded for a source run.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Entry is one source's outcome within a run.
type Entry struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Identifiers  int       `json:"identifiers"`
	Fetched      int       `json:"fetched"`
	Empty        int       `json:"empty"`
	Failed       int       `json:"failed"`
	Collisions   int       `json:"collisions"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Duration returns how long the source run took.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Recorder stores and lists history entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Store is the SQLite-backed Recorder.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record inserts entry.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO source_runs (
                run_id, source, status, started_at, finished_at,
                identifiers, fetched, empty, failed, collisions,
                artifact_path, error_message
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.RunID,
			entry.Source,
			entry.Status,
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.FinishedAt.UTC().Format(time.RFC3339Nano),
			entry.Identifiers,
			entry.Fetched,
			entry.Empty,
			entry.Failed,
			entry.Collisions,
			nullableString(entry.ArtifactPath),
			nullableString(entry.Error),
		)
		if err != nil {
			return fmt.Errorf("insert source run: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, status, started_at, finished_at,
                identifiers, fetched, empty, failed, collisions,
                artifact_path, error_message
         FROM source_runs
         ORDER BY started_at DESC, id DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry              Entry
			started, finished  string
			artifact, errorMsg sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.Source, &entry.Status, &started, &finished,
			&entry.Identifiers, &entry.Fetched, &entry.Empty, &entry.Failed, &entry.Collisions,
			&artifact, &errorMsg,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.StartedAt = parseTime(started)
		entry.FinishedAt = parseTime(finished)
		entry.ArtifactPath = artifact.String
		entry.Error = errorMsg.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
