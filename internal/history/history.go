package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emilejacobs/rollout/pkg/api"
)

// Store is an append-only SQLite log of deployment attempts. Unlike
// the resumable state file, which keeps only the latest result per
// host, the history keeps every attempt for operator forensics.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Attempt is one recorded deployment attempt.
type Attempt struct {
	RunID      string
	Host       string
	Platform   string
	Success    bool
	Duration   time.Duration
	Error      string
	LogFile    string
	FinishedAt time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record appends one outcome under the given run identifier.
func (s *Store) Record(ctx context.Context, runID string, oc api.Outcome) error {
	success := 0
	if oc.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, host, platform, success, duration_ms, error, log_file, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, oc.Host, oc.Platform, success, oc.Duration.Milliseconds(),
		oc.Error, oc.LogFile, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Recent returns the latest attempts, newest first. host narrows the
// query to one host when non-empty.
func (s *Store) Recent(ctx context.Context, host string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, host, platform, success, duration_ms, error, log_file, finished_at
		 FROM attempts`
	args := []any{}
	if host != "" {
		query += ` WHERE host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var success, durationMS int64
		var finished string
		if err := rows.Scan(&a.RunID, &a.Host, &a.Platform, &success, &durationMS, &a.Error, &a.LogFile, &finished); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Success = success != 0
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, a)
	}
	return out, rows.Err()
}
