// Package sqlite is a durable JobStore backed by a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - sync_jobs table
const currentSchemaVersion = 1

// Store persists execution history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveJob implements the JobStore interface. Saving an existing id
// overwrites it.
func (s *Store) SaveJob(ctx context.Context, job *jobs.SyncJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	events, err := json.Marshal(nonNil(job.Events))
	if err != nil {
		return fmt.Errorf("save job: encode events: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs
		(job_id, profile_id, type, trigger_src, status, created_at, started_at, completed_at,
		 message, error, error_kind, added, updated, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			message = excluded.message,
			error = excluded.error,
			error_kind = excluded.error_kind,
			added = excluded.added,
			updated = excluded.updated,
			events = excluded.events
	`,
		job.JobID,
		job.ProfileID,
		string(job.Type),
		string(job.Trigger),
		string(job.Status),
		job.CreatedAt.UnixNano(),
		nanos(job.StartedAt),
		nanos(job.CompletedAt),
		job.Message,
		job.Error,
		string(job.ErrorKind),
		job.Added,
		job.Updated,
		string(events),
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

const selectColumns = `job_id, profile_id, type, trigger_src, status, created_at, started_at, completed_at,
	message, error, error_kind, added, updated, events`

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sync_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProfileID != "" {
		where = append(where, "profile_id = ?")
		args = append(args, filter.ProfileID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + selectColumns + ` FROM sync_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, job_id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	result := []*jobs.SyncJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(sc scanner) (*jobs.SyncJob, error) {
	var (
		job                  jobs.SyncJob
		typ, trigger, status string
		errorKind, events    string
		created              int64
		started, completed   sql.NullInt64
	)
	err := sc.Scan(&job.JobID, &job.ProfileID, &typ, &trigger, &status, &created, &started, &completed,
		&job.Message, &job.Error, &errorKind, &job.Added, &job.Updated, &events)
	if err != nil {
		return nil, err
	}

	job.Type = jobs.JobType(typ)
	job.Trigger = jobs.Trigger(trigger)
	job.Status = jobs.JobStatus(status)
	job.ErrorKind = domain.ErrorKind(errorKind)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.StartedAt = fromNanos(started)
	job.CompletedAt = fromNanos(completed)

	if err := json.Unmarshal([]byte(events), &job.Events); err != nil {
		return nil, fmt.Errorf("decode events of %s: %w", job.JobID, err)
	}
	if len(job.Events) == 0 {
		job.Events = nil
	}
	return &job, nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func nonNil(events []domain.LogEvent) []domain.LogEvent {
	if events == nil {
		return []domain.LogEvent{}
	}
	return events
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
