package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-sync/internal/jobs"
)

// maxErrorLen bounds the error_message column.
const maxErrorLen = 2000

// SyncRunRow is one finished execution in the sync_runs table.
type SyncRunRow struct {
	JobID     string `bigquery:"job_id"`     // REQUIRED
	ProfileID string `bigquery:"profile_id"` // REQUIRED

	JobType string `bigquery:"job_type"` // REQUIRED
	Trigger string `bigquery:"trigger"`  // REQUIRED
	Status  string `bigquery:"status"`   // REQUIRED

	CreatedTS  time.Time              `bigquery:"created_ts"`  // REQUIRED
	StartedTS  bigquery.NullTimestamp `bigquery:"started_ts"`  // NULLABLE
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Message      string `bigquery:"message"`       // NULLABLE
	ErrorKind    string `bigquery:"error_kind"`    // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	Added   int64 `bigquery:"added"`
	Updated int64 `bigquery:"updated"`

	// Events is the log stream as a JSON array.
	Events bigquery.NullJSON `bigquery:"events"` // NULLABLE
}

// RowFromJob converts an execution record into a table row.
func RowFromJob(job *jobs.SyncJob) (*SyncRunRow, error) {
	row := &SyncRunRow{
		JobID:     job.JobID,
		ProfileID: job.ProfileID,
		JobType:   string(job.Type),
		Trigger:   string(job.Trigger),
		Status:    string(job.Status),
		CreatedTS: job.CreatedAt,
		Message:   job.Message,
		ErrorKind: string(job.ErrorKind),
		Added:     int64(job.Added),
		Updated:   int64(job.Updated),
	}
	if job.StartedAt != nil {
		row.StartedTS = bigquery.NullTimestamp{Timestamp: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: *job.CompletedAt, Valid: true}
	}

	row.ErrorMessage = job.Error
	if len(row.ErrorMessage) > maxErrorLen {
		row.ErrorMessage = row.ErrorMessage[:maxErrorLen]
	}

	if len(job.Events) > 0 {
		b, err := json.Marshal(job.Events)
		if err != nil {
			return nil, err
		}
		row.Events = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}
