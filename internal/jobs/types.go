package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// ErrJobNotFound is returned when a job id is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// JobType represents what an execution does.
type JobType string

const (
	// JobTypeSync is a full provider -> ledger sync.
	JobTypeSync JobType = "sync"
	// JobTypeTestProvider checks provider credentials.
	JobTypeTestProvider JobType = "test_provider"
	// JobTypeTestLedger checks the ledger target.
	JobTypeTestLedger JobType = "test_ledger"
)

// Trigger records what started an execution.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusRunning indicates the execution is in progress.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the execution succeeded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the execution failed.
	JobStatusFailed JobStatus = "failed"
)

// SyncJob is the record of one execution for one profile.
type SyncJob struct {
	// JobID is the unique identifier for this execution.
	JobID string `json:"job_id"`

	// ProfileID is the profile the execution ran for.
	ProfileID string `json:"profile_id"`

	Type    JobType   `json:"type"`
	Trigger Trigger   `json:"trigger"`
	Status  JobStatus `json:"status"`

	// CreatedAt is when the execution was admitted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the execution began running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the execution finished (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Message is the terminal summary shown on the dashboard.
	Message string `json:"message,omitempty"`

	// Error contains error details if the execution failed.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies Error, when it belongs to the taxonomy.
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`

	Added   int `json:"added"`
	Updated int `json:"updated"`

	// Events is the ordered log stream of the execution.
	Events []domain.LogEvent `json:"events,omitempty"`
}

// Finish records the terminal result and log stream.
func (j *SyncJob) Finish(res domain.Result, events []domain.LogEvent, at time.Time) {
	j.CompletedAt = &at
	j.Message = res.Message
	j.Added = res.Added
	j.Updated = res.Updated
	j.Events = append([]domain.LogEvent(nil), events...)
	if res.Success {
		j.Status = JobStatusCompleted
		j.Error = ""
		j.ErrorKind = ""
		return
	}
	j.Status = JobStatusFailed
	j.Error = res.Message
	j.ErrorKind = res.Kind
}

// Duration is how long the execution ran, or zero while it is running.
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Result rebuilds the terminal result of a finished job.
func (j *SyncJob) Result() domain.Result {
	return domain.Result{
		Success: j.Status == JobStatusCompleted,
		Message: j.Message,
		Added:   j.Added,
		Updated: j.Updated,
		Kind:    j.ErrorKind,
	}
}

// Clone returns a deep copy.
func (j *SyncJob) Clone() *SyncJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Events = append([]domain.LogEvent(nil), j.Events...)
	return &c
}

// JobStore defines the interface for storing and retrieving execution records.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncJob) error

	// GetJob retrieves a job by ID. Unknown ids yield ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// ProfileID filters jobs by profile.
	ProfileID string

	// Status filters jobs by status.
	Status JobStatus

	// Type filters jobs by type.
	Type JobType

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether job passes the filter's predicates.
func (f JobFilter) Matches(job *SyncJob) bool {
	if f.ProfileID != "" && job.ProfileID != f.ProfileID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	return true
}
