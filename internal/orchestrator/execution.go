package orchestrator

import (
	"context"
	"time"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

// Execution is the handle of one admitted run.
type Execution struct {
	JobID     string
	ProfileID string
	Type      jobs.JobType
	Trigger   jobs.Trigger
	CreatedAt time.Time

	done   chan struct{}
	result domain.Result
}

func newExecution(jobID, profileID string, typ jobs.JobType, trigger jobs.Trigger, at time.Time) *Execution {
	return &Execution{
		JobID:     jobID,
		ProfileID: profileID,
		Type:      typ,
		Trigger:   trigger,
		CreatedAt: at,
		done:      make(chan struct{}),
	}
}

// Done is closed once the result is recorded and the profile slot released.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution finishes or ctx ends. Cancelling ctx does
// not stop the execution.
func (e *Execution) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}
