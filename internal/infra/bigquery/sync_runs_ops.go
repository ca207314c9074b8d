// Package bigquery archives finished executions into a BigQuery table.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "sync_runs"

// RunArchiver inserts one row per finished execution.
type RunArchiver struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewRunArchiver creates an archiver writing to project.dataset.table.
func NewRunArchiver(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (*RunArchiver, error) {
	if projectID == "" || dataset == "" {
		return nil, fmt.Errorf("NewRunArchiver: project and dataset are required")
	}
	if table == "" {
		table = DefaultTable
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRunArchiver: creating client: %w", err)
	}
	return &RunArchiver{client: client, dataset: dataset, table: table}, nil
}

// Close closes the BigQuery client connection.
func (a *RunArchiver) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Archive streams the job as one row. The job id is the insert id, so a
// retried insert of the same job is deduplicated by BigQuery.
func (a *RunArchiver) Archive(ctx context.Context, job *jobs.SyncJob) error {
	row, err := RowFromJob(job)
	if err != nil {
		return fmt.Errorf("Archive: encoding job %s: %w", job.JobID, err)
	}

	inserter := a.client.Dataset(a.dataset).Table(a.table).Inserter()
	if err := inserter.Put(ctx, &bigquery.StructSaver{Struct: row, InsertID: job.JobID}); err != nil {
		return fmt.Errorf("Archive: inserting job %s: %w", job.JobID, err)
	}

	lg := logger.FromContext(ctx)
	lg.Debug().Str("table", a.dataset+"."+a.table).Msg("Execution row inserted")
	return nil
}

// ListRuns returns the most recent archived runs, newest first. An empty
// profileID lists every profile.
func (a *RunArchiver) ListRuns(ctx context.Context, profileID string, limit int) ([]*SyncRunRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := a.client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s.%s
		WHERE @profile_id = '' OR profile_id = @profile_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, a.dataset, a.table))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "profile_id", Value: profileID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: running query: %w", err)
	}

	var rows []*SyncRunRow
	for {
		var row SyncRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: reading row: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
