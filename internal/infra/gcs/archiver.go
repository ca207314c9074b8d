// Package gcs archives finished executions as JSON objects in Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

const uploadTimeout = 2 * time.Minute

// Archiver writes gs://bucket/prefix/<profile>/<job>.json for every job.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewArchiver creates an archiver. It assumes Application Default
// Credentials unless opts say otherwise.
func NewArchiver(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchiver: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close closes the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// ObjectName is the object path of a job under prefix.
func ObjectName(prefix string, job *jobs.SyncJob) string {
	return path.Join(strings.Trim(prefix, "/"), job.ProfileID, job.JobID+".json")
}

// URI is the gs:// address of a job's archive.
func (a *Archiver) URI(job *jobs.SyncJob) string {
	return fmt.Sprintf("gs://%s/%s", a.bucket, ObjectName(a.prefix, job))
}

// Archive uploads the job record, log stream included.
func (a *Archiver) Archive(ctx context.Context, job *jobs.SyncJob) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.JobID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(ObjectName(a.prefix, job)).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"profile_id": job.ProfileID,
		"status":     string(job.Status),
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", a.URI(job), err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", a.URI(job), err)
	}

	lg := logger.FromContext(ctx)
	lg.Debug().Str("uri", a.URI(job)).Int("bytes", len(data)).Msg("Execution archived")
	return nil
}

// ExtractJobID extracts the job id from an archive URI.
// e.g., "gs://bucket/runs/household/abc.json" → "abc"
func ExtractJobID(uri string) string {
	return strings.TrimSuffix(path.Base(strings.TrimPrefix(uri, "gs://")), ".json")
}
