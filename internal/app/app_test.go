package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

func testSettings(t *testing.T, history string) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := &config.Settings{
		DataDir:         dir,
		ProfilesFile:    filepath.Join(dir, "profiles.yaml"),
		HistoryDB:       history,
		LogBufferSize:   50,
		ImportBatchSize: 100,
	}
	if history == "" {
		s.HistoryDB = filepath.Join(dir, "history.sqlite")
	}
	return s
}

func TestNew_WiresAndReloads(t *testing.T) {
	s := testSettings(t, "")
	require.NoError(t, os.WriteFile(s.ProfilesFile, []byte(`profiles:
  - id: household
    enabled: true
    schedule: "@daily"
`), 0o600))

	a, err := New(context.Background(), s, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 1, a.Orchestrator.Reload())

	require.NoError(t, os.WriteFile(s.ProfilesFile, []byte(`profiles:
  - id: household
    enabled: false
    schedule: "@daily"
  - id: business
    enabled: true
    schedule: "@hourly"
`), 0o600))
	n, err := a.ReloadProfiles()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, a.Profiles.Profiles(), 2)

	require.NoError(t, os.WriteFile(s.ProfilesFile, []byte("profiles: [\n"), 0o600))
	_, err = a.ReloadProfiles()
	assert.Error(t, err)
	assert.Len(t, a.Profiles.Profiles(), 2)
}

func TestNew_FailedExecutionIsRecorded(t *testing.T) {
	s := testSettings(t, config.HistoryInMemory)
	require.NoError(t, os.WriteFile(s.ProfilesFile, []byte("profiles:\n  - id: incomplete\n    enabled: true\n"), 0o600))

	a, err := New(context.Background(), s, zerolog.Nop())
	require.NoError(t, err)

	exec, err := a.Orchestrator.Trigger(context.Background(), "incomplete", jobs.JobTypeSync, jobs.TriggerManual)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := exec.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "provider.client_id")

	job, err := a.Jobs.GetJob(ctx, exec.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, job.Status)

	require.NoError(t, a.Shutdown(ctx))
}
