// Package app wires the components shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-sync/internal/config"
	infraBQ "github.com/dvloznov/ledger-sync/internal/infra/bigquery"
	"github.com/dvloznov/ledger-sync/internal/infra/gcs"
	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-sync/internal/jobs/sqlite"
	"github.com/dvloznov/ledger-sync/internal/ledgersync"
	"github.com/dvloznov/ledger-sync/internal/orchestrator"
	"github.com/dvloznov/ledger-sync/internal/runlog"
)

// httpTimeout bounds a single provider or ledger request.
const httpTimeout = 60 * time.Second

var _ orchestrator.Runner = (*ledgersync.Executor)(nil)

// App holds the long-lived components of a process.
type App struct {
	Settings     *config.Settings
	Profiles     *config.FileStore
	Jobs         jobs.JobStore
	Buffer       *runlog.Buffer
	Executor     *ledgersync.Executor
	Orchestrator *orchestrator.Orchestrator
	Log          zerolog.Logger

	closers []io.Closer
}

// New builds every component from settings. Archivers are created only when
// configured.
func New(ctx context.Context, settings *config.Settings, log zerolog.Logger) (*App, error) {
	if err := os.MkdirAll(settings.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app.New: creating data dir: %w", err)
	}

	profiles, err := config.OpenFileStore(settings.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	a := &App{
		Settings: settings,
		Profiles: profiles,
		Buffer:   runlog.NewBuffer(settings.LogBufferSize),
		Log:      log,
	}

	if settings.HistoryDB == config.HistoryInMemory {
		a.Jobs = inmemory.NewStore()
	} else {
		store, err := sqlite.Open(settings.HistoryDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Jobs = store
		a.closers = append(a.closers, store)
	}

	archivers, err := a.archivers(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	httpClient := &http.Client{Timeout: httpTimeout}
	a.Executor = ledgersync.NewExecutor(ledgersync.Options{
		Providers: ledgersync.InvestecProviders(httpClient),
		Sessions:  ledgersync.LedgerSessions(httpClient, settings.PurgeWorkdir, log),
		Taxonomy:  profiles.DefaultTaxonomy,
		BatchSize: settings.ImportBatchSize,
		Logger:    log,
	})

	a.Orchestrator = orchestrator.New(orchestrator.Options{
		Runner:    a.Executor,
		Profiles:  profiles,
		Jobs:      a.Jobs,
		Buffer:    a.Buffer,
		Archivers: archivers,
		DataDir:   settings.DataDir,
		Logger:    log,
	})

	log.Info().
		Str("data_dir", settings.DataDir).
		Str("profiles_file", settings.ProfilesFile).
		Str("history_db", settings.HistoryDB).
		Int("profiles", len(profiles.Profiles())).
		Int("archivers", len(archivers)).
		Msg("Application initialised")

	return a, nil
}

func (a *App) archivers(ctx context.Context) ([]orchestrator.Archiver, error) {
	arch := a.Settings.Archive

	var opts []option.ClientOption
	if arch.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(arch.CredentialsFile))
	}

	var out []orchestrator.Archiver
	if arch.GCSEnabled() {
		g, err := gcs.NewArchiver(ctx, arch.GCSBucket, arch.GCSPrefix, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g)
		out = append(out, g)
	}
	if arch.BigQueryEnabled() {
		b, err := infraBQ.NewRunArchiver(ctx, arch.BigQueryProject, arch.BigQueryDataset, arch.BigQueryTable, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b)
		out = append(out, b)
	}
	return out, nil
}

// ReloadProfiles re-reads the profiles file and re-derives the schedule.
// On a read error the previous profiles and schedule stay in place.
func (a *App) ReloadProfiles() (int, error) {
	if err := a.Profiles.Load(); err != nil {
		return 0, err
	}
	return a.Orchestrator.Reload(), nil
}

// Shutdown stops scheduling and waits for running executions until ctx ends.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Orchestrator.Stop(ctx)
	return errors.Join(err, a.Close())
}

// Close releases stores and clients. It does not wait for executions.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Buffer != nil {
		a.Buffer.Close()
	}
	return errors.Join(errs...)
}
