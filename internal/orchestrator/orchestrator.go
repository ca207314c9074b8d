// Package orchestrator schedules and admits executions. It keeps one cron
// entry per enabled profile and at most one running execution per profile;
// every execution runs in its own goroutine with its own working directory.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/reconcile"
	"github.com/dvloznov/ledger-sync/internal/runlog"
)

var (
	// ErrBusy is returned when the profile already has a running execution.
	ErrBusy = errors.New("profile is busy")

	// ErrUnknownProfile is returned for profile ids missing from the configuration.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("orchestrator stopped")
)

const archiveTimeout = 30 * time.Second

// WorkRoot is the directory under the data dir holding per-profile working directories.
const WorkRoot = "work"

// Runner performs the three commands. *ledgersync.Executor satisfies it.
type Runner interface {
	Sync(ctx context.Context, profile domain.SyncProfile, workDir string, rep reconcile.Reporter) domain.Result
	TestProvider(ctx context.Context, profile domain.SyncProfile, rep reconcile.Reporter) domain.Result
	TestLedger(ctx context.Context, profile domain.SyncProfile, workDir string, rep reconcile.Reporter) domain.Result
}

// ProfileSource hands out copies of the configured profiles.
type ProfileSource interface {
	Profiles() []domain.SyncProfile
	Profile(id string) (domain.SyncProfile, bool)
}

// Archiver receives every finished execution record.
type Archiver interface {
	Archive(ctx context.Context, job *jobs.SyncJob) error
}

// Options configures an Orchestrator.
type Options struct {
	Runner   Runner
	Profiles ProfileSource
	Jobs     jobs.JobStore

	// Buffer receives every log event; optional.
	Buffer    *runlog.Buffer
	Archivers []Archiver

	// DataDir holds the per-profile working directories.
	DataDir string
	Logger  zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

// Orchestrator owns the schedule and the set of running profiles.
type Orchestrator struct {
	runner    Runner
	profiles  ProfileSource
	store     jobs.JobStore
	buffer    *runlog.Buffer
	archivers []Archiver
	dataDir   string
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string

	cron *cron.Cron

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	running  map[string]*Execution
	stopped  bool
	inflight sync.WaitGroup
}

// New creates an orchestrator. Call Start to begin scheduling.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		runner:    opts.Runner,
		profiles:  opts.Profiles,
		store:     opts.Jobs,
		buffer:    opts.Buffer,
		archivers: opts.Archivers,
		dataDir:   opts.DataDir,
		log:       opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:       opts.Now,
		newID:     opts.NewID,
		entries:   make(map[string]cron.EntryID),
		running:   make(map[string]*Execution),
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.New().String() }
	}
	o.cron = cron.New(cron.WithLogger(cronLogger{log: o.log}))
	return o
}

// Start loads the schedule and starts the cron loop.
func (o *Orchestrator) Start() int {
	n := o.Reload()
	o.cron.Start()
	o.log.Info().Int("scheduled", n).Msg("Orchestrator started")
	return n
}

// Reload re-derives the cron entries from the current profiles and returns
// how many profiles are scheduled. Profiles with an invalid schedule are
// logged and left manual-only.
func (o *Orchestrator) Reload() int {
	profiles := o.profiles.Profiles()

	o.mu.Lock()
	defer o.mu.Unlock()

	for id, entry := range o.entries {
		o.cron.Remove(entry)
		delete(o.entries, id)
	}

	for _, p := range profiles {
		if !p.Enabled || p.Schedule == "" {
			continue
		}
		profileID := p.ID
		entry, err := o.cron.AddFunc(p.Schedule, func() { o.scheduled(profileID) })
		if err != nil {
			o.log.Error().Err(err).Str("profile_id", profileID).Str("schedule", p.Schedule).
				Msg("Invalid schedule, profile left manual-only")
			continue
		}
		o.entries[profileID] = entry
	}

	o.log.Info().Int("profiles", len(profiles)).Int("scheduled", len(o.entries)).Msg("Schedule reloaded")
	return len(o.entries)
}

func (o *Orchestrator) scheduled(profileID string) {
	_, err := o.Trigger(context.Background(), profileID, jobs.JobTypeSync, jobs.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		o.log.Warn().Str("profile_id", profileID).Msg("Scheduled sync skipped, previous run still in progress")
	default:
		o.log.Error().Err(err).Str("profile_id", profileID).Msg("Scheduled sync not started")
	}
}

// NextRuns returns the next scheduled time of every scheduled profile.
func (o *Orchestrator) NextRuns() map[string]time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := make(map[string]time.Time, len(o.entries))
	for id, entry := range o.entries {
		next[id] = o.cron.Entry(entry).Next
	}
	return next
}

// Running returns the ids of profiles with an execution in progress.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WorkDir is the private working directory of a profile's executions.
func (o *Orchestrator) WorkDir(profileID string) string {
	return filepath.Join(o.dataDir, WorkRoot, profileID)
}

// Trigger admits an execution for the profile and starts it in the
// background. It never waits for a running execution: a profile that is
// already executing yields ErrBusy.
func (o *Orchestrator) Trigger(ctx context.Context, profileID string, typ jobs.JobType, trigger jobs.Trigger) (*Execution, error) {
	profile, ok := o.profiles.Profile(profileID)
	if !ok {
		return nil, fmt.Errorf("Trigger: %w: %s", ErrUnknownProfile, profileID)
	}
	if trigger == jobs.TriggerScheduled && !profile.Enabled {
		return nil, fmt.Errorf("Trigger: profile %s is disabled", profileID)
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrStopped
	}
	if _, busy := o.running[profileID]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("Trigger: %w: %s", ErrBusy, profileID)
	}
	exec := newExecution(o.newID(), profileID, typ, trigger, o.now())
	o.running[profileID] = exec
	o.inflight.Add(1)
	o.mu.Unlock()

	o.log.Info().
		Str("profile_id", profileID).
		Str("job_id", exec.JobID).
		Str("type", string(typ)).
		Str("trigger", string(trigger)).
		Msg("Execution admitted")

	// The execution outlives the caller's request.
	go o.run(context.WithoutCancel(ctx), exec, profile)
	return exec, nil
}

// run records and performs one execution. The profile slot is released and
// waiters are woken on every path, including a panic in the job store.
func (o *Orchestrator) run(ctx context.Context, exec *Execution, profile domain.SyncProfile) {
	defer o.inflight.Done()

	log := logger.WithFields(o.log, map[string]interface{}{
		"profile_id": profile.ID,
		"job_id":     exec.JobID,
	})
	ctx = logger.WithContext(ctx, log)

	res := domain.Result{Success: false, Message: "internal error"}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Execution bookkeeping panicked")
			res = domain.Result{Success: false, Message: fmt.Sprintf("internal error: %v", r)}
		}
		exec.result = res
		o.mu.Lock()
		delete(o.running, profile.ID)
		o.mu.Unlock()
		close(exec.done)
	}()

	job := &jobs.SyncJob{
		JobID:     exec.JobID,
		ProfileID: profile.ID,
		Type:      exec.Type,
		Trigger:   exec.Trigger,
		Status:    jobs.JobStatusRunning,
		CreatedAt: exec.CreatedAt,
	}
	started := o.now()
	job.StartedAt = &started
	o.save(ctx, log, job)

	var sink func(domain.LogEvent)
	if o.buffer != nil {
		sink = o.buffer.Publish
	}
	rec := runlog.NewRecorder(profile.ID, exec.JobID, sink, log)

	res = o.execute(ctx, exec, profile, rec, log)

	job.Finish(res, rec.Events(), o.now())
	o.save(ctx, log, job)
	o.archive(ctx, log, job)

	log.Info().
		Bool("success", res.Success).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Dur("duration", job.Duration()).
		Msg("Execution finished")
}

// execute runs the command and turns a panic into a failed result.
func (o *Orchestrator) execute(ctx context.Context, exec *Execution, profile domain.SyncProfile, rec *runlog.Recorder, log zerolog.Logger) (res domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Execution panicked")
			msg := fmt.Sprintf("internal error: %v", r)
			rec.Error("Sync failed: %s", msg)
			res = domain.Result{Success: false, Message: msg}
		}
	}()

	switch exec.Type {
	case jobs.JobTypeSync:
		return o.runner.Sync(ctx, profile, o.WorkDir(profile.ID), rec)
	case jobs.JobTypeTestProvider:
		return o.runner.TestProvider(ctx, profile, rec)
	case jobs.JobTypeTestLedger:
		return o.runner.TestLedger(ctx, profile, o.WorkDir(profile.ID), rec)
	default:
		msg := fmt.Sprintf("unknown job type %q", exec.Type)
		rec.Error("%s", msg)
		return domain.Result{Success: false, Message: msg}
	}
}

func (o *Orchestrator) save(ctx context.Context, log zerolog.Logger, job *jobs.SyncJob) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveJob(ctx, job); err != nil {
		log.Error().Err(err).Str("status", string(job.Status)).Msg("Failed to save execution record")
	}
}

func (o *Orchestrator) archive(ctx context.Context, log zerolog.Logger, job *jobs.SyncJob) {
	if len(o.archivers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	for _, a := range o.archivers {
		if err := archiveOne(ctx, a, job); err != nil {
			log.Error().Err(err).Msg("Failed to archive execution")
		}
	}
}

func archiveOne(ctx context.Context, a Archiver, job *jobs.SyncJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("archiver panicked: %v", r)
		}
	}()
	return a.Archive(ctx, job)
}

// Stop removes the schedule, refuses new triggers and waits for running
// executions until ctx ends.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	<-o.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.log.Info().Msg("Orchestrator stopped")
		return nil
	case <-ctx.Done():
		o.log.Warn().Strs("running", o.Running()).Msg("Stopped before executions finished")
		return ctx.Err()
	}
}
