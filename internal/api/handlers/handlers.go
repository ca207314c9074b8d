package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/api/middleware"
	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/orchestrator"
)

// DefaultWait bounds how long a request waits for a test command.
const DefaultWait = 2 * time.Minute

// Orchestrator is the command surface the handlers drive.
type Orchestrator interface {
	Trigger(ctx context.Context, profileID string, typ jobs.JobType, trigger jobs.Trigger) (*orchestrator.Execution, error)
	Running() []string
	NextRuns() map[string]time.Time
}

// ProfileSource lists configured profiles.
type ProfileSource interface {
	Profiles() []domain.SyncProfile
}

// Reloader re-reads the profiles file and reschedules.
type Reloader interface {
	ReloadProfiles() (int, error)
}

// LogSource serves the recent log stream.
type LogSource interface {
	Recent(limit int, profileID string) []domain.LogEvent
}

// ProfileView is a profile as shown on the dashboard, credentials masked.
type ProfileView struct {
	domain.SyncProfile
	Running bool       `json:"running"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// MaskProfile hides every credential of p.
func MaskProfile(p domain.SyncProfile) domain.SyncProfile {
	p.Provider.ClientID = logger.Mask(p.Provider.ClientID)
	p.Provider.SecretID = logger.Mask(p.Provider.SecretID)
	p.Provider.APIKey = logger.Mask(p.Provider.APIKey)
	p.Ledger.Password = logger.Mask(p.Ledger.Password)
	return p
}

// ProfilesHandler handles profile endpoints and the three commands.
type ProfilesHandler struct {
	profiles ProfileSource
	orch     Orchestrator
	reloader Reloader
	store    jobs.JobStore
	wait     time.Duration
	log      zerolog.Logger
}

// NewProfilesHandler creates a new profiles handler.
func NewProfilesHandler(profiles ProfileSource, orch Orchestrator, reloader Reloader, store jobs.JobStore, log zerolog.Logger) *ProfilesHandler {
	return &ProfilesHandler{
		profiles: profiles,
		orch:     orch,
		reloader: reloader,
		store:    store,
		wait:     DefaultWait,
		log:      log,
	}
}

// ListProfiles handles GET /api/profiles
func (h *ProfilesHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	running := make(map[string]bool)
	for _, id := range h.orch.Running() {
		running[id] = true
	}
	next := h.orch.NextRuns()

	views := make([]ProfileView, 0)
	for _, p := range h.profiles.Profiles() {
		v := ProfileView{SyncProfile: MaskProfile(p), Running: running[p.ID]}
		if t, ok := next[p.ID]; ok && !t.IsZero() {
			t := t
			v.NextRun = &t
		}
		views = append(views, v)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": views,
		"count":    len(views),
	})
}

// Reload handles POST /api/profiles/reload
func (h *ProfilesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	scheduled, err := h.reloader.ReloadProfiles()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reload profiles")
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled": scheduled,
		"profiles":  len(h.profiles.Profiles()),
	})
}

// Sync handles POST /api/profiles/{id}/sync. It answers 202 immediately
// unless ?wait=true is given.
func (h *ProfilesHandler) Sync(w http.ResponseWriter, r *http.Request, profileID string) {
	h.command(w, r, profileID, jobs.JobTypeSync, r.URL.Query().Get("wait") == "true")
}

// TestProvider handles POST /api/profiles/{id}/test-provider
func (h *ProfilesHandler) TestProvider(w http.ResponseWriter, r *http.Request, profileID string) {
	h.command(w, r, profileID, jobs.JobTypeTestProvider, true)
}

// TestLedger handles POST /api/profiles/{id}/test-ledger
func (h *ProfilesHandler) TestLedger(w http.ResponseWriter, r *http.Request, profileID string) {
	h.command(w, r, profileID, jobs.JobTypeTestLedger, true)
}

func (h *ProfilesHandler) command(w http.ResponseWriter, r *http.Request, profileID string, typ jobs.JobType, wait bool) {
	ctx := r.Context()

	exec, err := h.orch.Trigger(ctx, profileID, typ, jobs.TriggerManual)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownProfile):
		middleware.WriteError(w, http.StatusNotFound, "Profile not found")
		return
	case errors.Is(err, orchestrator.ErrBusy):
		middleware.WriteError(w, http.StatusConflict, "Profile is busy")
		return
	case errors.Is(err, orchestrator.ErrStopped):
		middleware.WriteError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	case err != nil:
		h.log.Error().Err(err).Str("profile_id", profileID).Msg("Failed to trigger execution")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to start execution")
		return
	}

	if !wait {
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id":     exec.JobID,
			"profile_id": profileID,
			"type":       string(typ),
			"status":     string(jobs.JobStatusRunning),
		})
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.wait)
	defer cancel()

	res, err := exec.Wait(waitCtx)
	if err != nil {
		// still running; the job record will carry the result
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id": exec.JobID,
			"status": string(jobs.JobStatusRunning),
		})
		return
	}

	job, err := h.store.GetJob(ctx, exec.JobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", exec.JobID).Msg("Failed to load finished job")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"job_id": exec.JobID, "result": res})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": exec.JobID,
		"result": res,
		"events": job.Events,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		ProfileID: query.Get("profile_id"),
		Status:    jobs.JobStatus(query.Get("status")),
		Type:      jobs.JobType(query.Get("type")),
		Limit:     50,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	// Events are served by GET /api/jobs/{id}
	for _, j := range jobsList {
		j.Events = nil
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// LogsHandler serves the recent log stream.
type LogsHandler struct {
	source LogSource
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(source LogSource) *LogsHandler {
	return &LogsHandler{source: source}
}

// Recent handles GET /api/logs?limit=N&profile_id=ID
func (h *LogsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 100
	if limitStr := query.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events := h.source.Recent(limit, query.Get("profile_id"))
	if events == nil {
		events = []domain.LogEvent{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
