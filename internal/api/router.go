// Package api assembles the dashboard HTTP surface.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/api/handlers"
	"github.com/dvloznov/ledger-sync/internal/api/middleware"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

// Deps are the components the routes call into.
type Deps struct {
	Profiles     handlers.ProfileSource
	Orchestrator handlers.Orchestrator
	Reloader     handlers.Reloader
	Jobs         jobs.JobStore
	Logs         handlers.LogSource

	// Token enables bearer authentication on /api/ routes.
	Token  string
	Logger zerolog.Logger
}

// NewRouter builds the mux and wraps it in the middleware chain.
func NewRouter(d Deps) http.Handler {
	profilesHandler := handlers.NewProfilesHandler(d.Profiles, d.Orchestrator, d.Reloader, d.Jobs, d.Logger)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Logger)
	logsHandler := handlers.NewLogsHandler(d.Logs)

	mux := http.NewServeMux()

	// Profiles endpoints
	mux.HandleFunc("/api/profiles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			profilesHandler.ListProfiles(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/profiles/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
		if rest == "reload" {
			profilesHandler.Reload(w, r)
			return
		}

		// Extract profile ID and command from path
		profileID, command, ok := strings.Cut(rest, "/")
		if !ok || profileID == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		switch command {
		case "sync":
			profilesHandler.Sync(w, r, profileID)
		case "test-provider":
			profilesHandler.TestProvider(w, r, profileID)
		case "test-ledger":
			profilesHandler.TestLedger(w, r, profileID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Log stream
	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			logsHandler.Recent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"time":    time.Now().Format(time.RFC3339),
			"running": d.Orchestrator.Running(),
		})
	})

	// Apply middleware
	return middleware.Recovery(d.Logger)(
		middleware.RequestID(
			middleware.Logger(d.Logger)(
				middleware.CORS(
					middleware.Auth(d.Token)(mux),
				),
			),
		),
	)
}
