package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-sync/internal/api"
	"github.com/dvloznov/ledger-sync/internal/app"
	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", os.Getenv("LEDGERSYNC_CONFIG"), "settings file (or set LEDGERSYNC_CONFIG env)")
	flag.Parse()

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		lg := logger.New()
		lg.Fatal().Err(err).Msg("Failed to load settings")
	}

	// Initialize logger
	log := logger.NewWithLevel(settings.LogLevel)

	if settings.APIToken == "" {
		log.Warn().Msg("No api_token configured - the API is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}

	// Create HTTP server
	server := &http.Server{
		Addr: settings.ListenAddr,
		Handler: api.NewRouter(api.Deps{
			Profiles:     a.Profiles,
			Orchestrator: a.Orchestrator,
			Reloader:     a,
			Jobs:         a.Jobs,
			Logs:         a.Buffer,
			Token:        settings.APIToken,
			Logger:       log,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	a.Orchestrator.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", settings.ListenAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Wait for interrupt signal or a server failure
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		// Running executions get the rest of the grace period
		return a.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
}
