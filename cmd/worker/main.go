package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-sync/internal/app"
	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGERSYNC_CONFIG"), "settings file (or set LEDGERSYNC_CONFIG env)")
	flag.Parse()

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		lg := logger.New()
		lg.Fatal().Err(err).Msg("Failed to load settings")
	}

	// Initialize logger
	log := logger.NewWithLevel(settings.LogLevel)

	a, err := app.New(context.Background(), settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}

	scheduled := a.Orchestrator.Start()
	log.Info().Int("scheduled", scheduled).Msg("Worker started, waiting for schedules...")

	// SIGHUP reloads the profiles file; SIGINT/SIGTERM stop the worker.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			n, err := a.ReloadProfiles()
			if err != nil {
				log.Error().Err(err).Msg("Reload failed, keeping previous profiles")
				continue
			}
			log.Info().Int("scheduled", n).Msg("Profiles reloaded")
			continue
		}
		break
	}

	log.Info().Strs("running", a.Orchestrator.Running()).Msg("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Worker stopped before executions finished")
		os.Exit(1)
	}

	log.Info().Msg("Worker stopped")
}
