package main

import (
	"context"
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-sync/internal/config"
	infraBQ "github.com/dvloznov/ledger-sync/internal/infra/bigquery"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGERSYNC_CONFIG"), "settings file (or set LEDGERSYNC_CONFIG env)")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	log := logger.New()

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	}
	arch := settings.Archive
	if !arch.BigQueryEnabled() {
		log.Fatal().Msg("archive.bigquery_project and archive.bigquery_dataset are required")
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if arch.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(arch.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, arch.BigQueryProject, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().
		Str("project", arch.BigQueryProject).
		Str("dataset", arch.BigQueryDataset).
		Str("table", arch.BigQueryTable).
		Msg("Connected to BigQuery")

	migrator := infraBQ.NewMigrator(client, arch.BigQueryProject, arch.BigQueryDataset, arch.BigQueryTable, *appliedBy)

	pending, err := migrator.Pending(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to determine pending migrations")
	}
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Archive is up to date.")
		return
	}

	for _, m := range pending {
		if *dryRun {
			log.Info().Int("version", m.Version).Str("name", m.Name).Msg("[PENDING]")
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("[RUN]")
		if err := migrator.Apply(ctx, m); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("[OK]")
	}

	if !*dryRun {
		log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
}
