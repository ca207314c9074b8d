package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	infraBQ "github.com/dvloznov/ledger-sync/internal/infra/bigquery"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Profile string
	Status  string
	Limit   int
	Remote  bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent executions",
		Long: `Show recent executions from the local history database, or from the
BigQuery archive with --remote.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Remote {
				return remoteHistory(cmd, opts)
			}
			return localHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Profile, "profile", "p", "", "only this profile")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only this status (running|completed|failed)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of executions")
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "read the BigQuery archive")

	return cmd
}

func localHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	a, err := opts.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Jobs.ListJobs(cmd.Context(), jobs.JobFilter{
		ProfileID: opts.Profile,
		Status:    jobs.JobStatus(opts.Status),
		Limit:     opts.Limit,
	})
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), list)
	}
	return writeJobTable(cmd.OutOrStdout(), list)
}

func remoteHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	s, err := opts.settings()
	if err != nil {
		return err
	}
	if !s.Archive.BigQueryEnabled() {
		return fmt.Errorf("BigQuery archive is not configured (archive.bigquery_project, archive.bigquery_dataset)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	var clientOpts []option.ClientOption
	if s.Archive.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(s.Archive.CredentialsFile))
	}
	archive, err := infraBQ.NewRunArchiver(ctx, s.Archive.BigQueryProject, s.Archive.BigQueryDataset, s.Archive.BigQueryTable, clientOpts...)
	if err != nil {
		return err
	}
	defer archive.Close()

	rows, err := archive.ListRuns(ctx, opts.Profile, opts.Limit)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tPROFILE\tTYPE\tSTATUS\tCREATED\tADDED\tMESSAGE")
	for _, r := range rows {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.JobID, r.ProfileID, r.JobType, r.Status, r.CreatedTS.Local().Format(time.DateTime), r.Added, r.Message)
	}
	return tw.Flush()
}
