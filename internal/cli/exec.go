package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-sync/internal/jobs"
)

type execKind struct {
	use   string
	short string
	typ   jobs.JobType
}

var (
	execSync         = execKind{use: "sync", short: "Run a sync for a profile", typ: jobs.JobTypeSync}
	execTestProvider = execKind{use: "test-provider", short: "Check a profile's banking credentials", typ: jobs.JobTypeTestProvider}
	execTestLedger   = execKind{use: "test-ledger", short: "Check a profile's ledger connection", typ: jobs.JobTypeTestLedger}
)

// NewExecCommand creates one of the three execution commands.
func NewExecCommand(rootOpts *RootOptions, kind execKind) *cobra.Command {
	return &cobra.Command{
		Use:          kind.use + " <profile-id>",
		Short:        kind.short,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecution(cmd, rootOpts, kind, args[0])
		},
	}
}

func runExecution(cmd *cobra.Command, opts *RootOptions, kind execKind, profileID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := opts.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	exec, err := a.Orchestrator.Trigger(ctx, profileID, kind.typ, jobs.TriggerManual)
	if err != nil {
		return err
	}

	// An interrupt stops waiting; the execution finishes its current
	// network call and releases the ledger session on its own.
	res, err := exec.Wait(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted, waiting for the execution to stop...")
		res, _ = exec.Wait(context.Background())
	}

	job, err := a.Jobs.GetJob(context.Background(), exec.JobID)
	if err != nil {
		return err
	}
	if err := writeJob(cmd.OutOrStdout(), opts.Format, job); err != nil {
		return err
	}

	if !res.Success {
		return fmt.Errorf("%s failed: %s", kind.use, res.Message)
	}
	return nil
}
