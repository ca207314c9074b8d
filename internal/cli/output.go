package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/jobs"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJob prints an execution's log stream followed by its outcome.
func writeJob(w io.Writer, format string, job *jobs.SyncJob) error {
	if format == "json" {
		return writeJSON(w, job)
	}
	for _, e := range job.Events {
		fmt.Fprintln(w, formatEvent(e))
	}
	return nil
}

func formatEvent(e domain.LogEvent) string {
	marker := " "
	switch e.Level {
	case domain.LevelSuccess:
		marker = "+"
	case domain.LevelError:
		marker = "!"
	}
	return fmt.Sprintf("%s %s %s", e.Timestamp.Local().Format("15:04:05"), marker, e.Message)
}

// writeJobTable prints one line per job.
func writeJobTable(w io.Writer, list []*jobs.SyncJob) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tPROFILE\tTYPE\tTRIGGER\tSTATUS\tSTARTED\tDURATION\tMESSAGE")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.JobID, j.ProfileID, j.Type, j.Trigger, j.Status,
			j.CreatedAt.Local().Format(time.DateTime),
			j.Duration().Round(time.Millisecond), j.Message)
	}
	return tw.Flush()
}
