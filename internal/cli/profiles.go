package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-sync/internal/api/handlers"
	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/domain"
)

// NewProfilesCommand creates the profiles command.
func NewProfilesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "profiles",
		Short:        "List configured profiles",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.settings()
			if err != nil {
				return err
			}
			store, err := config.OpenFileStore(s.ProfilesFile)
			if err != nil {
				return err
			}

			profiles := store.Profiles()
			if rootOpts.Format == "json" {
				masked := make([]domain.SyncProfile, len(profiles))
				for i, p := range profiles {
					masked[i] = handlers.MaskProfile(p)
				}
				return writeJSON(cmd.OutOrStdout(), masked)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tENABLED\tSCHEDULE\tBUDGET\tCONFIG")
			for _, p := range profiles {
				status := "ok"
				if err := p.Validate(); err != nil {
					status = domain.Describe(err)
				}
				schedule := p.Schedule
				if schedule == "" {
					schedule = "manual"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n",
					p.ID, p.DisplayName(), p.Enabled, schedule, p.Ledger.BudgetID, status)
			}
			return tw.Flush()
		},
	}
}
