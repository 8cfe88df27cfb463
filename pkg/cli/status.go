package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/tasksync/pkg/state"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the synced epoch and its mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := state.Load(a.cfg.StateFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			out := cmd.OutOrStdout()
			epoch := st.Epoch
			switch {
			case epoch == "":
				epoch = "none"
			case epoch != state.EpochOf(a.now()):
				epoch += " (stale)"
			}
			fmt.Fprintf(out, "Epoch:        %s\n", epoch)
			refreshed := "never"
			if st.LastRefresh != nil {
				refreshed = st.LastRefresh.Local().Format(time.DateTime)
			}
			fmt.Fprintf(out, "Last refresh: %s\n", refreshed)
			fmt.Fprintf(out, "Mappings:     %d\n", len(st.Mappings))
			if len(st.Mappings) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DONE\tFINGERPRINT\tCATEGORY\tLINE\tTASK")
			for _, m := range st.Mappings {
				done := "[ ]"
				if m.Completed {
					done = "[x]"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", done, m.Fingerprint, m.Category, m.LineNumber, m.Text)
			}
			return w.Flush()
		},
	}
}
