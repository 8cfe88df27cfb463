package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [note]",
		Short: "Push the note's tasks to the external store",
		Long: `Creates, completes, updates and deletes external records so they match the
checkbox tasks of the note. Without an argument today's daily note is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.notePath(args)
			if err != nil {
				return err
			}
			s, err := a.newSession(cmd.Context(), doc)
			if err != nil {
				return err
			}
			defer s.close()

			sum, err := s.sync(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), sum.Digest())
			for _, e := range sum.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "  error:", e)
			}
			return err
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [note]",
		Short: "Copy completions made in the external store back into the note",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.notePath(args)
			if err != nil {
				return err
			}
			s, err := a.newSession(cmd.Context(), doc)
			if err != nil {
				return err
			}
			defer s.close()

			sum, err := s.pull(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), sum.Digest())
			for _, e := range sum.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "  error:", e)
			}
			return err
		},
	}
}

func (a *app) notePath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return a.cfg.DailyNotePath(a.now())
}
