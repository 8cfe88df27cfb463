package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/tasksync/pkg/auth"
	"github.com/harrisonrobin/tasksync/pkg/config"
	"github.com/harrisonrobin/tasksync/pkg/google"
	"github.com/harrisonrobin/tasksync/pkg/listcache"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize tasksync with Google Tasks",
		Long: `Discards the cached Google token and runs the browser authorization flow
again. Only needed for the google backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Backend != config.BackendGoogle {
				return errors.New("auth only applies to the google backend (use --backend google)")
			}
			g := a.cfg.Google
			if err := auth.Reset(g.TokenFile); err != nil {
				return err
			}

			cache, err := listcache.New(g.ListCacheFile)
			if err != nil {
				a.logger.Warn("list cache unreadable", "error", err)
			}
			paths := auth.Paths{CredentialsFile: g.CredentialsFile, TokenFile: g.TokenFile}
			if _, err := google.NewClient(cmd.Context(), paths, cache, cmd.ErrOrStderr(), a.logger); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", g.TokenFile)
			return nil
		},
	}
}
