package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/tasksync/pkg/hook"
)

func newHookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Entry points for editor agent hooks",
		Long: `Hook commands read one JSON event on stdin and always answer with one JSON
object on stdout. They exit 0 even when syncing fails, so a broken store never
blocks the host.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "post-tool-use",
			Short: "Sync after the daily note was written or edited",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return hook.Write(cmd.OutOrStdout(), a.postToolUse(cmd))
			},
		},
		&cobra.Command{
			Use:   "session-start",
			Short: "Pull completions from the external store when a session starts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return hook.Write(cmd.OutOrStdout(), a.sessionStart(cmd))
			},
		},
	)
	return cmd
}

func (a *app) postToolUse(cmd *cobra.Command) hook.Output {
	log := a.logger.With("hook", hook.EventPostToolUse)

	in, err := hook.ReadInput(cmd.InOrStdin())
	if err != nil {
		log.Warn("ignoring event", "error", err)
		return hook.Success
	}
	daily, err := a.cfg.DailyNotePath(a.now())
	if err != nil {
		log.Warn("no daily note", "error", err)
		return hook.Success
	}
	if !hook.ShouldSync(in, daily) {
		log.Debug("not the daily note", "tool", in.ToolName, "file", in.ToolInput.FilePath)
		return hook.Success
	}

	start := time.Now()
	s, err := a.newSession(cmd.Context(), daily)
	if err != nil {
		log.Error("sync setup failed", "error", err)
		return hook.Success
	}
	defer s.close()

	sum, err := s.sync(cmd.Context())
	if err != nil {
		log.Error("sync failed", "error", err)
		return hook.Success
	}
	log.Info("sync done", "tool", in.ToolName, "duration", time.Since(start), "created", sum.Created,
		"recovered", sum.Recovered, "completed", sum.Completed, "deleted", sum.Deleted, "errors", len(sum.Errors))
	return hook.ForSync(sum)
}

func (a *app) sessionStart(cmd *cobra.Command) hook.Output {
	log := a.logger.With("hook", hook.EventSessionStart)
	start := time.Now()

	// SessionStart carries nothing we need; the body is read and dropped.
	if _, err := hook.ReadInput(cmd.InOrStdin()); err != nil {
		log.Debug("unreadable event", "error", err)
	}

	daily, err := a.cfg.DailyNotePath(a.now())
	if err != nil {
		log.Warn("no daily note", "error", err)
		return hook.Success
	}
	s, err := a.newSession(cmd.Context(), daily)
	if err != nil {
		log.Error("pull setup failed", "error", err)
		return hook.Success
	}
	defer s.close()

	sum, err := s.pull(cmd.Context())
	if err != nil {
		log.Error("pull failed", "error", err)
		return hook.Success
	}
	log.Info("pull done", "duration", time.Since(start), "completed", sum.Completed,
		"uncompleted", sum.Uncompleted, "skipped", sum.Skipped, "errors", len(sum.Errors))
	return hook.ForPull(sum, time.Since(start))
}
