// Package cli wires configuration, logging and the sync engine into the
// tasksync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/tasksync/pkg/config"
	"github.com/harrisonrobin/tasksync/pkg/logging"
	"github.com/harrisonrobin/tasksync/pkg/remote"
)

// app carries what every command needs once the root has run.
type app struct {
	configPath string
	backend    string
	dryRun     bool
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	now    func() time.Time

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// openStore builds the external store; replaced in tests.
	openStore func(ctx context.Context, a *app) (remote.Store, func() error, error)
}

func newApp() *app {
	return &app{
		now:       time.Now,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		openStore: openStore,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tasksync",
		Short: "Keep daily note checkboxes in sync with an external task store",
		Long: `tasksync mirrors the checkbox tasks of today's daily note into an external
task store (Apple Reminders through a helper command, or Google Tasks) and
pulls completions made there back into the note.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/tasksync/config.yaml)")
	flags.StringVar(&a.backend, "backend", "", "external store: command or google (overrides config)")
	flags.BoolVar(&a.dryRun, "dry-run", false, "run against an in-memory store and a scratch copy of state")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newSyncCmd(a),
		newPullCmd(a),
		newHookCmd(a),
		newStatusCmd(a),
		newAuthCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Backend = a.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.verbose {
		level = logging.LevelDebug
	}
	logger, closer, err := logging.New(logging.Options{
		Dir:           cfg.Logging.Dir,
		Level:         level,
		RetentionDays: cfg.Logging.RetentionDays,
		Now:           a.now,
	})
	if err != nil {
		// Logging must not stop a sync.
		fmt.Fprintf(a.stderr, "tasksync: %v\n", err)
		logger, closer = logging.Discard(), nil
	}
	a.logger = logger
	a.closer = closer
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	a := newApp()
	root := newRootCmd(a)
	root.Version = version
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
