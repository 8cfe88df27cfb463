package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/harrisonrobin/tasksync/pkg/markdown"
	"github.com/harrisonrobin/tasksync/pkg/state"
	"github.com/harrisonrobin/tasksync/pkg/tombstone"
)

// Engine runs whole sync passes against files on disk. It owns no state
// between calls; everything is loaded and saved per pass.
type Engine struct {
	Reconciler    *Reconciler
	Parser        *markdown.Parser
	StatePath     string
	TombstonePath string
	Logger        *slog.Logger
	Now           func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return e.Reconciler.Logger
	}
	return e.Logger
}

func (e *Engine) loadState() *state.Store {
	st, err := state.Load(e.StatePath)
	if err != nil {
		e.logger().Warn("state unusable, starting empty", "path", e.StatePath, "error", err)
	}
	return st
}

// Sync pushes the tasks of docPath to the external store. An unreadable
// document fails the pass before any external call is made.
func (e *Engine) Sync(ctx context.Context, docPath string) (Summary, error) {
	tasks, err := e.Parser.ParseFile(docPath)
	if err != nil {
		return Summary{}, err
	}

	st := e.loadState()
	epoch := state.EpochOf(e.now())
	if prev := st.Epoch; st.Rollover(epoch) {
		e.logger().Info("epoch rollover", "from", prev, "to", epoch)
	}

	pending, err := tombstone.NewTable(e.TombstonePath)
	if err != nil {
		e.logger().Warn("pending deletes unreadable", "path", e.TombstonePath, "error", err)
	}
	if pending != nil {
		e.Reconciler.Pending = pending
		defer func() { e.Reconciler.Pending = nil }()
	}

	sum := e.Reconciler.Run(ctx, tasks, st)
	e.logger().Info("sync finished", "document", docPath, "tasks", len(tasks), "summary", sum.Digest())

	if err := state.Save(e.StatePath, st); err != nil {
		return sum, err
	}
	if pending != nil {
		if err := pending.Save(); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// PullFile applies external completion changes to docPath. It does nothing
// unless the state belongs to the current epoch.
func (e *Engine) PullFile(ctx context.Context, docPath string) (PullSummary, error) {
	st := e.loadState()
	today := state.EpochOf(e.now())
	if st.Epoch != today {
		return PullSummary{Skipped: "state is from " + orNone(st.Epoch), Stale: true}, nil
	}
	if len(st.Mappings) == 0 {
		return PullSummary{Skipped: "nothing synced yet"}, nil
	}

	content, err := os.ReadFile(docPath)
	if err != nil {
		return PullSummary{}, fmt.Errorf("reading %s: %w", docPath, err)
	}

	patched, sum := e.Reconciler.Pull(ctx, content, st)
	e.logger().Info("pull finished", "document", docPath, "summary", sum.Digest())

	if !bytes.Equal(patched, content) {
		if err := atomic.WriteFile(docPath, bytes.NewReader(patched)); err != nil {
			return sum, fmt.Errorf("writing %s: %w", docPath, err)
		}
	}
	if sum.Changes() > 0 {
		if err := state.Save(e.StatePath, st); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func orNone(epoch string) string {
	if epoch == "" {
		return "no epoch"
	}
	return epoch
}
