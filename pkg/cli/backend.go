package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/harrisonrobin/tasksync/pkg/auth"
	"github.com/harrisonrobin/tasksync/pkg/config"
	"github.com/harrisonrobin/tasksync/pkg/google"
	"github.com/harrisonrobin/tasksync/pkg/listcache"
	"github.com/harrisonrobin/tasksync/pkg/markdown"
	"github.com/harrisonrobin/tasksync/pkg/reconcile"
	"github.com/harrisonrobin/tasksync/pkg/remote"
	"github.com/harrisonrobin/tasksync/pkg/state"
)

func noop() error { return nil }

// openStore returns the configured backend and a function that flushes
// whatever the backend caches locally.
func openStore(ctx context.Context, a *app) (remote.Store, func() error, error) {
	if a.dryRun {
		return remote.NewMemoryStore(), noop, nil
	}

	switch a.cfg.Backend {
	case config.BackendCommand:
		store, err := remote.NewCommandStore(a.cfg.Command...)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case config.BackendGoogle:
		cache, err := listcache.New(a.cfg.Google.ListCacheFile)
		if err != nil {
			a.logger.Warn("list cache unreadable, starting empty", "path", a.cfg.Google.ListCacheFile, "error", err)
		}
		paths := auth.Paths{CredentialsFile: a.cfg.Google.CredentialsFile, TokenFile: a.cfg.Google.TokenFile}
		client, err := google.NewClient(ctx, paths, cache, a.stderr, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, cache.Save, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
}

// session is one engine ready to run plus its cleanup.
type session struct {
	engine  *reconcile.Engine
	docPath string
	flush   func() error
	scratch string
}

func (s *session) close() {
	if s.scratch != "" {
		_ = os.RemoveAll(s.scratch)
	}
}

// newSession builds an engine for the note at docPath. In dry-run mode the
// state and the note are copied to a scratch directory first, so nothing the
// user owns is touched.
func (a *app) newSession(ctx context.Context, docPath string) (*session, error) {
	store, flush, err := a.openStore(ctx, a)
	if err != nil {
		return nil, err
	}

	r := reconcile.New(store, a.logger)
	r.Timeout = a.cfg.CallTimeout
	r.Now = a.now

	s := &session{
		docPath: docPath,
		flush:   flush,
		engine: &reconcile.Engine{
			Reconciler:    r,
			Parser:        markdown.NewParser(categoryRules(a.cfg.Categories), a.cfg.DefaultCategory, a.cfg.SubtaskProximity),
			StatePath:     a.cfg.StateFile,
			TombstonePath: a.cfg.TombstoneFile,
			Logger:        a.logger,
			Now:           a.now,
		},
	}
	if !a.dryRun {
		return s, nil
	}

	if s.scratch, err = os.MkdirTemp("", "tasksync-dry-run-"); err != nil {
		return nil, err
	}
	s.engine.StatePath = filepath.Join(s.scratch, "state.json")
	s.engine.TombstonePath = ""
	s.docPath = filepath.Join(s.scratch, filepath.Base(docPath))
	for src, dst := range map[string]string{a.cfg.StateFile: s.engine.StatePath, docPath: s.docPath} {
		if err := copyFile(src, dst); err != nil {
			s.close()
			return nil, err
		}
	}
	a.logger.Info("dry run", "scratch", s.scratch)
	return s, nil
}

func (s *session) sync(ctx context.Context) (reconcile.Summary, error) {
	var sum reconcile.Summary
	err := state.WithLock(s.engine.StatePath, state.LockTimeout, func() error {
		var err error
		sum, err = s.engine.Sync(ctx, s.docPath)
		return err
	})
	return sum, errors.Join(err, s.flush())
}

func (s *session) pull(ctx context.Context) (reconcile.PullSummary, error) {
	var sum reconcile.PullSummary
	err := state.WithLock(s.engine.StatePath, state.LockTimeout, func() error {
		var err error
		sum, err = s.engine.PullFile(ctx, s.docPath)
		return err
	})
	return sum, errors.Join(err, s.flush())
}

func categoryRules(rules []config.CategoryRule) []markdown.CategoryRule {
	out := make([]markdown.CategoryRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, markdown.CategoryRule{Keyword: r.Keyword, List: r.List})
	}
	return out
}

// copyFile copies src to dst. A missing src is not an error.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return atomic.WriteFile(dst, bytes.NewReader(data))
}
