// Package reconcile keeps the checkbox tasks of a note and the records of an
// external store in step.
//
// A run is synchronous and assumes it is the only one touching the state
// file; see package state for the locking contract.
package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/harrisonrobin/tasksync/pkg/fingerprint"
	"github.com/harrisonrobin/tasksync/pkg/model"
	"github.com/harrisonrobin/tasksync/pkg/remote"
	"github.com/harrisonrobin/tasksync/pkg/state"
	"github.com/harrisonrobin/tasksync/pkg/tombstone"
)

// DefaultCallTimeout bounds a single external store call.
const DefaultCallTimeout = 30 * time.Second

// Reconciler applies the difference between extracted tasks and stored
// mappings to an external store.
type Reconciler struct {
	Store   remote.Store
	Logger  *slog.Logger
	Timeout time.Duration
	Now     func() time.Time
	// Pending holds deletes to retry. Optional.
	Pending *tombstone.Table
}

// New returns a reconciler with default timeout and clock.
func New(store remote.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{
		Store:   store,
		Logger:  logger,
		Timeout: DefaultCallTimeout,
		Now:     time.Now,
	}
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Reconciler) call(ctx context.Context, fn func(context.Context) error) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

func (r *Reconciler) setCompleted(ctx context.Context, id string, completed bool) error {
	return r.call(ctx, func(c context.Context) error {
		if completed {
			return r.Store.Complete(c, id)
		}
		return r.Store.Uncomplete(c, id)
	})
}

func (s *Summary) countToggle(completed bool) {
	if completed {
		s.Completed++
	} else {
		s.Uncompleted++
	}
}

// Run reconciles tasks against st and the external store. st.Mappings is
// replaced by the mappings of the tasks seen in this pass. A failing call
// is recorded in the summary and the run moves on to the next task.
func (r *Reconciler) Run(ctx context.Context, tasks []model.Task, st *state.Store) Summary {
	var sum Summary
	now := r.now()

	r.retryDeletes(ctx, st.Epoch, now, &sum)

	existing := st.Index()
	claimed := make(map[string]bool, len(existing))
	for _, m := range existing {
		claimed[m.ExternalID] = true
	}

	seen := make(map[string]bool, len(tasks))
	next := make([]state.Mapping, 0, len(tasks))

	for i := range tasks {
		t := &tasks[i]
		if seen[t.Fingerprint] {
			r.Logger.Warn("duplicate task ignored", "fingerprint", t.Fingerprint, "line", t.Line, "text", t.RawText)
			continue
		}
		seen[t.Fingerprint] = true

		if m, ok := existing[t.Fingerprint]; ok {
			refreshed, gone := r.refresh(ctx, t, *m, now, &sum)
			if !gone {
				next = append(next, refreshed)
				continue
			}
			r.Logger.Warn("record vanished from store, syncing task again", "id", m.ExternalID, "fingerprint", t.Fingerprint)
		}

		if m, ok := r.adopt(ctx, t, st.Epoch, claimed, now, &sum); ok {
			claimed[m.ExternalID] = true
			next = append(next, m)
		}
	}

	for _, m := range st.Mappings {
		if !seen[m.Fingerprint] {
			r.remove(ctx, m, st.Epoch, now, &sum)
		}
	}

	st.Replace(next, now)
	return sum
}

// refresh syncs a task that already has a mapping. gone reports that the
// external record no longer exists.
func (r *Reconciler) refresh(ctx context.Context, t *model.Task, m state.Mapping, now time.Time, sum *Summary) (state.Mapping, bool) {
	changed := false

	if t.Completed != m.Completed {
		err := r.setCompleted(ctx, m.ExternalID, t.Completed)
		switch {
		case errors.Is(err, remote.ErrNotFound):
			return m, true
		case err != nil:
			sum.fail("set completed=%t on %q: %v", t.Completed, t.CleanText, err)
		default:
			m.Completed = t.Completed
			sum.countToggle(t.Completed)
			changed = true
			r.Logger.Info("completion pushed", "id", m.ExternalID, "completed", t.Completed)
		}
	}

	if MappingNeedsUpdate(t, &m) {
		body := BuildBody(t)
		err := r.call(ctx, func(c context.Context) error { return r.Store.Update(c, m.ExternalID, body) })
		switch {
		case errors.Is(err, remote.ErrNotFound):
			return m, true
		case err != nil:
			sum.fail("update %q: %v", t.CleanText, err)
		default:
			applyMetadata(&m, t)
			sum.Updated++
			changed = true
			r.Logger.Info("record updated", "id", m.ExternalID, "fingerprint", t.Fingerprint)
		}
	}

	if m.Text != t.RawText || m.LineNumber != t.Line || m.Section != t.Section {
		m.Text = t.RawText
		m.LineNumber = t.Line
		m.Section = t.Section
		changed = true
	}
	if changed {
		m.LastModified = now
	}
	return m, false
}

// adopt gives a task without a mapping an external record, reusing an
// orphaned one with the same name when the store has it.
func (r *Reconciler) adopt(ctx context.Context, t *model.Task, epoch string, claimed map[string]bool, now time.Time, sum *Summary) (state.Mapping, bool) {
	name := RemoteName(t)

	var records []remote.Record
	err := r.call(ctx, func(c context.Context) error {
		var listErr error
		records, listErr = r.Store.List(c, t.Category)
		return listErr
	})
	if err != nil {
		// Creating blind could duplicate a record we failed to see.
		sum.fail("list %q while syncing %q: %v", t.Category, t.CleanText, err)
		return state.Mapping{}, false
	}

	if rec := r.findOrphan(records, name, claimed); rec != nil {
		return r.recoverOrphan(ctx, t, rec, epoch, now, sum), true
	}
	return r.create(ctx, t, name, epoch, now, sum)
}

// findOrphan returns the first unclaimed record whose normalized name equals
// name. Ties are broken by store order.
func (r *Reconciler) findOrphan(records []remote.Record, name string, claimed map[string]bool) *remote.Record {
	want := fingerprint.RemoteName(name)
	var matches []*remote.Record
	for i := range records {
		if claimed[records[i].ID] || fingerprint.RemoteName(records[i].Name) != want {
			continue
		}
		matches = append(matches, &records[i])
	}
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		r.Logger.Warn("ambiguous orphan match, using first", "name", name, "candidates", ids)
	}
	return matches[0]
}

func (r *Reconciler) recoverOrphan(ctx context.Context, t *model.Task, rec *remote.Record, epoch string, now time.Time, sum *Summary) state.Mapping {
	m := newMapping(t, rec.ID, state.OriginRecovered, epoch, now)
	m.RecoveredFromOrphan = true
	m.Completed = rec.Completed

	if t.Completed != rec.Completed {
		if err := r.setCompleted(ctx, rec.ID, t.Completed); err != nil {
			sum.fail("set completed=%t on recovered %q: %v", t.Completed, t.CleanText, err)
		} else {
			m.Completed = t.Completed
			sum.countToggle(t.Completed)
		}
	}

	body := BuildBody(t)
	if err := r.call(ctx, func(c context.Context) error { return r.Store.Update(c, rec.ID, body) }); err != nil {
		sum.fail("update recovered %q: %v", t.CleanText, err)
		// Nothing was pushed, so the next run must see the body as outdated.
		applyMetadata(&m, &model.Task{})
	}
	if r.Pending != nil {
		r.Pending.Remove(rec.ID)
	}

	sum.Recovered++
	r.Logger.Info("orphan recovered", "id", rec.ID, "fingerprint", t.Fingerprint, "category", t.Category)
	return m
}

func (r *Reconciler) create(ctx context.Context, t *model.Task, name, epoch string, now time.Time, sum *Summary) (state.Mapping, bool) {
	body := BuildBody(t)

	var id string
	err := r.call(ctx, func(c context.Context) error {
		var createErr error
		id, createErr = r.Store.Create(c, t.Category, name, t.Weight, body)
		return createErr
	})
	if err != nil {
		sum.fail("create %q: %v", name, err)
		return state.Mapping{}, false
	}
	sum.Created++
	r.Logger.Info("record created", "id", id, "fingerprint", t.Fingerprint, "category", t.Category, "weight", t.Weight)

	m := newMapping(t, id, state.OriginCreated, epoch, now)
	if t.Completed {
		if err := r.setCompleted(ctx, id, true); err != nil {
			// Left incomplete in the mapping so the next run retries.
			sum.fail("complete new %q: %v", name, err)
		} else {
			m.Completed = true
			sum.Completed++
		}
	}
	return m, true
}

func (r *Reconciler) remove(ctx context.Context, m state.Mapping, epoch string, now time.Time, sum *Summary) {
	err := r.call(ctx, func(c context.Context) error { return r.Store.Delete(c, m.ExternalID) })
	switch {
	case err == nil:
		sum.Deleted++
		r.Logger.Info("record deleted", "id", m.ExternalID, "fingerprint", m.Fingerprint)
	case errors.Is(err, remote.ErrNotFound):
		r.Logger.Debug("record already gone", "id", m.ExternalID)
	default:
		sum.fail("delete %q: %v", m.Text, err)
		if r.Pending != nil {
			r.Pending.Add(m.ExternalID, m.Fingerprint, epoch, err, now)
		}
	}
}

func (r *Reconciler) retryDeletes(ctx context.Context, epoch string, now time.Time, sum *Summary) {
	if r.Pending == nil {
		return
	}
	for _, e := range r.Pending.Sweep(epoch) {
		err := r.call(ctx, func(c context.Context) error { return r.Store.Delete(c, e.ExternalID) })
		switch {
		case err == nil:
			sum.Deleted++
			r.Logger.Info("pending delete done", "id", e.ExternalID, "attempts", e.Attempts+1)
		case errors.Is(err, remote.ErrNotFound):
		default:
			sum.fail("retry delete %s: %v", e.ExternalID, err)
			r.Pending.Add(e.ExternalID, e.Fingerprint, epoch, err, now)
		}
	}
}

func newMapping(t *model.Task, id string, origin state.Origin, epoch string, now time.Time) state.Mapping {
	m := state.Mapping{
		Fingerprint:  t.Fingerprint,
		ExternalID:   id,
		Text:         t.RawText,
		LineNumber:   t.Line,
		Section:      t.Section,
		CreatedAt:    now,
		LastModified: now,
		Origin:       origin,
		Epoch:        epoch,
	}
	applyMetadata(&m, t)
	return m
}
