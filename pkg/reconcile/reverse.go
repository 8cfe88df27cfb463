package reconcile

import (
	"context"
	"errors"

	"github.com/harrisonrobin/tasksync/pkg/markdown"
	"github.com/harrisonrobin/tasksync/pkg/remote"
	"github.com/harrisonrobin/tasksync/pkg/state"
)

const pulledNameLimit = 40

// Pull copies completion changes made in the external store back into the
// note. It returns the patched content, which equals content when nothing
// changed. Mappings are updated in place only for lines that were patched.
func (r *Reconciler) Pull(ctx context.Context, content []byte, st *state.Store) ([]byte, PullSummary) {
	var sum PullSummary
	now := r.now()

	for i := range st.Mappings {
		m := &st.Mappings[i]

		var rec *remote.Record
		err := r.call(ctx, func(c context.Context) error {
			var getErr error
			rec, getErr = r.Store.Get(c, m.ExternalID)
			return getErr
		})
		switch {
		case errors.Is(err, remote.ErrNotFound):
			r.Logger.Info("record gone, leaving note untouched", "id", m.ExternalID, "fingerprint", m.Fingerprint)
			continue
		case err != nil:
			sum.fail("get %s: %v", m.ExternalID, err)
			continue
		}

		if rec.Completed == m.Completed {
			continue
		}

		patched, line, err := markdown.SetChecked(content, m.Text, rec.Completed)
		if err != nil {
			// The note changed under us; the mapping stays as it was.
			sum.fail("patch %q: %v", m.Text, err)
			continue
		}
		content = patched

		m.Completed = rec.Completed
		m.LineNumber = line
		m.LastModified = now
		synced := now
		m.SyncedFromRemote = &synced

		if rec.Completed {
			sum.Completed++
		} else {
			sum.Uncompleted++
		}
		sum.Tasks = append(sum.Tasks, truncate(rec.Name, pulledNameLimit))
		r.Logger.Info("completion pulled", "id", m.ExternalID, "completed", rec.Completed, "line", line)
	}

	return content, sum
}
