package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasksync/pkg/remote"
	"github.com/harrisonrobin/tasksync/pkg/state"
)

func TestPullUnchecksAndStripsDoneMarker(t *testing.T) {
	r, store := newTestReconciler()
	id := store.Seed(remote.Record{Name: "Water plants"})

	st := emptyState()
	st.Mappings = []state.Mapping{{Fingerprint: "aaaaaaaaaaaa", ExternalID: id, Text: "Water plants ✅ 2026-10-15", Completed: true}}

	content := []byte("- [x] Water plants ✅ 2026-10-15\n- [x] Other\n")
	out, sum := r.Pull(context.Background(), content, st)

	assert.Equal(t, "- [ ] Water plants\n- [x] Other\n", string(out))
	assert.Equal(t, 1, sum.Uncompleted)
	assert.False(t, st.Mappings[0].Completed)
	assert.Equal(t, 1, st.Mappings[0].LineNumber)
	assert.Empty(t, sum.Errors)
}

func TestPullLeavesNoteAloneWhenRecordIsGone(t *testing.T) {
	r, _ := newTestReconciler()
	st := emptyState()
	st.Mappings = []state.Mapping{{Fingerprint: "aaaaaaaaaaaa", ExternalID: "gone", Text: "Water plants"}}

	content := []byte("- [ ] Water plants\n")
	out, sum := r.Pull(context.Background(), content, st)

	assert.Equal(t, content, out)
	assert.Equal(t, 0, sum.Changes())
	assert.Empty(t, sum.Errors)
}

func TestPullRecordsMissingLine(t *testing.T) {
	r, store := newTestReconciler()
	id := store.Seed(remote.Record{Name: "Water plants", Completed: true})
	st := emptyState()
	st.Mappings = []state.Mapping{{Fingerprint: "aaaaaaaaaaaa", ExternalID: id, Text: "Water plants"}}

	// Edited text no longer matches exactly; nothing is guessed.
	content := []byte("- [ ] Water the plants\n")
	out, sum := r.Pull(context.Background(), content, st)

	assert.Equal(t, content, out)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "task line not found")
	assert.False(t, st.Mappings[0].Completed)
	assert.Nil(t, st.Mappings[0].SyncedFromRemote)
}

func TestPullContinuesAfterGetFailure(t *testing.T) {
	r, store := newTestReconciler()
	bad := store.Seed(remote.Record{Name: "Call mum", Completed: true})
	good := store.Seed(remote.Record{Name: "Water plants", Completed: true})
	store.FailOnID(remote.OpGet, bad, errBoom)

	st := emptyState()
	st.Mappings = []state.Mapping{
		{Fingerprint: "aaaaaaaaaaaa", ExternalID: bad, Text: "Call mum"},
		{Fingerprint: "bbbbbbbbbbbb", ExternalID: good, Text: "Water plants"},
	}

	out, sum := r.Pull(context.Background(), []byte("- [ ] Call mum\n- [ ] Water plants\n"), st)
	assert.Equal(t, "- [ ] Call mum\n- [x] Water plants\n", string(out))
	assert.Len(t, sum.Errors, 1)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, st.Mappings[1].LineNumber)
}
