package state

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasksync/pkg/model"
)

func sampleStore() *Store {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	return &Store{
		Epoch:       "2026-10-15",
		LastRefresh: &now,
		Mappings: []Mapping{{
			Fingerprint:        "a1b2c3d4e5f6",
			ExternalID:         "x-apple-reminder://1",
			Text:               "🔴1. Ship report",
			Category:           "Acme",
			Priority:           model.PriorityA,
			PriorityNumber:     "1",
			SourceDocumentPath: "/vault/4-Daily/2026-10-15.md",
			LineNumber:         4,
			Section:            "Acme",
			Subtasks:           []model.Subtask{{Text: "Draft", Completed: true}},
			CreatedAt:          now,
			LastModified:       now,
			Origin:             OriginCreated,
			Epoch:              "2026-10-15",
		}},
	}
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, "", st.Epoch)
	assert.Empty(t, st.Mappings)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := sampleStore()
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCorruptReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	st, err := Load(path)
	assert.ErrorIs(t, err, ErrCorrupt)
	require.NotNil(t, st)
	assert.Empty(t, st.Mappings)
}

func TestLoadToleratesCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{
  // repaired by hand
  "epoch": "2026-10-15",
  "lastRefresh": null,
  "mappings": [
    {"fingerprint": "abc", "externalId": "1", "origin": "created",},
  ],
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", st.Epoch)
	require.Len(t, st.Mappings, 1)
	assert.Equal(t, OriginCreated, st.Mappings[0].Origin)
}

func TestLoadDropsInvalidMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{"epoch":"2026-10-15","mappings":[
		{"fingerprint":"abc","externalId":"1"},
		{"fingerprint":"abc","externalId":"2"},
		{"fingerprint":"","externalId":"3"},
		{"fingerprint":"def","externalId":""}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	st, err := Load(path)
	assert.ErrorIs(t, err, ErrCorrupt)
	require.Len(t, st.Mappings, 1)
	assert.Equal(t, "1", st.Mappings[0].ExternalID)
}

func TestRollover(t *testing.T) {
	st := sampleStore()
	assert.False(t, st.Rollover("2026-10-15"))
	assert.Len(t, st.Mappings, 1)

	assert.True(t, st.Rollover("2026-10-16"))
	assert.Equal(t, "2026-10-16", st.Epoch)
	assert.Empty(t, st.Mappings)
}

func TestIndexAliasesStore(t *testing.T) {
	st := sampleStore()
	idx := st.Index()
	idx["a1b2c3d4e5f6"].Completed = true
	assert.True(t, st.Mappings[0].Completed)
}

func TestReplace(t *testing.T) {
	st := sampleStore()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	st.Replace(nil, now)
	assert.NotNil(t, st.Mappings)
	assert.Empty(t, st.Mappings)
	assert.Equal(t, now, *st.LastRefresh)
}

func TestEpochOf(t *testing.T) {
	assert.Equal(t, "2026-10-15", EpochOf(time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC)))
}

func TestWithLockSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	var inside atomic.Int32
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- WithLock(path, 5*time.Second, func() error {
				if inside.Add(1) != 1 {
					return errors.New("lock held twice")
				}
				time.Sleep(50 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestWithLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	err := WithLock(path, time.Second, func() error {
		return WithLock(path, 100*time.Millisecond, func() error { return nil })
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}
