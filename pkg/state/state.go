// Package state persists the fingerprint to external record mappings of one
// epoch (one daily note).
//
// The store is a plain read-modify-write JSON document. Nothing in this
// package serializes two runs against the same file: callers must either
// guarantee a single invocation at a time or hold WithLock around the whole
// load, reconcile, save sequence.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/harrisonrobin/tasksync/pkg/model"
)

// EpochLayout formats the day a set of mappings is valid for.
const EpochLayout = "2006-01-02"

// ErrCorrupt reports a state file that exists but cannot be decoded.
var ErrCorrupt = errors.New("state file corrupt")

// Origin records how a mapping came to exist.
type Origin string

const (
	OriginCreated   Origin = "created"
	OriginRecovered Origin = "recovered"
)

// Mapping links a task fingerprint to its external record.
type Mapping struct {
	Fingerprint         string          `json:"fingerprint"`
	ExternalID          string          `json:"externalId"`
	Text                string          `json:"text"`
	Category            string          `json:"category"`
	Priority            model.Priority  `json:"priority"`
	PriorityNumber      string          `json:"priorityNumber,omitempty"`
	Completed           bool            `json:"completed"`
	Blocked             bool            `json:"blocked"`
	BlockerReason       string          `json:"blockerReason,omitempty"`
	SourceDocumentPath  string          `json:"sourceDocumentPath"`
	LineNumber          int             `json:"lineNumber"`
	Section             string          `json:"section,omitempty"`
	Subtasks            []model.Subtask `json:"subtasks,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	LastModified        time.Time       `json:"lastModified"`
	Origin              Origin          `json:"origin"`
	RecoveredFromOrphan bool            `json:"recoveredFromOrphan,omitempty"`
	SyncedFromRemote    *time.Time      `json:"syncedFromRemote,omitempty"`
	Epoch               string          `json:"epoch"`
}

// Store is the persisted state of one epoch.
type Store struct {
	Epoch       string     `json:"epoch"`
	LastRefresh *time.Time `json:"lastRefresh"`
	Mappings    []Mapping  `json:"mappings"`
}

// New returns an empty store.
func New() *Store {
	return &Store{Mappings: []Mapping{}}
}

// EpochOf returns the epoch that t falls in.
func EpochOf(t time.Time) string {
	return t.Format(EpochLayout)
}

// Load reads the store at path. It always returns a usable store: a missing
// file gives an empty one, and an unreadable or corrupt file gives an empty
// one together with an error the caller should log.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return New(), fmt.Errorf("reading state: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return New(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var st Store
	if err := json.Unmarshal(standardized, &st); err != nil {
		return New(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	dropped := st.sanitize()
	if dropped > 0 {
		return &st, fmt.Errorf("%w: dropped %d invalid mappings", ErrCorrupt, dropped)
	}
	return &st, nil
}

// sanitize drops mappings without identity and repeated fingerprints.
func (s *Store) sanitize() int {
	seen := make(map[string]bool, len(s.Mappings))
	kept := make([]Mapping, 0, len(s.Mappings))
	for _, m := range s.Mappings {
		if m.Fingerprint == "" || m.ExternalID == "" || seen[m.Fingerprint] {
			continue
		}
		seen[m.Fingerprint] = true
		kept = append(kept, m)
	}
	dropped := len(s.Mappings) - len(kept)
	s.Mappings = kept
	return dropped
}

// Save atomically replaces the file at path with st.
func Save(path string, st *Store) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// Rollover discards every mapping when epoch differs from the stored one and
// reports whether it did. External records of the old epoch are left alone.
func (s *Store) Rollover(epoch string) bool {
	if s.Epoch == epoch {
		return false
	}
	s.Epoch = epoch
	s.Mappings = []Mapping{}
	return true
}

// Index returns the mappings keyed by fingerprint. The pointers alias the
// store's slice.
func (s *Store) Index() map[string]*Mapping {
	idx := make(map[string]*Mapping, len(s.Mappings))
	for i := range s.Mappings {
		idx[s.Mappings[i].Fingerprint] = &s.Mappings[i]
	}
	return idx
}

// Replace swaps in a new mapping set and stamps the refresh time.
func (s *Store) Replace(mappings []Mapping, now time.Time) {
	if mappings == nil {
		mappings = []Mapping{}
	}
	s.Mappings = mappings
	s.LastRefresh = &now
}
