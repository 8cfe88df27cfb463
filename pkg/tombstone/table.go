// Package tombstone remembers external records whose delete failed so the
// next run can try again.
package tombstone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

type Entry struct {
	ExternalID  string    `json:"externalId"`
	Fingerprint string    `json:"fingerprint"`
	Epoch       string    `json:"epoch"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"lastError,omitempty"`
	Added       time.Time `json:"added"`
}

type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	dirty   bool
}

// NewTable loads the table at path, starting empty when the file is missing.
func NewTable(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
	}

	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (t *Table) Load() error {
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return err
	}
	if data, err = hujson.Standardize(data); err == nil {
		err = json.Unmarshal(data, t)
	}
	if err != nil {
		t.Entries = make(map[string]Entry)
		return fmt.Errorf("decoding tombstones: %w", err)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return nil
}

func (t *Table) Save() error {
	if !t.dirty || t.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(t.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Add records a failed delete, bumping the attempt count for known ids.
func (t *Table) Add(externalID, fingerprint, epoch string, cause error, now time.Time) {
	e, exists := t.Entries[externalID]
	if !exists {
		e = Entry{ExternalID: externalID, Fingerprint: fingerprint, Epoch: epoch, Added: now}
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	t.Entries[externalID] = e
	t.dirty = true
}

// Remove forgets externalID, used when the record is in use again.
func (t *Table) Remove(externalID string) {
	if _, exists := t.Entries[externalID]; exists {
		delete(t.Entries, externalID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries of epoch, oldest first. Entries of any other epoch
// are dropped: their records belong to a note that no longer drives sync.
func (t *Table) Sweep(epoch string) []Entry {
	var swept []Entry
	for id, entry := range t.Entries {
		if entry.Epoch == epoch {
			swept = append(swept, entry)
		}
		delete(t.Entries, id)
		t.dirty = true
	}
	slices.SortFunc(swept, func(a, b Entry) int {
		if c := a.Added.Compare(b.Added); c != 0 {
			return c
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
	return swept
}

func (t *Table) Len() int {
	return len(t.Entries)
}
