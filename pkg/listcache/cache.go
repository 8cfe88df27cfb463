// Package listcache remembers which task list backs each category so the
// Google backend does not have to list task lists on every call.
package listcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// MaxLists caps the cache. The least recently used category is evicted first.
const MaxLists = 64

type ListState struct {
	ListID   string    `json:"list_id"`
	LastUsed time.Time `json:"last_used"`
}

type Cache struct {
	Path  string
	Lists map[string]*ListState `json:"lists"`
	Now   func() time.Time      `json:"-"`
	dirty bool
}

// New loads the cache at path. A missing file gives an empty cache.
func New(path string) (*Cache, error) {
	cache := &Cache{
		Path:  path,
		Lists: make(map[string]*ListState),
		Now:   time.Now,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cache.Load(); err != nil {
			return cache, err
		}
	}
	return cache, nil
}

func (c *Cache) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	lists := make(map[string]*ListState)
	if data, err = hujson.Standardize(data); err == nil {
		err = json.Unmarshal(data, &lists)
	}
	if err != nil {
		return fmt.Errorf("decoding list cache: %w", err)
	}
	c.Lists = lists
	return nil
}

func (c *Cache) Save() error {
	if !c.dirty || c.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return fmt.Errorf("creating list cache directory: %w", err)
	}

	data, err := json.MarshalIndent(c.Lists, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(c.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing list cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Get returns the list ID for category and marks it used. Touching an entry
// only marks the cache dirty; nothing is written until Save.
func (c *Cache) Get(category string) (string, bool) {
	state, ok := c.Lists[category]
	if !ok {
		return "", false
	}
	state.LastUsed = c.now()
	c.dirty = true
	return state.ListID, true
}

// Set records the list ID for category, evicting the least recently used
// entry when the cache is full.
func (c *Cache) Set(category, listID string) {
	if _, exists := c.Lists[category]; !exists && len(c.Lists) >= MaxLists {
		c.evict()
	}
	c.Lists[category] = &ListState{ListID: listID, LastUsed: c.now()}
	c.dirty = true
}

// Forget drops category, typically after the backend reported its list gone.
func (c *Cache) Forget(category string) {
	if _, ok := c.Lists[category]; ok {
		delete(c.Lists, category)
		c.dirty = true
	}
}

// Category returns the category cached for listID.
func (c *Cache) Category(listID string) (string, bool) {
	for name, state := range c.Lists {
		if state.ListID == listID {
			return name, true
		}
	}
	return "", false
}

func (c *Cache) evict() {
	var oldest string
	var oldestTime time.Time
	first := true
	for name, state := range c.Lists {
		if first || state.LastUsed.Before(oldestTime) {
			oldest = name
			oldestTime = state.LastUsed
			first = false
		}
	}
	if oldest != "" {
		delete(c.Lists, oldest)
	}
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
