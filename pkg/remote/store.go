// Package remote is the boundary to the external task store.
//
// Every call may fail and none is retried here; callers bound each call with
// a context deadline and decide what a failure means.
package remote

import (
	"context"
	"errors"
)

// ErrNotFound marks a record that does not exist (any more).
var ErrNotFound = errors.New("record not found")

// Record is an external task as the store reports it.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"list,omitempty"`
	Completed bool   `json:"completed"`
	Priority  int    `json:"priority,omitempty"`
	Body      string `json:"body,omitempty"`
}

// Store is implemented by every external task store backend.
type Store interface {
	List(ctx context.Context, category string) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, category, name string, weight int, body string) (string, error)
	Complete(ctx context.Context, id string) error
	Uncomplete(ctx context.Context, id string) error
	Update(ctx context.Context, id, body string) error
	Delete(ctx context.Context, id string) error
}
