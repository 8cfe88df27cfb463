package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Operation names used by MemoryStore for call counts and failure injection.
const (
	OpList       = "list"
	OpGet        = "get"
	OpCreate     = "create"
	OpComplete   = "complete"
	OpUncomplete = "uncomplete"
	OpUpdate     = "update"
	OpDelete     = "delete"
)

// MemoryStore is an in-process Store. It counts calls and can be told to fail
// specific operations, which makes it the backend for tests and dry runs.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []string
	calls    map[string]int
	failures map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Seed inserts rec without counting a call and returns its id.
func (m *MemoryStore) Seed(rec Record) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.insert(rec)
	return rec.ID
}

// SetCompleted flips a record as if a user did it in the store's own UI.
func (m *MemoryStore) SetCompleted(id string, completed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Completed = completed
	}
}

// Lookup returns a copy of the record with id.
func (m *MemoryStore) Lookup(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len is the number of live records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// FailOn makes every call of op fail with err. A nil err clears it.
func (m *MemoryStore) FailOn(op string, err error) {
	m.FailOnID(op, "", err)
}

// FailOnID makes calls of op against id fail with err. A nil err clears it.
func (m *MemoryStore) FailOnID(op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failureKey(op, id)
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// Calls returns how often op was invoked, failed calls included.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Mutations is the number of calls that could change the store.
func (m *MemoryStore) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[OpCreate] + m.calls[OpComplete] + m.calls[OpUncomplete] + m.calls[OpUpdate] + m.calls[OpDelete]
}

// ResetCalls zeroes the call counters.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

func failureKey(op, id string) string {
	if id == "" {
		return op
	}
	return op + ":" + id
}

// begin counts the call and returns an injected failure, if any. Callers hold mu.
func (m *MemoryStore) begin(ctx context.Context, op, id string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failures[failureKey(op, id)]; ok {
		return err
	}
	if err, ok := m.failures[op]; ok {
		return err
	}
	return nil
}

func (m *MemoryStore) insert(rec Record) {
	if _, exists := m.records[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = &rec
}

func (m *MemoryStore) lookup(op, id string) (*Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) List(ctx context.Context, category string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, OpList, category); err != nil {
		return nil, err
	}
	var out []Record
	for _, id := range m.order {
		if rec, ok := m.records[id]; ok && rec.Category == category {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, OpGet, id); err != nil {
		return nil, err
	}
	rec, err := m.lookup(OpGet, id)
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, category, name string, weight int, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, OpCreate, ""); err != nil {
		return "", err
	}
	rec := Record{ID: uuid.NewString(), Name: name, Category: category, Priority: weight, Body: body}
	m.insert(rec)
	return rec.ID, nil
}

func (m *MemoryStore) setCompleted(ctx context.Context, op, id string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, op, id); err != nil {
		return err
	}
	rec, err := m.lookup(op, id)
	if err != nil {
		return err
	}
	rec.Completed = completed
	return nil
}

func (m *MemoryStore) Complete(ctx context.Context, id string) error {
	return m.setCompleted(ctx, OpComplete, id, true)
}

func (m *MemoryStore) Uncomplete(ctx context.Context, id string) error {
	return m.setCompleted(ctx, OpUncomplete, id, false)
}

func (m *MemoryStore) Update(ctx context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, OpUpdate, id); err != nil {
		return err
	}
	rec, err := m.lookup(OpUpdate, id)
	if err != nil {
		return err
	}
	rec.Body = body
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, OpDelete, id); err != nil {
		return err
	}
	if _, err := m.lookup(OpDelete, id); err != nil {
		return err
	}
	delete(m.records, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
