package flatdb

import (
	"context"
	"fmt"
	"sync"
)

// MemAdapter keeps collections in memory. Load and Persist copy records, so
// callers never share state with the adapter. Intended for tests.
type MemAdapter struct {
	mu     sync.Mutex
	colls  map[string]Collection
	closed bool

	// PersistCount counts successful Persist calls.
	PersistCount int
}

func NewMemAdapter() *MemAdapter {
	return &MemAdapter{colls: make(map[string]Collection)}
}

func (a *MemAdapter) Load(ctx context.Context, name string) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("mem: closed")
	}
	coll := a.colls[name].Clone()
	if coll == nil {
		coll = Collection{}
	}
	return coll, nil
}

func (a *MemAdapter) Persist(ctx context.Context, name string, coll Collection) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("mem: closed")
	}
	a.colls[name] = coll.Clone()
	a.PersistCount++
	return nil
}

func (a *MemAdapter) List(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedKeys(a.colls), nil
}

func (a *MemAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.colls = nil
	return nil
}
