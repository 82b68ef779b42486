// Package memory is an in-process store.Store for tests and embedded use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/credits/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type entry struct {
	value   []byte
	version int64
	updated time.Time
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Record{
		Key:       key,
		Value:     append([]byte(nil), e.value...),
		Version:   e.version,
		UpdatedAt: e.updated,
	}, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.entries[key].version
	if cur != expectedVersion {
		return 0, store.ErrVersionConflict
	}
	next := cur + 1
	s.entries[key] = entry{
		value:   append([]byte(nil), value...),
		version: next,
		updated: time.Now().UTC(),
	}
	return next, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close() error                  { return nil }
