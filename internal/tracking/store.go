// Package tracking associates opaque ids with selections so a caller can
// refer back to a value (for example to refresh a view on every stop)
// without re-sending the selection.
//
// A Store is process-scoped: entries outlive the debug session they were
// created in and resolve against whichever session the caller names.
package tracking

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// Store maps tracking ids to selections.
type Store struct {
	mu      sync.RWMutex
	entries map[string]types.Selection
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]types.Selection),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track stores sel under a fresh id and returns the id.
func (s *Store) Track(sel types.Selection) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.entries[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.entries[id] = sel
	return id
}

// Untrack removes id. Removing an unknown id is a no-op.
func (s *Store) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Lookup returns the selection tracked under id.
func (s *Store) Lookup(id string) (types.Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel, ok := s.entries[id]
	return sel, ok
}

// Resolve is Lookup with a NotFound error for unknown ids.
func (s *Store) Resolve(id string) (types.Selection, error) {
	if sel, ok := s.Lookup(id); ok {
		return sel, nil
	}
	return nil, errors.TrackingNotFound(id)
}

// Len returns the number of tracked selections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
