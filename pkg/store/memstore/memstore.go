// Package memstore provides an in-memory document store used by tests
// and local development. It mirrors the query semantics of the real
// backend closely enough for the engines: conjunctive filters, pointer
// comparison by referenced id, and deep-copied reads so callers never
// alias internal state.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitewright/cloudcode/pkg/store"
)

// Store is a mutex-guarded map-of-class document store.
type Store struct {
	mu      sync.RWMutex
	classes map[string]map[string]*store.Object
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{classes: make(map[string]map[string]*store.Object)}
}

// Get fetches one object by class and id.
func (s *Store) Get(ctx context.Context, class, id string) (*store.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.classes[class][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return obj.Clone(), nil
}

// First returns the first match or nil when nothing matches.
func (s *Store) First(ctx context.Context, q *store.Query) (*store.Object, error) {
	matches, err := s.Find(ctx, q.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// Find returns all matches.
func (s *Store) Find(ctx context.Context, q *store.Query) ([]*store.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*store.Object
	for _, obj := range s.classes[q.Class] {
		if !matchesAll(obj, q.Filters) {
			continue
		}
		matches = append(matches, obj.Clone())
		if q.Limit > 0 && len(matches) >= q.Limit {
			break
		}
	}
	return matches, nil
}

// Count returns the number of matches.
func (s *Store) Count(ctx context.Context, q *store.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, obj := range s.classes[q.Class] {
		if matchesAll(obj, q.Filters) {
			n++
		}
	}
	return n, nil
}

// Create persists a new object, assigning its id when empty.
func (s *Store) Create(ctx context.Context, obj *store.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	now := time.Now()
	obj.CreatedAt = now
	obj.UpdatedAt = now

	if s.classes[obj.Class] == nil {
		s.classes[obj.Class] = make(map[string]*store.Object)
	}
	s.classes[obj.Class][obj.ID] = obj.Clone()
	return nil
}

// Save persists changes to an existing object.
func (s *Store) Save(ctx context.Context, obj *store.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.classes[obj.Class][obj.ID]
	if !ok {
		return store.ErrNotFound
	}
	obj.CreatedAt = existing.CreatedAt
	obj.UpdatedAt = time.Now()
	s.classes[obj.Class][obj.ID] = obj.Clone()
	return nil
}

// Delete removes an object by class and id.
func (s *Store) Delete(ctx context.Context, class, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classes[class][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.classes[class], id)
	return nil
}

func matchesAll(obj *store.Object, filters []store.Filter) bool {
	return store.Matches(obj, filters)
}
