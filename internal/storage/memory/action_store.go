// Package memory holds in-process store implementations for development and
// tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/JakeFAU/purifier-console/internal/store"
)

// DefaultActionCapacity bounds ActionStore when no capacity is given.
const DefaultActionCapacity = 1000

// ActionStore keeps the most recent audit entries in memory. Older entries are
// evicted once capacity is reached.
type ActionStore struct {
	mu       sync.RWMutex
	capacity int
	actions  []store.Action
}

// NewActionStore constructs an ActionStore.
func NewActionStore(capacity int) *ActionStore {
	if capacity <= 0 {
		capacity = DefaultActionCapacity
	}
	return &ActionStore{capacity: capacity}
}

// RecordAction appends an entry, evicting the oldest when full.
func (s *ActionStore) RecordAction(_ context.Context, action store.Action) error {
	action.EpisodeIDs = slices.Clone(action.EpisodeIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions) == s.capacity {
		s.actions = slices.Delete(s.actions, 0, 1)
	}
	s.actions = append(s.actions, action)
	return nil
}

// ListActions returns entries newest first.
func (s *ActionStore) ListActions(_ context.Context, limit, offset int) ([]store.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	total := len(s.actions)
	if offset >= total {
		return []store.Action{}, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]store.Action, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, s.actions[total-1-i])
	}
	return out, nil
}
