package progress

import (
	"maps"
	"sync"
)

// snapshot keeps the latest event per episode. Only the channel's message
// handler writes to it.
type snapshot struct {
	mu     sync.RWMutex
	events map[int64]Event
}

func newSnapshot() *snapshot {
	return &snapshot{events: make(map[int64]Event)}
}

func (s *snapshot) put(evt Event) {
	s.mu.Lock()
	s.events[evt.EpisodeID] = evt
	s.mu.Unlock()
}

func (s *snapshot) get(episodeID int64) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evt, ok := s.events[episodeID]
	return evt, ok
}

func (s *snapshot) copy() map[int64]Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.events)
}

func (s *snapshot) reset() {
	s.mu.Lock()
	clear(s.events)
	s.mu.Unlock()
}
