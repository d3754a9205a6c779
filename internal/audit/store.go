package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps events per verification id.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
	order  []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.VerificationID] = append(s.events[event.VerificationID], event)
	s.order = append(s.order, event)
	return nil
}

func (s *MemoryStore) ListByVerification(_ context.Context, verificationID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[verificationID]...), nil
}

// ListRecent returns up to limit events, most recent last.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.order) - limit
	if start < 0 || limit <= 0 {
		start = 0
	}
	return append([]Event{}, s.order[start:]...), nil
}
