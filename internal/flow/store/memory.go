package store

import (
	"context"
	"fmt"
	"sync"

	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
)

// MemoryStore keeps cloned sessions in a map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.VerificationSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.VerificationSession)}
}

func (s *MemoryStore) Save(_ context.Context, session *domain.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, verificationID string) (*domain.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[verificationID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", verificationID, sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

// Delete is a no-op for unknown ids.
func (s *MemoryStore) Delete(_ context.Context, verificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, verificationID)
	return nil
}
