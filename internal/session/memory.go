package session

import (
	"context"
	"fmt"
	"sync"

	"imagebot/internal/domain"
)

// MemoryStore keeps sessions in process memory. Used in tests and for
// single-instance runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]domain.UserSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]domain.UserSession)}
}

func (m *MemoryStore) Get(ctx context.Context, chatID int64) (*domain.UserSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", chatID, domain.ErrNotFound)
	}
	out := s
	return &out, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *domain.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = *s
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
