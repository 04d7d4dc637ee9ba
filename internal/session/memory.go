package session

import (
	"context"
	"sync"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false, nil
	}
	return *m.current, true, nil
}

func (m *MemoryStore) Set(_ context.Context, s Session) error {
	if !s.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "access token is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := s
	m.current = &copied
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}
