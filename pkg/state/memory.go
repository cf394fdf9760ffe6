package state

import (
	"context"
	"sync"

	"github.com/ajitpratap0/logevents/pkg/models"
)

// MemoryStore keeps state for the lifetime of the process
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.State
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]models.State)}
}

// Load implements Store
func (s *MemoryStore) Load(_ context.Context, connector string) (models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[connector].Clone(), nil
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, connector string, state models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[connector] = state.Clone()
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
