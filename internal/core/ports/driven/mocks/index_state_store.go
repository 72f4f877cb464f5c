package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockIndexStateStore is a mock implementation of IndexStateStore for testing
type MockIndexStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.IndexState
}

// NewMockIndexStateStore creates a new MockIndexStateStore
func NewMockIndexStateStore() *MockIndexStateStore {
	return &MockIndexStateStore{
		states: make(map[string]*domain.IndexState),
	}
}

func (m *MockIndexStateStore) Get(ctx context.Context, ownerID string) (*domain.IndexState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *state
	return &c, nil
}

func (m *MockIndexStateStore) Save(ctx context.Context, state *domain.IndexState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *state
	m.states[state.OwnerID] = &c
	return nil
}
