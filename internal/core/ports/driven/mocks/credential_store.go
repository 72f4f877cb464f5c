package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockCredentialStore is a mock implementation of CredentialStore for testing
type MockCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*domain.DriveCredentials
}

// NewMockCredentialStore creates a new MockCredentialStore
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{
		creds: make(map[string]*domain.DriveCredentials),
	}
}

func (m *MockCredentialStore) Get(ctx context.Context, ownerID string) (*domain.DriveCredentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	creds, ok := m.creds[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *creds
	return &c, nil
}

func (m *MockCredentialStore) Save(ctx context.Context, creds *domain.DriveCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *creds
	m.creds[creds.OwnerID] = &c
	return nil
}

func (m *MockCredentialStore) ListOwners(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make([]string, 0, len(m.creds))
	for id := range m.creds {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return owners, nil
}
