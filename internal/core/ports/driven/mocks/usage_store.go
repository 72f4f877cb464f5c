package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockUsageStore is a mock implementation of UsageStore for testing
type MockUsageStore struct {
	mu       sync.Mutex
	counters map[string]*domain.UsageCounter

	// IncrementErr fails every Increment when set
	IncrementErr error
}

// NewMockUsageStore creates a new MockUsageStore
func NewMockUsageStore() *MockUsageStore {
	return &MockUsageStore{
		counters: make(map[string]*domain.UsageCounter),
	}
}

func (m *MockUsageStore) Current(ctx context.Context, ownerID string, periodStart time.Time) (*domain.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.ensure(ownerID, periodStart)
	return &c, nil
}

func (m *MockUsageStore) Increment(ctx context.Context, ownerID string, periodStart time.Time, kind domain.UsageKind, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IncrementErr != nil {
		return m.IncrementErr
	}
	m.ensure(ownerID, periodStart).Add(kind, amount)
	return nil
}

func (m *MockUsageStore) ensure(ownerID string, periodStart time.Time) *domain.UsageCounter {
	counter, ok := m.counters[ownerID]
	if !ok || counter.PeriodStart.Before(periodStart) {
		counter = domain.NewUsageCounter(ownerID, periodStart)
		m.counters[ownerID] = counter
	}
	return counter
}
