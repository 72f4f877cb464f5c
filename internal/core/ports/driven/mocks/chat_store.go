package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockChatStore is a mock implementation of ChatStore for testing
type MockChatStore struct {
	mu       sync.RWMutex
	threads  map[string]*domain.ChatThread
	messages map[string][]*domain.ChatMessage
}

// NewMockChatStore creates a new MockChatStore
func NewMockChatStore() *MockChatStore {
	return &MockChatStore{
		threads:  make(map[string]*domain.ChatThread),
		messages: make(map[string][]*domain.ChatMessage),
	}
}

func (m *MockChatStore) CreateThread(ctx context.Context, thread *domain.ChatThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *thread
	m.threads[thread.ID] = &c
	return nil
}

func (m *MockChatStore) GetThread(ctx context.Context, ownerID, id string) (*domain.ChatThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread, ok := m.threads[id]
	if !ok || thread.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	c := *thread
	return &c, nil
}

func (m *MockChatStore) ListThreads(ctx context.Context, ownerID string, limit int) ([]*domain.ChatThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.ChatThread
	for _, thread := range m.threads {
		if thread.OwnerID == ownerID {
			c := *thread
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockChatStore) SetTitle(ctx context.Context, threadID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[threadID]
	if !ok {
		return domain.ErrNotFound
	}
	thread.Title = title
	return nil
}

func (m *MockChatStore) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[msg.ThreadID]
	if !ok {
		return domain.ErrNotFound
	}
	c := *msg
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], &c)
	thread.UpdatedAt = time.Now()
	return nil
}

func (m *MockChatStore) ListMessages(ctx context.Context, threadID string, opts domain.MessageListOptions) ([]*domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ChatMessage
	for _, msg := range m.messages[threadID] {
		if opts.Before != nil && !msg.CreatedAt.Before(*opts.Before) {
			continue
		}
		out = append(out, msg)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

func (m *MockChatStore) RecentMessages(ctx context.Context, threadID, excludeID string, limit int) ([]*domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[threadID]
	var out []*domain.ChatMessage
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if msgs[i].ID == excludeID {
			continue
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

func (m *MockChatStore) CountMessages(ctx context.Context, threadID string, role domain.MessageRole) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.messages[threadID] {
		if msg.Role == role {
			count++
		}
	}
	return count, nil
}
