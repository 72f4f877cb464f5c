package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockLLMService is a mock implementation of LLMService for testing.
// It records every request and replies with Response.
type MockLLMService struct {
	mu sync.Mutex

	Response string
	Err      error

	Requests []MockLLMRequest
}

// MockLLMRequest is one recorded Complete call
type MockLLMRequest struct {
	Messages []domain.LLMMessage
	Options  domain.CompletionOptions
}

// NewMockLLMService creates a new MockLLMService
func NewMockLLMService(response string) *MockLLMService {
	return &MockLLMService{Response: response}
}

func (m *MockLLMService) Complete(ctx context.Context, messages []domain.LLMMessage, opts domain.CompletionOptions) (*domain.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MockLLMRequest{Messages: messages, Options: opts})
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.Completion{
		Content:          m.Response,
		PromptTokens:     10,
		CompletionTokens: 5,
	}, nil
}

func (m *MockLLMService) Model() string {
	return "mock-chat-model"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// LastRequest returns the most recent request, or nil
func (m *MockLLMService) LastRequest() *MockLLMRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return &m.Requests[len(m.Requests)-1]
}
