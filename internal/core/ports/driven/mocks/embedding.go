package mocks

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are bag-of-words counts hashed into a fixed number of dimensions, so
// texts sharing words score higher under cosine similarity.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	model      string
	failNext   bool

	// Err is returned by every call when set
	Err error

	// DropLast makes Embed return one vector fewer than requested
	DropLast bool

	EmbedCalls int
	QueryCalls int
	EmbeddedIn []string
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 64,
		model:      "mock-embedding-model",
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedCalls++
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.EmbeddedIn = append(m.EmbeddedIn, texts...)

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	if m.DropLast && len(result) > 0 {
		result = result[:len(result)-1]
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if err := m.fail(); err != nil {
		return nil, err
	}
	return m.generateEmbedding(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) fail() error {
	if m.Err != nil {
		return m.Err
	}
	if m.failNext {
		m.failNext = false
		return context.DeadlineExceeded
	}
	return nil
}

// generateEmbedding hashes each lowercased word into a dimension
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	embedding := make([]float32, m.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		embedding[h.Sum32()%uint32(m.dimensions)]++
	}
	return embedding
}

// Helper methods for testing

func (m *MockEmbeddingService) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dim
}
