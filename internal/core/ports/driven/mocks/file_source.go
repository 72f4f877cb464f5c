package mocks

import (
	"context"
	"strconv"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockFileSource is a mock implementation of FileSource for testing.
// Files are served in pages of the requested size; page tokens are offsets.
type MockFileSource struct {
	mu        sync.RWMutex
	files     []*domain.RemoteFile
	texts     map[string]*domain.TextResult
	fetchErrs map[string]error

	// ListErr is returned by ListFiles when set
	ListErr error

	ListCalls  int
	FetchCalls []string
}

// NewMockFileSource creates a new MockFileSource
func NewMockFileSource() *MockFileSource {
	return &MockFileSource{
		texts:     make(map[string]*domain.TextResult),
		fetchErrs: make(map[string]error),
	}
}

func (m *MockFileSource) ListFiles(ctx context.Context, ownerID, pageToken string, pageSize int) ([]*domain.RemoteFile, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, "", m.ListErr
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, "", domain.ErrInvalidInput
		}
		start = n
	}
	if start >= len(m.files) {
		return nil, "", nil
	}
	end := start + pageSize
	if end > len(m.files) {
		end = len(m.files)
	}
	next := ""
	if end < len(m.files) {
		next = strconv.Itoa(end)
	}
	return m.files[start:end], next, nil
}

func (m *MockFileSource) FetchText(ctx context.Context, ownerID, fileID, mimeType string) (*domain.TextResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, fileID)

	if err, ok := m.fetchErrs[fileID]; ok {
		return nil, err
	}
	if res, ok := m.texts[fileID]; ok {
		return res, nil
	}
	return domain.TextSkipped(domain.UnsupportedMimeTypeReason(mimeType)), nil
}

// Helper methods for testing

// AddFile appends a file to the listing
func (m *MockFileSource) AddFile(f *domain.RemoteFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, f)
}

// SetText sets the text served for a remote file id
func (m *MockFileSource) SetText(fileID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[fileID] = domain.TextOK(text, int64(len(text)))
}

// SetSkipped makes FetchText skip a remote file id with reason
func (m *MockFileSource) SetSkipped(fileID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[fileID] = domain.TextSkipped(reason)
}

// SetFetchError makes FetchText fail for a remote file id
func (m *MockFileSource) SetFetchError(fileID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrs[fileID] = err
}
