package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockArtifactStore is a mock implementation of ArtifactStore for testing.
// It shares file refs with a MockFileRefStore so commits update ref status.
type MockArtifactStore struct {
	mu        sync.RWMutex
	refs      *MockFileRefStore
	artifacts map[string]*domain.Artifact

	// CommitErr is returned by CommitIngestion when set
	CommitErr error
}

// NewMockArtifactStore creates a new MockArtifactStore backed by refs
func NewMockArtifactStore(refs *MockFileRefStore) *MockArtifactStore {
	return &MockArtifactStore{
		refs:      refs,
		artifacts: make(map[string]*domain.Artifact),
	}
}

func (m *MockArtifactStore) CommitIngestion(ctx context.Context, record *domain.IngestRecord) error {
	if m.CommitErr != nil {
		return m.CommitErr
	}

	m.mu.Lock()
	now := time.Now()
	for _, a := range record.Artifacts() {
		if existing := m.find(a.FileRefID, a.Type, a.ContentHash); existing != nil {
			existing.ContentText = a.ContentText
			existing.ContentJSON = a.ContentJSON
			existing.UpdatedAt = now
			a.ID = existing.ID
			continue
		}
		if a.ID == "" {
			a.ID = domain.GenerateID()
		}
		c := *a
		c.CreatedAt = now
		c.UpdatedAt = now
		m.artifacts[c.ID] = &c
	}
	m.mu.Unlock()

	return m.refs.commit(record)
}

func (m *MockArtifactStore) ListCurrentChunkArtifacts(ctx context.Context, ownerID, fileRefID string, offset, limit int) ([]*domain.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		artifact   *domain.Artifact
		ingestedAt time.Time
	}
	var entries []entry
	for _, a := range m.artifacts {
		if a.OwnerID != ownerID || a.Type != domain.ArtifactChunksJSON {
			continue
		}
		if fileRefID != "" && a.FileRefID != fileRefID {
			continue
		}
		ref, ok := m.refs.snapshot(a.FileRefID)
		if !ok || ref.ChunksArtifactID != a.ID {
			continue
		}
		var ingestedAt time.Time
		if ref.IngestedAt != nil {
			ingestedAt = *ref.IngestedAt
		}
		entries = append(entries, entry{artifact: a, ingestedAt: ingestedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ingestedAt.Equal(entries[j].ingestedAt) {
			return entries[i].ingestedAt.After(entries[j].ingestedAt)
		}
		if !entries[i].artifact.UpdatedAt.Equal(entries[j].artifact.UpdatedAt) {
			return entries[i].artifact.UpdatedAt.After(entries[j].artifact.UpdatedAt)
		}
		return entries[i].artifact.ID < entries[j].artifact.ID
	})

	var result []*domain.Artifact
	for i := offset; i < len(entries) && len(result) < limit; i++ {
		c := *entries[i].artifact
		result = append(result, &c)
	}
	return result, nil
}

func (m *MockArtifactStore) CountByFileRef(ctx context.Context, fileRefID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.artifacts {
		if a.FileRefID == fileRefID {
			count++
		}
	}
	return count, nil
}

func (m *MockArtifactStore) find(fileRefID string, typ domain.ArtifactType, hash string) *domain.Artifact {
	for _, a := range m.artifacts {
		if a.FileRefID == fileRefID && a.Type == typ && a.ContentHash == hash {
			return a
		}
	}
	return nil
}

// Helper methods for testing

// Put stores an artifact directly
func (m *MockArtifactStore) Put(a *domain.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = a
}

func (m *MockArtifactStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}
