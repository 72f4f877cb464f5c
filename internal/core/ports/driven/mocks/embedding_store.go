package mocks

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockEmbeddingStore is a mock implementation of EmbeddingStore for testing.
// Search uses exact cosine similarity over current artifacts only.
type MockEmbeddingStore struct {
	mu   sync.RWMutex
	refs *MockFileRefStore
	rows []*domain.ChunkEmbedding

	// InsertCalls counts InsertBatch invocations
	InsertCalls int
}

// NewMockEmbeddingStore creates a new MockEmbeddingStore backed by refs
func NewMockEmbeddingStore(refs *MockFileRefStore) *MockEmbeddingStore {
	return &MockEmbeddingStore{refs: refs}
}

func (m *MockEmbeddingStore) ExistingChunkIndexes(ctx context.Context, artifactID, contentHash string) (map[int]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := make(map[int]bool)
	for _, row := range m.rows {
		if row.ArtifactID == artifactID && row.ContentHash == contentHash {
			existing[row.ChunkIndex] = true
		}
	}
	return existing, nil
}

func (m *MockEmbeddingStore) InsertBatch(ctx context.Context, rows []*domain.ChunkEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++

	now := time.Now()
	for _, row := range rows {
		if m.exists(row) {
			continue
		}
		c := *row
		c.CreatedAt = now
		c.UpdatedAt = now
		m.rows = append(m.rows, &c)
	}
	return nil
}

func (m *MockEmbeddingStore) Search(ctx context.Context, ownerID string, query []float32, limit int) ([]*domain.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*domain.SearchHit
	for _, row := range m.rows {
		if row.OwnerID != ownerID {
			continue
		}
		ref, ok := m.refs.snapshot(row.FileRefID)
		if !ok || ref.ChunksArtifactID != row.ArtifactID {
			continue
		}
		hits = append(hits, &domain.SearchHit{
			Score:         cosine(query, row.Embedding),
			FileRefID:     row.FileRefID,
			DriveFileName: ref.Name,
			ChunkIndex:    row.ChunkIndex,
			Snippet:       row.ChunkText,
			UpdatedAt:     row.UpdatedAt,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MockEmbeddingStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *MockEmbeddingStore) DeleteSuperseded(ctx context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*domain.ChunkEmbedding
	var deleted int64
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			ref, ok := m.refs.snapshot(row.FileRefID)
			if !ok || ref.ChunksArtifactID != row.ArtifactID {
				deleted++
				continue
			}
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return deleted, nil
}

func (m *MockEmbeddingStore) exists(row *domain.ChunkEmbedding) bool {
	for _, r := range m.rows {
		if r.ArtifactID == row.ArtifactID && r.ChunkIndex == row.ChunkIndex && r.ContentHash == row.ContentHash {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Helper methods for testing

// Rows returns a copy of all stored rows
func (m *MockEmbeddingStore) Rows() []*domain.ChunkEmbedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ChunkEmbedding, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *MockEmbeddingStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
