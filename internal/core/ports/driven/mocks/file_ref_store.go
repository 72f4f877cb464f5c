package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockFileRefStore is a mock implementation of FileRefStore for testing
type MockFileRefStore struct {
	mu   sync.RWMutex
	refs map[string]*domain.FileRef

	// UpsertErr is returned by UpsertListed when set
	UpsertErr error
}

// NewMockFileRefStore creates a new MockFileRefStore
func NewMockFileRefStore() *MockFileRefStore {
	return &MockFileRefStore{
		refs: make(map[string]*domain.FileRef),
	}
}

func (m *MockFileRefStore) UpsertListed(ctx context.Context, ownerID string, files []*domain.RemoteFile) (int, error) {
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for _, f := range files {
		existing := m.findByDriveID(ownerID, f.ID)
		if existing == nil {
			ref := domain.NewFileRef(ownerID, f, now)
			m.refs[ref.ID] = ref
			count++
			continue
		}
		if existing.ApplyListing(f, now) {
			count++
		}
	}
	return count, nil
}

func (m *MockFileRefStore) Get(ctx context.Context, ownerID, id string) (*domain.FileRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[id]
	if !ok || ref.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	c := *ref
	return &c, nil
}

func (m *MockFileRefStore) ListIngestCandidates(ctx context.Context, ownerID string, limit int) ([]*domain.FileRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.FileRef
	for _, ref := range m.refs {
		if ref.OwnerID == ownerID && ref.IsIngestCandidate() {
			c := *ref
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].DriveFileID < result[j].DriveFileID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockFileRefStore) CountIngestCandidates(ctx context.Context, ownerID string) (int, error) {
	refs, err := m.ListIngestCandidates(ctx, ownerID, 0)
	return len(refs), err
}

func (m *MockFileRefStore) MarkContentSkipped(ctx context.Context, ownerID, id, reason, contentVersion string) error {
	return m.update(ownerID, id, func(ref *domain.FileRef) {
		ref.ContentStatus = domain.ContentStatusSkipped
		ref.ContentLastError = reason
		ref.ContentVersion = contentVersion
	})
}

func (m *MockFileRefStore) MarkContentError(ctx context.Context, ownerID, id, message string) error {
	return m.update(ownerID, id, func(ref *domain.FileRef) {
		ref.ContentStatus = domain.ContentStatusError
		ref.ContentLastError = message
	})
}

func (m *MockFileRefStore) Requeue(ctx context.Context, ownerID, id string) (*domain.FileRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[id]
	if !ok || ref.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	if !ref.CanRequeue() {
		return nil, domain.ErrInvalidInput
	}
	ref.ContentStatus = domain.ContentStatusPending
	ref.ContentLastError = ""
	ref.UpdatedAt = time.Now()
	c := *ref
	return &c, nil
}

func (m *MockFileRefStore) List(ctx context.Context, ownerID string, opts domain.FileListOptions) (*domain.FileListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := &domain.FileListResult{
		Limit:               opts.Limit,
		Offset:              opts.Offset,
		StatusCounts:        make(map[domain.FileStatus]int),
		ContentStatusCounts: make(map[domain.ContentStatus]int),
	}
	var all []*domain.FileRef
	for _, ref := range m.refs {
		if ref.OwnerID != ownerID {
			continue
		}
		result.StatusCounts[ref.Status]++
		result.ContentStatusCounts[ref.ContentStatus]++
		c := *ref
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	result.Total = len(all)
	if opts.Offset < len(all) {
		all = all[opts.Offset:]
		if opts.Limit > 0 && len(all) > opts.Limit {
			all = all[:opts.Limit]
		}
		result.Files = all
	}
	return result, nil
}

func (m *MockFileRefStore) StatusCounts(ctx context.Context, ownerID string) (map[domain.FileStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.FileStatus]int)
	for _, ref := range m.refs {
		if ref.OwnerID == ownerID {
			counts[ref.Status]++
		}
	}
	return counts, nil
}

func (m *MockFileRefStore) findByDriveID(ownerID, driveFileID string) *domain.FileRef {
	for _, ref := range m.refs {
		if ref.OwnerID == ownerID && ref.DriveFileID == driveFileID {
			return ref
		}
	}
	return nil
}

func (m *MockFileRefStore) update(ownerID, id string, fn func(ref *domain.FileRef)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[id]
	if !ok || ref.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	fn(ref)
	ref.UpdatedAt = time.Now()
	return nil
}

// Helper methods for testing

// Put stores a ref directly
func (m *MockFileRefStore) Put(ref *domain.FileRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.ID] = ref
}

// GetByDriveID returns the stored ref for a remote file id, or nil
func (m *MockFileRefStore) GetByDriveID(ownerID, driveFileID string) *domain.FileRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref := m.findByDriveID(ownerID, driveFileID)
	if ref == nil {
		return nil
	}
	c := *ref
	return &c
}

// commit applies a successful ingestion to the stored ref
func (m *MockFileRefStore) commit(record *domain.IngestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[record.FileRef.ID]
	if !ok {
		return domain.ErrNotFound
	}
	ingestedAt := record.IngestedAt
	ref.ContentStatus = domain.ContentStatusIngested
	ref.ContentLastError = ""
	ref.ContentVersion = record.ContentVersion
	ref.IngestedAt = &ingestedAt
	ref.ChunksArtifactID = record.Chunks.ID
	ref.UpdatedAt = ingestedAt
	return nil
}

func (m *MockFileRefStore) snapshot(id string) (domain.FileRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[id]
	if !ok {
		return domain.FileRef{}, false
	}
	return *ref, true
}

func (m *MockFileRefStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}
