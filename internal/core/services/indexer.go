package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure Indexer implements IndexService
var _ driving.IndexService = (*Indexer)(nil)

// Default listing caps
const (
	DefaultListPageSize  = 100
	DefaultIndexMaxFiles = 25
	DefaultIndexMaxBytes = 5 * 1024 * 1024
)

// Indexer runs the listing stage. Each run consumes at most one remote page
// and resumes inside a partially consumed page using IndexState.LastFileID.
type Indexer struct {
	source   driven.FileSource
	refs     driven.FileRefStore
	states   driven.IndexStateStore
	pageSize int
	maxFiles int
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// IndexerConfig holds dependencies for Indexer.
type IndexerConfig struct {
	Source   driven.FileSource
	Refs     driven.FileRefStore
	States   driven.IndexStateStore
	PageSize int   // Remote page size (default: 100)
	MaxFiles int   // Files recorded per run (default: 25)
	MaxBytes int64 // Known file bytes recorded per run (default: 5MB)
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewIndexer creates a new listing stage.
func NewIndexer(cfg IndexerConfig) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultListPageSize
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultIndexMaxFiles
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultIndexMaxBytes
	}

	return &Indexer{
		source:   cfg.Source,
		refs:     cfg.Refs,
		states:   cfg.States,
		pageSize: min(pageSize, maxFiles),
		maxFiles: maxFiles,
		maxBytes: maxBytes,
		now:      now,
		logger:   logger,
	}
}

// Run consumes at most one listing page for the owner.
// The cursor only advances once every file of the page has been recorded.
func (ix *Indexer) Run(ctx context.Context, ownerID string) (*domain.IndexResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}

	state, err := ix.states.Get(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to get index state: %w", err)
		}
		state = &domain.IndexState{OwnerID: ownerID}
	}

	files, nextToken, err := ix.source.ListFiles(ctx, ownerID, state.Cursor, ix.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	start := 0
	if state.LastFileID != "" {
		for i, f := range files {
			if f.ID == state.LastFileID {
				start = i + 1
				break
			}
		}
	}

	selected, bytes := ix.selectFiles(files[start:])

	newOrUpdated := 0
	if len(selected) > 0 {
		newOrUpdated, err = ix.refs.UpsertListed(ctx, ownerID, selected)
		if err != nil {
			return nil, fmt.Errorf("failed to record listed files: %w", err)
		}
	}

	pageFinished := start+len(selected) >= len(files)
	if pageFinished {
		state.Cursor = nextToken
		state.LastFileID = ""
	} else if len(selected) > 0 {
		state.LastFileID = selected[len(selected)-1].ID
	}

	now := ix.now()
	state.LastRunAt = &now
	state.Stats = domain.IndexStats{
		Processed:      len(selected),
		NewOrUpdated:   newOrUpdated,
		BytesProcessed: bytes,
	}
	if err := ix.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save index state: %w", err)
	}

	result := &domain.IndexResult{
		Processed:    len(selected),
		NewOrUpdated: newOrUpdated,
		Cursor:       state.Cursor,
		Done:         pageFinished && nextToken == "",
	}

	ix.logger.Info("listing run completed",
		"owner_id", ownerID,
		"processed", result.Processed,
		"new_or_updated", result.NewOrUpdated,
		"bytes", bytes,
		"done", result.Done,
	)

	return result, nil
}

// selectFiles takes files in order until the file or byte cap is reached.
// Unknown sizes do not count toward the byte cap. The first file is always
// taken.
func (ix *Indexer) selectFiles(files []*domain.RemoteFile) ([]*domain.RemoteFile, int64) {
	var (
		selected []*domain.RemoteFile
		bytes    int64
	)
	for _, f := range files {
		if len(selected) >= ix.maxFiles {
			break
		}
		var size int64
		if f.SizeBytes != nil {
			size = *f.SizeBytes
		}
		if len(selected) > 0 && bytes+size > ix.maxBytes {
			break
		}
		selected = append(selected, f)
		bytes += size
	}
	return selected, bytes
}
