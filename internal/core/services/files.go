package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure fileService implements FileService
var _ driving.FileService = (*fileService)(nil)

// File paging limits
const (
	DefaultFileListLimit = 25
	MaxFileListLimit     = 100
)

type fileService struct {
	refs  driven.FileRefStore
	creds driven.CredentialStore
}

// NewFileService creates a new FileService
func NewFileService(refs driven.FileRefStore, creds driven.CredentialStore) driving.FileService {
	return &fileService{refs: refs, creds: creds}
}

// List pages through the owner's file refs, most recently updated first.
func (s *fileService) List(ctx context.Context, ownerID string, opts domain.FileListOptions) (*domain.FileListResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultFileListLimit
	}
	if opts.Limit > MaxFileListLimit {
		opts.Limit = MaxFileListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	result, err := s.refs.List(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if result.Files == nil {
		result.Files = []*domain.FileRef{}
	}
	return result, nil
}

// DriveStatus reports whether credentials are stored and the indexing counts.
func (s *fileService) DriveStatus(ctx context.Context, ownerID string) (*domain.DriveStatus, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}

	connected := true
	if _, err := s.creds.Get(ctx, ownerID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		connected = false
	}

	counts, err := s.refs.StatusCounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	return &domain.DriveStatus{Connected: connected, StatusCounts: counts}, nil
}
