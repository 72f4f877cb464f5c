package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// FileSource lists and downloads an owner's remote files (Google Drive).
type FileSource interface {
	// ListFiles returns one page of the owner's non-trashed files.
	// Pass an empty pageToken for the first page. The returned token is
	// empty when no more pages exist.
	ListFiles(ctx context.Context, ownerID, pageToken string, pageSize int) ([]*domain.RemoteFile, string, error)

	// FetchText returns the plain text of a supported file, or a skipped
	// result with a static reason. Infrastructure failures are errors.
	FetchText(ctx context.Context, ownerID, fileID, mimeType string) (*domain.TextResult, error)
}

// TextExtractor converts downloaded binary documents to plain text
type TextExtractor interface {
	// Extract returns the text content of data
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)

	// Supports reports whether mimeType can be extracted
	Supports(mimeType string) bool
}

// CredentialStore reads the Drive OAuth tokens written by the sign-in flow.
type CredentialStore interface {
	// Get returns the owner's credentials or domain.ErrNotFound
	Get(ctx context.Context, ownerID string) (*domain.DriveCredentials, error)

	// Save stores credentials, replacing any existing ones.
	// Used to persist refreshed access tokens.
	Save(ctx context.Context, creds *domain.DriveCredentials) error

	// ListOwners returns every owner that has stored credentials
	ListOwners(ctx context.Context) ([]string, error)
}
