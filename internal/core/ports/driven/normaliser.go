package driven

import "github.com/custodia-labs/timeline-core/internal/core/domain"

// Normaliser cleans extracted text before it is hashed and chunked.
// Output must be deterministic for identical input.
type Normaliser interface {
	// Normalise transforms extracted text into stored raw text.
	Normalise(content string, mimeType string) string

	// SupportedTypes returns MIME types this normaliser handles.
	// Can include wildcards like "text/*" or "*/*".
	SupportedTypes() []string

	// Priority returns the normaliser priority (higher = more specific).
	//   50-89: Format-specific (PDF)
	//   1-9:   Fallback
	Priority() int
}

// NormaliserRegistry selects a normaliser per MIME type.
type NormaliserRegistry interface {
	// Get retrieves the highest priority normaliser for a MIME type, or nil.
	Get(mimeType string) Normaliser

	// Register registers a normaliser.
	Register(normaliser Normaliser)
}

// Chunker splits raw text into overlapping windows.
type Chunker interface {
	// Chunk splits text deterministically. Empty text yields no chunks.
	Chunk(text string) []domain.Chunk
}
