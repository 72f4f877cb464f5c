// Package extract converts downloaded documents to plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"

	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*DocconvExtractor)(nil)

var docconvMimeTypes = map[string]bool{
	"application/pdf": true,
}

// DocconvExtractor extracts PDF text with docconv. PDF conversion shells
// out to poppler's pdftotext, which must be installed.
type DocconvExtractor struct {
	logger *slog.Logger
}

// NewDocconvExtractor creates a PDF extractor
func NewDocconvExtractor(logger *slog.Logger) *DocconvExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocconvExtractor{logger: logger}
}

// Supports reports whether mimeType can be extracted
func (e *DocconvExtractor) Supports(mimeType string) bool {
	return docconvMimeTypes[mimeType]
}

// Extract returns the document body with surrounding whitespace trimmed
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !e.Supports(mimeType) {
		return "", fmt.Errorf("unsupported mime type for extraction: %s", mimeType)
	}
	if len(data) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		e.logger.Debug("docconv extracted empty text", "mime_type", mimeType, "bytes", len(data))
	}
	return text, nil
}
