package postprocessors

import (
	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Chunker = (*Chunker)(nil)

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MaxChars is the window size in characters
	MaxChars int

	// OverlapChars is the character overlap between consecutive windows.
	// Clamped to [0, MaxChars-1].
	OverlapChars int
}

// DefaultChunkConfig returns the ingestion defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:     1200,
		OverlapChars: 200,
	}
}

// Chunker splits content into fixed-size overlapping windows.
// Offsets count Unicode code points, not bytes.
type Chunker struct {
	maxChars int
	overlap  int
}

// NewChunker creates a new chunker with the given config.
func NewChunker(config ChunkConfig) *Chunker {
	maxChars := config.MaxChars
	if maxChars <= 0 {
		maxChars = 1
	}
	overlap := config.OverlapChars
	if overlap < 0 {
		overlap = 0
	}
	if overlap > maxChars-1 {
		overlap = maxChars - 1
	}
	return &Chunker{maxChars: maxChars, overlap: overlap}
}

// Chunk splits text into windows [start, min(start+max, len)). After a window
// that does not reach the end, the next one starts overlap characters before
// its end.
func (c *Chunker) Chunk(text string) []domain.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return []domain.Chunk{}
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := start + c.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end >= len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// Chunk is a convenience wrapper around a one-off Chunker.
func Chunk(text string, maxChars, overlapChars int) []domain.Chunk {
	return NewChunker(ChunkConfig{MaxChars: maxChars, OverlapChars: overlapChars}).Chunk(text)
}
