package domain

import "time"

// ChunkEmbedding is the stored vector of one chunk.
// Unique per (ArtifactID, ChunkIndex, ContentHash).
type ChunkEmbedding struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	FileRefID   string    `json:"fileRefId"`
	ArtifactID  string    `json:"artifactId"`
	ChunkIndex  int       `json:"chunkIndex"`
	ChunkText   string    `json:"chunkText"`
	ContentHash string    `json:"contentHash"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SearchHit is one ranked chunk returned by Search
type SearchHit struct {
	Score         float64   `json:"score"`
	FileRefID     string    `json:"driveFileRefId"`
	DriveFileName string    `json:"driveFileName"`
	ChunkIndex    int       `json:"chunkIndex"`
	Snippet       string    `json:"snippet"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Search limits
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 20
)

// ClampSearchLimit applies the default and maximum to a requested limit.
func ClampSearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

// EmbedOptions scopes one embedding pipeline run
type EmbedOptions struct {
	// FileRefID restricts the run to one file (optional)
	FileRefID string `json:"driveFileRefId,omitempty"`

	// MaxChunks caps chunks embedded in this run (0 uses the configured default)
	MaxChunks int `json:"maxChunks,omitempty"`
}

// EmbedResult summarises one embedding pipeline run
type EmbedResult struct {
	ProcessedArtifacts int  `json:"processedArtifacts"`
	EmbeddedChunks     int  `json:"embeddedChunks"`
	SkippedChunks      int  `json:"skippedChunks"`
	Done               bool `json:"done"`
}

// PruneResult summarises removal of superseded embeddings
type PruneResult struct {
	Deleted int64 `json:"deleted"`
}
