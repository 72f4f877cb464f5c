package driven

import "context"

// EmbeddingService turns chunk text and search queries into vectors.
// Chunk vectors and query vectors must come from the same model so that
// cosine distances between them are meaningful.
type EmbeddingService interface {
	// Embed returns one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions is the vector length, or 0 when the model default is used
	Dimensions() int

	Model() string
	HealthCheck(ctx context.Context) error
	Close() error
}
