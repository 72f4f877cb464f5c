package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultBaseURL        = "https://api.openai.com/v1"

	defaultBatchSize   = 100
	defaultMaxRetries  = 3
	defaultRetryBase   = 500 * time.Millisecond
	defaultConcurrency = 2

	embeddingService = "openai embeddings"
)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedding calls the OpenAI embeddings endpoint over plain HTTP.
// Inputs are split into batches; a rejected batch (429 or 5xx) is retried
// with exponential backoff before the call fails.
type OpenAIEmbedding struct {
	apiKey      string
	model       string
	baseURL     string
	dimensions  int
	requestDims int // sent as "dimensions" only when configured explicitly
	batchSize   int
	maxRetries  int
	retryBase   time.Duration
	concurrency int
	limiter     *rate.Limiter
	client      *http.Client
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// OpenAIEmbeddingConfig holds configuration for OpenAIEmbedding
type OpenAIEmbeddingConfig struct {
	APIKey            string
	Model             string        // default: text-embedding-3-small
	BaseURL           string        // default: https://api.openai.com/v1
	Dimensions        int           // sent to the API when set; default: looked up by model, else 1536
	BatchSize         int           // Inputs per request (default: 100)
	MaxRetries        int           // Retries of a 429/5xx response (default: 3)
	RetryBase         time.Duration // First backoff, doubled per retry (default: 500ms)
	Concurrency       int           // Batches in flight (default: 2)
	RequestsPerSecond float64       // Client-side pacing; 0 disables it
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// NewOpenAIEmbedding creates a new OpenAI embedding client
func NewOpenAIEmbedding(cfg OpenAIEmbeddingConfig) (*OpenAIEmbedding, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	requestDims := 0
	if cfg.Dimensions > 0 {
		requestDims = cfg.Dimensions
	} else {
		dims, ok := openAIModelDimensions[cfg.Model]
		if !ok {
			dims = 1536
		}
		cfg.Dimensions = dims
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &OpenAIEmbedding{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		dimensions:  cfg.Dimensions,
		requestDims: requestDims,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		retryBase:   cfg.RetryBase,
		concurrency: cfg.Concurrency,
		client:      cfg.HTTPClient,
		sleep:       sleepContext,
		logger:      cfg.Logger,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e, nil
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Embed returns one vector per text, in input order
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single query string
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck makes a one-input request
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases idle connections
func (e *OpenAIEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// embedBatch sends one request, retrying throttled and server failures
func (e *OpenAIEmbedding) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Input:          batch,
		Model:          e.model,
		EncodingFormat: "float",
		Dimensions:     e.requestDims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		status, respBody, err := e.post(ctx, body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return e.decode(respBody, len(batch))
		}

		retryable := status == http.StatusTooManyRequests || status >= 500
		if !retryable || attempt >= e.maxRetries {
			return nil, &domain.ExternalAPIError{
				Service:    embeddingService,
				StatusCode: status,
				Message:    errorMessage(respBody, status),
			}
		}

		backoff := e.retryBase << attempt
		e.logger.Warn("embedding request rejected, retrying",
			"status", status,
			"attempt", attempt+1,
			"backoff", backoff,
			"batch_size", len(batch))
		if err := e.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func (e *OpenAIEmbedding) post(ctx context.Context, body []byte) (int, []byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &domain.ExternalAPIError{Service: embeddingService, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.ExternalAPIError{Service: embeddingService, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	return resp.StatusCode, respBody, nil
}

// decode orders vectors by their declared index and checks they line up
// with the request.
func (e *OpenAIEmbedding) decode(body []byte, want int) ([][]float32, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ExternalAPIError{Service: embeddingService, StatusCode: http.StatusOK, Message: "invalid response body"}
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: requested %d, received %d", domain.ErrEmbeddingMismatch, want, len(resp.Data))
	}

	vectors := make([][]float32, want)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= want || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", domain.ErrEmbeddingMismatch, d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrEmbeddingMismatch, d.Index, len(d.Embedding), e.dimensions)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func errorMessage(body []byte, status int) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
