package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Ensure OpenAIChat implements LLMService
var _ driven.LLMService = (*OpenAIChat)(nil)

const (
	DefaultChatModel = "gpt-4o-mini"

	chatService = "openai chat"
)

// OpenAIChatConfig holds configuration for OpenAIChat
type OpenAIChatConfig struct {
	APIKey     string
	Model      string // default: gpt-4o-mini
	BaseURL    string // default: https://api.openai.com/v1
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIChat sends chat completions through the go-openai client
type OpenAIChat struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// NewOpenAIChat creates a chat-completion client
func NewOpenAIChat(cfg OpenAIChatConfig) (*OpenAIChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = cfg.HTTPClient

	return &OpenAIChat{
		client:     openai.NewClientWithConfig(config),
		httpClient: cfg.HTTPClient,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}, nil
}

// Complete returns the first choice of a chat completion
func (c *OpenAIChat) Complete(ctx context.Context, messages []domain.LLMMessage, opts domain.CompletionOptions) (*domain.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.mapError(ctx, err)
	}

	completion := &domain.Completion{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		completion.Content = resp.Choices[0].Message.Content
		c.logger.Debug("chat completion received",
			"model", c.model,
			"finish_reason", resp.Choices[0].FinishReason,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
	}
	return completion, nil
}

// Model returns the model name being used
func (c *OpenAIChat) Model() string {
	return c.model
}

// Ping retrieves the configured model
func (c *OpenAIChat) Ping(ctx context.Context) error {
	if _, err := c.client.GetModel(ctx, c.model); err != nil {
		return c.mapError(ctx, err)
	}
	return nil
}

// Close releases idle connections
func (c *OpenAIChat) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func chatRole(role domain.LLMRole) string {
	switch role {
	case domain.LLMRoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.LLMRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func (c *OpenAIChat) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ExternalAPIError{Service: chatService, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &domain.ExternalAPIError{Service: chatService, StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return &domain.ExternalAPIError{Service: chatService, Message: err.Error()}
}
