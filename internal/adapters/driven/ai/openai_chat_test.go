package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

type chatRequestBody struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestChat(t *testing.T, handler http.HandlerFunc) *OpenAIChat {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIChat(OpenAIChatConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewOpenAIChat(t *testing.T) {
	_, err := NewOpenAIChat(OpenAIChatConfig{})
	assert.Error(t, err)

	c, err := NewOpenAIChat(OpenAIChatConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChatModel, c.Model())
	assert.NoError(t, c.Close())
}

func TestOpenAIChat_Complete(t *testing.T) {
	var got chatRequestBody
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Roadmap is in Q3 [Source f1:0]"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 14, "total_tokens": 134}
		}`))
	})

	completion, err := c.Complete(context.Background(), []domain.LLMMessage{
		{Role: domain.LLMRoleSystem, Content: "be concise"},
		{Role: domain.LLMRoleUser, Content: "when is the roadmap?"},
		{Role: domain.LLMRoleAssistant, Content: "earlier answer"},
	}, domain.CompletionOptions{Temperature: 0.2, MaxTokens: 400})
	require.NoError(t, err)

	assert.Equal(t, "Roadmap is in Q3 [Source f1:0]", completion.Content)
	assert.Equal(t, 120, completion.PromptTokens)
	assert.Equal(t, 14, completion.CompletionTokens)

	assert.Equal(t, DefaultChatModel, got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 0.0001)
	assert.Equal(t, 400, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [], "usage": {"prompt_tokens": 3}}`))
	})

	completion, err := c.Complete(context.Background(), []domain.LLMMessage{{Role: domain.LLMRoleUser, Content: "hi"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.Empty(t, completion.Content)
	assert.Equal(t, 3, completion.PromptTokens)
}

func TestOpenAIChat_APIError(t *testing.T) {
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	})

	_, err := c.Complete(context.Background(), []domain.LLMMessage{{Role: domain.LLMRoleUser, Content: "hi"}}, domain.CompletionOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalAPI))

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Rate limit reached", apiErr.Message)
	assert.Equal(t, chatService, apiErr.Service)
}

func TestOpenAIChat_Ping(t *testing.T) {
	modelPath := "/models/" + DefaultChatModel
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != modelPath {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": {"message": "model not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "gpt-4o-mini", "object": "model", "owned_by": "openai"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenAIChat(OpenAIChatConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))

	missing, err := NewOpenAIChat(OpenAIChatConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "no-such-model"})
	require.NoError(t, err)
	err = missing.Ping(context.Background())
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
