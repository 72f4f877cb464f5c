package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure ChatService implements the driving port
var _ driving.ChatService = (*ChatService)(nil)

// Chat limits
const (
	MaxChatMessageChars   = 6000
	DefaultRetrievalLimit = 8
	MaxRetrievalLimit     = 12
	maxThreadTitleChars   = 80
	chatHistoryMessages   = 12
	listThreadsLimit      = 50
)

// Fixed assistant replies for requests that never reach the LLM
const (
	NoContentReply = "I don't have any indexed Drive content yet. Run ingestion and embeddings, then try again."
	NoMatchesReply = "I couldn't find relevant context in your indexed Drive content. Try rephrasing or ingesting more files."
)

// Retriever returns the top chunks for a query without quota accounting
type Retriever interface {
	Retrieve(ctx context.Context, ownerID, query string, limit int) ([]*domain.SearchHit, error)
}

// ChatService stores threads and answers user messages from retrieved
// Drive chunks.
type ChatService struct {
	store      driven.ChatStore
	embeddings driven.EmbeddingStore
	retriever  Retriever
	answers    driving.AnswerGenerator
	usage      *UsageLedger
	now        func() time.Time
	logger     *slog.Logger
}

// ChatServiceConfig holds dependencies for ChatService.
type ChatServiceConfig struct {
	Store      driven.ChatStore
	Embeddings driven.EmbeddingStore
	Retriever  Retriever
	Answers    driving.AnswerGenerator
	Usage      *UsageLedger
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewChatService creates a new chat service.
func NewChatService(cfg ChatServiceConfig) *ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		store:      cfg.Store,
		embeddings: cfg.Embeddings,
		retriever:  cfg.Retriever,
		answers:    cfg.Answers,
		usage:      cfg.Usage,
		now:        now,
		logger:     logger,
	}
}

// CreateThread starts an untitled thread.
func (s *ChatService) CreateThread(ctx context.Context, ownerID string) (*domain.ChatThread, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	now := s.now()
	thread := &domain.ChatThread{
		ID:        domain.GenerateID(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// ListThreads returns the owner's most recently updated threads.
func (s *ChatService) ListThreads(ctx context.Context, ownerID string) ([]*domain.ChatThread, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListThreads(ctx, ownerID, listThreadsLimit)
}

// GetThread returns a thread with a page of its messages.
func (s *ChatService) GetThread(ctx context.Context, ownerID, threadID string, opts domain.MessageListOptions) (*domain.ChatThread, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, ownerID, threadID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, thread.ID, opts.Clamp())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	thread.Messages = messages
	return thread, nil
}

// PostMessage stores the user message, answers it from retrieved chunks and
// stores the assistant reply. Both chat quotas are asserted before anything
// is stored or embedded; the token check uses the worst-case prompt size.
// Chat quota is only consumed when the LLM is called.
func (s *ChatService) PostMessage(ctx context.Context, ownerID, threadID, content string, limit int) (*domain.Answer, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, ownerID, threadID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxChatMessageChars {
		return nil, fmt.Errorf("%w: message is too long (max %d characters)", domain.ErrInvalidInput, MaxChatMessageChars)
	}
	if err := s.usage.AssertRemaining(ctx, ownerID, domain.UsageChatMessages, 1); err != nil {
		return nil, err
	}
	if err := s.usage.AssertRemaining(ctx, ownerID, domain.UsageLLMTokens, promptTokenCeiling(content)); err != nil {
		return nil, err
	}

	userMsg, err := s.addMessage(ctx, thread.ID, domain.RoleUser, content, nil)
	if err != nil {
		return nil, err
	}
	if thread.Title == "" {
		s.maybeSetTitle(ctx, thread.ID, content)
	}

	indexed, err := s.embeddings.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	if indexed == 0 {
		return s.reply(ctx, thread.ID, NoContentReply)
	}

	hits, err := s.retriever.Retrieve(ctx, ownerID, content, clampRetrievalLimit(limit))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return s.reply(ctx, thread.ID, NoMatchesReply)
	}

	chunks := make([]domain.ContextChunk, len(hits))
	for i, hit := range hits {
		chunks[i] = domain.ContextChunkFromHit(hit)
	}
	history, err := s.history(ctx, thread.ID, userMsg.ID)
	if err != nil {
		return nil, err
	}

	answer, err := s.answers.Answer(ctx, content, chunks, history)
	if err != nil {
		return nil, err
	}

	citations, err := json.Marshal(answer.Citations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode citations: %w", err)
	}
	if _, err := s.addMessage(ctx, thread.ID, domain.RoleAssistant, answer.Answer, citations); err != nil {
		return nil, err
	}
	if err := s.usage.Record(ctx, ownerID, domain.UsageChatMessages, 1); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	if err := s.usage.Record(ctx, ownerID, domain.UsageLLMTokens, answer.TokenEstimate); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	s.logger.Info("chat message answered",
		"owner_id", ownerID,
		"thread_id", thread.ID,
		"citations", len(answer.Citations),
		"tokens", answer.TokenEstimate,
	)
	return answer, nil
}

// reply stores a fixed assistant reply that has no citations.
func (s *ChatService) reply(ctx context.Context, threadID, content string) (*domain.Answer, error) {
	if _, err := s.addMessage(ctx, threadID, domain.RoleAssistant, content, nil); err != nil {
		return nil, err
	}
	return &domain.Answer{Answer: content, Citations: []domain.Citation{}}, nil
}

func (s *ChatService) addMessage(ctx context.Context, threadID string, role domain.MessageRole, content string, citations json.RawMessage) (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		ID:        domain.GenerateID(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		Citations: citations,
		CreatedAt: s.now(),
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store %s message: %w", strings.ToLower(string(role)), err)
	}
	return msg, nil
}

// maybeSetTitle titles an untitled thread from its first user message.
func (s *ChatService) maybeSetTitle(ctx context.Context, threadID, content string) {
	count, err := s.store.CountMessages(ctx, threadID, domain.RoleUser)
	if err != nil || count != 1 {
		return
	}
	if err := s.store.SetTitle(ctx, threadID, threadTitle(content)); err != nil {
		s.logger.Warn("failed to set thread title", "thread_id", threadID, "error", err)
	}
}

// history returns prior turns oldest first, without system messages.
func (s *ChatService) history(ctx context.Context, threadID, excludeID string) ([]domain.ConversationMessage, error) {
	recent, err := s.store.RecentMessages(ctx, threadID, excludeID, chatHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	slices.Reverse(recent)

	history := make([]domain.ConversationMessage, 0, len(recent))
	for _, m := range recent {
		if m.Role == domain.RoleSystem {
			continue
		}
		role := domain.RoleAssistant
		if m.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		history = append(history, domain.ConversationMessage{Role: role, Content: m.Content})
	}
	return history, nil
}

func clampRetrievalLimit(limit int) int {
	if limit == 0 {
		return DefaultRetrievalLimit
	}
	return min(MaxRetrievalLimit, max(1, limit))
}

func threadTitle(content string) string {
	trimmed := []rune(strings.TrimSpace(content))
	if len(trimmed) > maxThreadTitleChars {
		return string(trimmed[:maxThreadTitleChars-1]) + "…"
	}
	return string(trimmed)
}
