package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
	"github.com/custodia-labs/timeline-core/internal/runtime"
)

// Ensure AnswerGenerator implements the driving port
var _ driving.AnswerGenerator = (*AnswerGenerator)(nil)

// Prompt bounds, in characters
const (
	maxContextChars      = 12000
	maxSnippetChars      = 1200
	maxCitationChars     = 280
	maxConversationChars = 6000
	maxConversationMsgs  = 12

	answerTemperature = 0.2
	answerMaxTokens   = 400
)

const systemPrompt = `You are a helpful assistant answering questions using only the provided context.
- Use only the context; if it is insufficient, say you do not have enough information.
- Do not fabricate facts, files, or quotes.
- Cite sources in brackets using the provided sourceId, e.g. [fileId:3].
- Keep answers concise unless the user asks for detail.`

const emptyAnswerFallback = "I don't have enough information to answer that right now."

// Frame of the final user message around the context block and question
const (
	promptContextLabel  = "Context:\n"
	promptQuestionLabel = "\n\nQuestion:\n"
	promptInstruction   = "\n\nAnswer with citations."
)

// AnswerGenerator builds a bounded grounded prompt and asks the LLM for a
// reply with bracketed source citations.
type AnswerGenerator struct {
	services *runtime.Services
	logger   *slog.Logger
}

// NewAnswerGenerator creates a new answer generator.
func NewAnswerGenerator(services *runtime.Services, logger *slog.Logger) *AnswerGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerGenerator{services: services, logger: logger}
}

// Answer asks the LLM to answer query from chunks and history.
func (g *AnswerGenerator) Answer(ctx context.Context, query string, chunks []domain.ContextChunk, history []domain.ConversationMessage) (*domain.Answer, error) {
	llm, err := g.services.RequireLLM()
	if err != nil {
		return nil, err
	}

	citations := buildCitations(chunks)
	messages := buildMessages(query, citations, history)

	start := time.Now()
	completion, err := llm.Complete(ctx, messages, domain.CompletionOptions{
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	g.logger.Debug("llm chat completion",
		"model", llm.Model(),
		"duration", time.Since(start),
	)

	reply := strings.TrimSpace(completion.Content)
	if reply == "" {
		reply = emptyAnswerFallback
	}

	tokens := int64(completion.PromptTokens + completion.CompletionTokens)
	if tokens <= 0 {
		tokens = estimateTokens(messages) + int64(utf8.RuneCountInString(reply)+3)/4
	}

	return &domain.Answer{
		Answer:        reply,
		Citations:     citations,
		TokenEstimate: tokens,
	}, nil
}

// buildCitations keeps sourceIds stable as "<fileRefId>:<chunkIndex>".
func buildCitations(chunks []domain.ContextChunk) []domain.Citation {
	citations := make([]domain.Citation, len(chunks))
	for i, c := range chunks {
		c.Snippet = truncate(c.Snippet, maxCitationChars)
		citations[i] = domain.Citation{
			ContextChunk: c,
			SourceID:     fmt.Sprintf("%s:%d", c.FileRefID, c.ChunkIndex),
		}
	}
	return citations
}

const sectionSeparator = "\n\n"

// buildContextBlock renders citations in rank order. The joined block,
// separators included, never exceeds maxContextChars.
func buildContextBlock(citations []domain.Citation) string {
	sepLen := utf8.RuneCountInString(sectionSeparator)
	remaining := maxContextChars
	var sections []string
	for _, c := range citations {
		if len(sections) > 0 {
			if remaining <= sepLen {
				break
			}
			remaining -= sepLen
		}
		if remaining <= 0 {
			break
		}
		header := fmt.Sprintf("Source %s | %s | chunk %d | score %.3f",
			c.SourceID, c.DriveFileName, c.ChunkIndex, c.Score)
		block := cut(header+"\n"+truncate(c.Snippet, maxSnippetChars), remaining)
		sections = append(sections, block)
		remaining -= utf8.RuneCountInString(block)
	}
	return strings.Join(sections, sectionSeparator)
}

// trimConversation keeps the newest messages that fit the character budget,
// discarding the oldest first, and returns them in chronological order.
func trimConversation(history []domain.ConversationMessage) []domain.ConversationMessage {
	if len(history) > maxConversationMsgs {
		history = history[len(history)-maxConversationMsgs:]
	}
	remaining := maxConversationChars
	out := make([]domain.ConversationMessage, 0, len(history))
	for i := len(history) - 1; i >= 0 && remaining > 0; i-- {
		m := history[i]
		content := truncate(m.Content, remaining)
		out = append(out, domain.ConversationMessage{Role: m.Role, Content: content})
		remaining -= utf8.RuneCountInString(content)
	}
	slices.Reverse(out)
	return out
}

func buildMessages(query string, citations []domain.Citation, history []domain.ConversationMessage) []domain.LLMMessage {
	contextBlock := buildContextBlock(citations)
	if contextBlock == "" {
		contextBlock = "(no context provided)"
	}

	messages := []domain.LLMMessage{{Role: domain.LLMRoleSystem, Content: systemPrompt}}
	for _, m := range trimConversation(history) {
		messages = append(messages, domain.LLMMessage{
			Role:    domain.LLMRole(strings.ToLower(string(m.Role))),
			Content: m.Content,
		})
	}
	messages = append(messages, domain.LLMMessage{
		Role:    domain.LLMRoleUser,
		Content: promptContextLabel + contextBlock + promptQuestionLabel + query + promptInstruction,
	})
	return messages
}

// promptTokenCeiling bounds the tokens any answer to query can use: the
// system prompt, full history and context budgets, and the output cap.
func promptTokenCeiling(query string) int64 {
	chars := utf8.RuneCountInString(systemPrompt) +
		maxConversationChars +
		maxContextChars +
		utf8.RuneCountInString(promptContextLabel+promptQuestionLabel+promptInstruction) +
		utf8.RuneCountInString(query)
	return int64(chars+3)/4 + answerMaxTokens
}

// estimateTokens approximates prompt tokens at four characters per token.
func estimateTokens(messages []domain.LLMMessage) int64 {
	chars := 0
	for _, m := range messages {
		chars += utf8.RuneCountInString(m.Content)
	}
	return int64(chars+3) / 4
}

// truncate shortens v to at most limit characters, ending with an ellipsis.
func truncate(v string, limit int) string {
	runes := []rune(v)
	if len(runes) <= limit {
		return v
	}
	if limit <= 1 {
		return "…"
	}
	return strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace) + "…"
}

// cut returns the first limit characters of v.
func cut(v string, limit int) string {
	runes := []rune(v)
	if len(runes) <= limit {
		return v
	}
	return string(runes[:limit])
}
