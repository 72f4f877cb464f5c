package domain

import "time"

// UsageKind names a metered resource
type UsageKind string

const (
	UsageSearches     UsageKind = "searches"
	UsageEmbedChunks  UsageKind = "embed_chunks"
	UsageChatMessages UsageKind = "chat_messages"
	UsageLLMTokens    UsageKind = "llm_tokens"
)

// UsageKinds lists every metered kind in display order
var UsageKinds = []UsageKind{UsageSearches, UsageEmbedChunks, UsageChatMessages, UsageLLMTokens}

// UsageCounter holds one owner's consumption for one UTC day.
type UsageCounter struct {
	OwnerID          string    `json:"ownerId"`
	PeriodStart      time.Time `json:"periodStart"`
	SearchCount      int64     `json:"searchCount"`
	EmbedChunkCount  int64     `json:"embedChunkCount"`
	ChatMessageCount int64     `json:"chatMessageCount"`
	LLMTokenEstimate int64     `json:"llmTokenEstimate"`
}

// NewUsageCounter returns a zeroed counter for the period.
func NewUsageCounter(ownerID string, periodStart time.Time) *UsageCounter {
	return &UsageCounter{OwnerID: ownerID, PeriodStart: periodStart}
}

// Used returns the consumption recorded for kind.
func (c *UsageCounter) Used(kind UsageKind) int64 {
	switch kind {
	case UsageSearches:
		return c.SearchCount
	case UsageEmbedChunks:
		return c.EmbedChunkCount
	case UsageChatMessages:
		return c.ChatMessageCount
	case UsageLLMTokens:
		return c.LLMTokenEstimate
	}
	return 0
}

// Add increments the counter for kind.
func (c *UsageCounter) Add(kind UsageKind, amount int64) {
	switch kind {
	case UsageSearches:
		c.SearchCount += amount
	case UsageEmbedChunks:
		c.EmbedChunkCount += amount
	case UsageChatMessages:
		c.ChatMessageCount += amount
	case UsageLLMTokens:
		c.LLMTokenEstimate += amount
	}
}

// PeriodStartUTC truncates t to midnight UTC.
func PeriodStartUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// QuotaLimits are the configured daily limits
type QuotaLimits struct {
	Searches     int64 `json:"searches"`
	EmbedChunks  int64 `json:"embedChunks"`
	ChatMessages int64 `json:"chatMessages"`
	LLMTokens    int64 `json:"llmTokens"`
}

// DefaultQuotaLimits returns the limits used when none are configured
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		Searches:     200,
		EmbedChunks:  5000,
		ChatMessages: 100,
		LLMTokens:    200000,
	}
}

// For returns the limit for kind.
func (l QuotaLimits) For(kind UsageKind) int64 {
	switch kind {
	case UsageSearches:
		return l.Searches
	case UsageEmbedChunks:
		return l.EmbedChunks
	case UsageChatMessages:
		return l.ChatMessages
	case UsageLLMTokens:
		return l.LLMTokens
	}
	return 0
}

// QuotaSnapshot reports usage, limits and remaining headroom for the current day
type QuotaSnapshot struct {
	PeriodStart time.Time           `json:"periodStart"`
	Usage       UsageCounter        `json:"usage"`
	Limits      QuotaLimits         `json:"limits"`
	Remaining   map[UsageKind]int64 `json:"remaining"`
}
