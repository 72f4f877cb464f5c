package domain

import (
	"encoding/json"
	"time"
)

// MessageRole is the author of a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleSystem    MessageRole = "SYSTEM"
)

// ChatThread is one conversation owned by a user
type ChatThread struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	Title     string         `json:"title,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Messages  []*ChatMessage `json:"messages,omitempty"`
}

// ChatMessage is one turn of a thread
type ChatMessage struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"threadId"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Citations json.RawMessage `json:"citations,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Message paging limits
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// MessageListOptions pages backwards through a thread
type MessageListOptions struct {
	Limit  int
	Before *time.Time
}

// Clamp applies the default and bounds to Limit.
func (o MessageListOptions) Clamp() MessageListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultMessageLimit
	case o.Limit > MaxMessageLimit:
		o.Limit = MaxMessageLimit
	}
	return o
}

// ConversationMessage is history passed to the answer generator
type ConversationMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ContextChunk is a retrieved chunk offered to the LLM as grounding
type ContextChunk struct {
	FileRefID     string  `json:"driveFileRefId"`
	DriveFileName string  `json:"driveFileName"`
	ChunkIndex    int     `json:"chunkIndex"`
	Score         float64 `json:"score"`
	Snippet       string  `json:"snippet"`
}

// ContextChunkFromHit converts a search hit to grounding context.
func ContextChunkFromHit(hit *SearchHit) ContextChunk {
	return ContextChunk{
		FileRefID:     hit.FileRefID,
		DriveFileName: hit.DriveFileName,
		ChunkIndex:    hit.ChunkIndex,
		Score:         hit.Score,
		Snippet:       hit.Snippet,
	}
}

// Citation references a context chunk from an answer
type Citation struct {
	ContextChunk

	// SourceID is "<fileRefId>:<chunkIndex>", the token the model cites in brackets
	SourceID string `json:"sourceId"`
}

// Answer is a grounded LLM reply
type Answer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`

	// TokenEstimate approximates prompt plus completion tokens for quota accounting
	TokenEstimate int64 `json:"-"`
}

// LLMRole is a chat-completion message role
type LLMRole string

const (
	LLMRoleSystem    LLMRole = "system"
	LLMRoleUser      LLMRole = "user"
	LLMRoleAssistant LLMRole = "assistant"
)

// LLMMessage is one message sent to the chat-completion API
type LLMMessage struct {
	Role    LLMRole
	Content string
}

// CompletionOptions tunes one chat-completion call
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// Completion is the top choice of a chat-completion call
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}
