package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

func newThread(t *testing.T, svc *ChatService) *domain.ChatThread {
	t.Helper()
	thread, err := svc.CreateThread(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return thread
}

func embedScenario(t *testing.T, f *testFixture) {
	t.Helper()
	ingestScenario(t, f)
	if _, err := f.embeddingPipeline().Run(context.Background(), testOwner, domain.EmbedOptions{}); err != nil {
		t.Fatalf("embed: %v", err)
	}
}

func TestChatService_NoContentReply(t *testing.T) {
	f := newTestFixture(t)
	svc := f.chat()
	thread := newThread(t, svc)
	ctx := context.Background()

	answer, err := svc.PostMessage(ctx, testOwner, thread.ID, "  What is alpha?  ", 0)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if answer.Answer != NoContentReply || len(answer.Citations) != 0 {
		t.Errorf("unexpected answer %+v", answer)
	}
	if len(f.llm.Requests) != 0 {
		t.Error("fallback must not call the LLM")
	}

	got, err := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got.Title != "What is alpha?" {
		t.Errorf("expected title from first message, got %q", got.Title)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != domain.RoleUser || got.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user and assistant messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "What is alpha?" {
		t.Errorf("expected trimmed content, got %q", got.Messages[0].Content)
	}

	snap, _ := f.ledger.Snapshot(ctx, testOwner)
	if snap.Usage.ChatMessageCount != 0 || snap.Usage.LLMTokenEstimate != 0 {
		t.Errorf("fallback must not consume quota, got %+v", snap.Usage)
	}
}

func TestChatService_NoMatchesReply(t *testing.T) {
	f := newTestFixture(t)
	// A vector of a superseded artifact counts as content but never matches
	_ = f.embeddings.InsertBatch(context.Background(), []*domain.ChunkEmbedding{{
		ID:          "emb-1",
		OwnerID:     testOwner,
		FileRefID:   "gone",
		ArtifactID:  "old",
		ContentHash: "h",
		Embedding:   []float32{1},
	}})
	svc := f.chat()
	thread := newThread(t, svc)

	answer, err := svc.PostMessage(context.Background(), testOwner, thread.ID, "alpha", 0)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if answer.Answer != NoMatchesReply {
		t.Errorf("expected no-matches reply, got %q", answer.Answer)
	}
	if len(f.llm.Requests) != 0 {
		t.Error("fallback must not call the LLM")
	}
}

func TestChatService_AnswersWithCitations(t *testing.T) {
	f := newTestFixture(t)
	embedScenario(t, f)
	svc := f.chat()
	thread := newThread(t, svc)
	ctx := context.Background()

	answer, err := svc.PostMessage(ctx, testOwner, thread.ID, "alpha", 0)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if answer.Answer != "Alpha is described in [ref:0]." {
		t.Errorf("unexpected answer %q", answer.Answer)
	}
	if len(answer.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(answer.Citations))
	}
	if answer.Citations[0].ChunkIndex != 0 || answer.Citations[0].DriveFileName != "Greek letters" {
		t.Errorf("unexpected top citation %+v", answer.Citations[0])
	}

	got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
	assistant := got.Messages[1]
	var stored []domain.Citation
	if err := json.Unmarshal(assistant.Citations, &stored); err != nil {
		t.Fatalf("stored citations: %v", err)
	}
	if len(stored) != 3 || stored[0].SourceID != answer.Citations[0].SourceID {
		t.Errorf("unexpected stored citations %+v", stored)
	}

	snap, _ := f.ledger.Snapshot(ctx, testOwner)
	if snap.Usage.ChatMessageCount != 1 || snap.Usage.LLMTokenEstimate != 15 {
		t.Errorf("unexpected usage %+v", snap.Usage)
	}
	if snap.Usage.SearchCount != 0 {
		t.Error("chat retrieval must not consume search quota")
	}
}

func TestChatService_HistoryAndTitle(t *testing.T) {
	f := newTestFixture(t)
	embedScenario(t, f)
	svc := f.chat()
	thread := newThread(t, svc)
	ctx := context.Background()

	first := strings.Repeat("alpha ", 30)
	if _, err := svc.PostMessage(ctx, testOwner, thread.ID, first, 1); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if _, err := svc.PostMessage(ctx, testOwner, thread.ID, "And delta?", 1); err != nil {
		t.Fatalf("second message: %v", err)
	}

	req := f.llm.LastRequest()
	if len(req.Messages) != 4 {
		t.Fatalf("expected system, 2 history and user messages, got %d", len(req.Messages))
	}
	if req.Messages[1].Content != strings.TrimSpace(first) {
		t.Errorf("expected first user message in history, got %q", req.Messages[1].Content)
	}
	if req.Messages[2].Role != domain.LLMRoleAssistant {
		t.Errorf("expected assistant turn in history, got %s", req.Messages[2].Role)
	}
	if !strings.Contains(req.Messages[3].Content, "Question:\nAnd delta?") {
		t.Error("expected the new question last")
	}
	if strings.Count(req.Messages[3].Content, "Source ") != 1 {
		t.Error("expected retrieval limited to one chunk")
	}

	got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
	if n := utf8.RuneCountInString(got.Title); n != maxThreadTitleChars {
		t.Errorf("expected title of %d characters, got %d", maxThreadTitleChars, n)
	}
	if !strings.HasPrefix(got.Title, "alpha alpha") || !strings.HasSuffix(got.Title, "…") {
		t.Errorf("unexpected title %q", got.Title)
	}
}

func TestChatService_Validation(t *testing.T) {
	f := newTestFixture(t)
	svc := f.chat()
	thread := newThread(t, svc)
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		thread  string
		content string
		wantErr error
	}{
		{name: "empty owner", owner: "", thread: thread.ID, content: "hi", wantErr: domain.ErrUnauthorized},
		{name: "unknown thread", owner: testOwner, thread: "missing", content: "hi", wantErr: domain.ErrNotFound},
		{name: "other owner", owner: "owner-2", thread: thread.ID, content: "hi", wantErr: domain.ErrNotFound},
		{name: "blank content", owner: testOwner, thread: thread.ID, content: " \n ", wantErr: domain.ErrInvalidInput},
		{name: "too long", owner: testOwner, thread: thread.ID, content: strings.Repeat("a", MaxChatMessageChars+1), wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PostMessage(ctx, tt.owner, tt.thread, tt.content, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
	if len(got.Messages) != 0 {
		t.Errorf("rejected messages must not be stored, got %d", len(got.Messages))
	}
	if _, err := svc.GetThread(ctx, "owner-2", thread.ID, domain.MessageListOptions{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another owner, got %v", err)
	}
}

func TestChatService_Quota(t *testing.T) {
	t.Run("chat messages checked before storing", func(t *testing.T) {
		f := newTestFixture(t)
		embedScenario(t, f)
		limits := domain.DefaultQuotaLimits()
		limits.ChatMessages = 1
		f.ledger = f.newLedger(limits)
		svc := f.chat()
		thread := newThread(t, svc)
		ctx := context.Background()

		if _, err := svc.PostMessage(ctx, testOwner, thread.ID, "alpha", 0); err != nil {
			t.Fatalf("first message: %v", err)
		}
		_, err := svc.PostMessage(ctx, testOwner, thread.ID, "alpha again", 0)
		var qe *domain.QuotaError
		if !errors.As(err, &qe) || qe.Kind != domain.UsageChatMessages {
			t.Fatalf("expected chat_messages QuotaError, got %v", err)
		}

		got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
		if len(got.Messages) != 2 {
			t.Errorf("expected the rejected message unstored, got %d messages", len(got.Messages))
		}
	})

	t.Run("token estimate checked before the llm call", func(t *testing.T) {
		f := newTestFixture(t)
		embedScenario(t, f)
		limits := domain.DefaultQuotaLimits()
		limits.LLMTokens = answerMaxTokens
		f.ledger = f.newLedger(limits)
		svc := f.chat()
		thread := newThread(t, svc)

		_, err := svc.PostMessage(context.Background(), testOwner, thread.ID, "alpha", 0)
		var qe *domain.QuotaError
		if !errors.As(err, &qe) || qe.Kind != domain.UsageLLMTokens {
			t.Fatalf("expected llm_tokens QuotaError, got %v", err)
		}
		if len(f.llm.Requests) != 0 {
			t.Error("LLM must not be called over the token quota")
		}
	})

	t.Run("token quota checked before retrieval and storing", func(t *testing.T) {
		f := newTestFixture(t)
		embedScenario(t, f)
		limits := domain.DefaultQuotaLimits()
		limits.LLMTokens = promptTokenCeiling("alpha") - 1
		f.ledger = f.newLedger(limits)
		svc := f.chat()
		thread := newThread(t, svc)
		ctx := context.Background()
		queries := f.embedder.QueryCalls

		_, err := svc.PostMessage(ctx, testOwner, thread.ID, "alpha", 0)
		var qe *domain.QuotaError
		if !errors.As(err, &qe) || qe.Kind != domain.UsageLLMTokens {
			t.Fatalf("expected llm_tokens QuotaError, got %v", err)
		}
		if f.embedder.QueryCalls != queries {
			t.Error("rejected message must not embed the query")
		}
		got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
		if len(got.Messages) != 0 {
			t.Errorf("expected nothing stored, got %d messages", len(got.Messages))
		}
		snap, _ := f.ledger.Snapshot(ctx, testOwner)
		if snap.Usage.ChatMessageCount != 0 || snap.Usage.LLMTokenEstimate != 0 {
			t.Errorf("rejected message must not consume quota, got %+v", snap.Usage)
		}
	})

	t.Run("usage record failure is reported after the reply is stored", func(t *testing.T) {
		f := newTestFixture(t)
		embedScenario(t, f)
		svc := f.chat()
		thread := newThread(t, svc)
		ctx := context.Background()
		f.usageStore.IncrementErr = errors.New("usage backend down")

		if _, err := svc.PostMessage(ctx, testOwner, thread.ID, "alpha", 0); err == nil {
			t.Fatal("expected usage record failure")
		}
		got, _ := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{})
		if len(got.Messages) != 2 {
			t.Errorf("expected user and assistant messages stored, got %d", len(got.Messages))
		}
	})
}

func TestChatService_GetThreadPaging(t *testing.T) {
	f := newTestFixture(t)
	svc := f.chat()
	thread := newThread(t, svc)
	ctx := context.Background()

	base := f.now
	for i := 0; i < 5; i++ {
		_ = f.chats.AddMessage(ctx, &domain.ChatMessage{
			ID:        domain.GenerateID(),
			ThreadID:  thread.ID,
			Role:      domain.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "d" || got.Messages[1].Content != "e" {
		t.Errorf("expected the newest two messages oldest first, got %v", contents(got.Messages))
	}

	before := base.Add(3 * time.Minute)
	got, _ = svc.GetThread(ctx, testOwner, thread.ID, domain.MessageListOptions{Limit: 2, Before: &before})
	if len(got.Messages) != 2 || got.Messages[0].Content != "b" || got.Messages[1].Content != "c" {
		t.Errorf("expected b and c before the cursor, got %v", contents(got.Messages))
	}
}

func TestChatService_ListThreads(t *testing.T) {
	f := newTestFixture(t)
	svc := f.chat()
	newThread(t, svc)
	newThread(t, svc)

	threads, err := svc.ListThreads(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 2 {
		t.Errorf("expected 2 threads, got %d", len(threads))
	}
	others, _ := svc.ListThreads(context.Background(), "owner-2")
	if len(others) != 0 {
		t.Errorf("expected no threads for another owner, got %d", len(others))
	}
}

func TestClampRetrievalLimit(t *testing.T) {
	tests := map[int]int{0: 8, -3: 1, 1: 1, 5: 5, 12: 12, 40: 12}
	for in, want := range tests {
		if got := clampRetrievalLimit(in); got != want {
			t.Errorf("clampRetrievalLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func contents(msgs []*domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
