package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/ports/driven/mocks"
)

func TestWrapQueryCache_Disabled(t *testing.T) {
	next := mocks.NewMockEmbeddingService()
	if got := WrapQueryCache(next, 0, time.Minute, nil); got != next {
		t.Error("expected size 0 to disable caching")
	}
	if got := WrapQueryCache(next, 10, 0, nil); got != next {
		t.Error("expected ttl 0 to disable caching")
	}
}

func TestCachedEmbedding_EmbedQuery(t *testing.T) {
	next := mocks.NewMockEmbeddingService()
	svc := WrapQueryCache(next, 10, time.Minute, nil)
	ctx := context.Background()

	first, err := svc.EmbedQuery(ctx, "quarterly roadmap")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	first[0] = 999 // callers may mutate their copy

	second, err := svc.EmbedQuery(ctx, "quarterly roadmap")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if next.QueryCalls != 1 {
		t.Errorf("expected one upstream call, got %d", next.QueryCalls)
	}
	if second[0] == 999 {
		t.Error("cached vector was mutated through a returned slice")
	}

	if _, err := svc.EmbedQuery(ctx, "budget"); err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if next.QueryCalls != 2 {
		t.Errorf("expected a miss for a new query, got %d calls", next.QueryCalls)
	}
	if n := svc.(*CachedEmbedding).Len(); n != 2 {
		t.Errorf("expected 2 cached entries, got %d", n)
	}
}

func TestCachedEmbedding_ErrorsNotCached(t *testing.T) {
	next := mocks.NewMockEmbeddingService()
	next.Err = errors.New("upstream down")
	svc := WrapQueryCache(next, 10, time.Minute, nil)

	if _, err := svc.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	next.Err = nil
	if _, err := svc.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if next.QueryCalls != 2 {
		t.Errorf("expected failed lookups to reach upstream again, got %d", next.QueryCalls)
	}
}

func TestCachedEmbedding_BatchPassesThrough(t *testing.T) {
	next := mocks.NewMockEmbeddingService()
	svc := WrapQueryCache(next, 10, time.Minute, nil)

	for range 2 {
		if _, err := svc.Embed(context.Background(), []string{"a", "b"}); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if next.EmbedCalls != 2 {
		t.Errorf("expected every batch to reach upstream, got %d", next.EmbedCalls)
	}
	if svc.Dimensions() != next.Dimensions() || svc.Model() != next.Model() {
		t.Error("expected metadata to come from the wrapped service")
	}
}
