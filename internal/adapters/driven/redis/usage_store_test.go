package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

func TestUsageStore_IncrementAndCurrent(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewUsageStore(client)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	counter, err := store.Current(ctx, "owner-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter.SearchCount)
	assert.Equal(t, day, counter.PeriodStart)

	require.NoError(t, store.Increment(ctx, "owner-1", day, domain.UsageSearches, 1))
	require.NoError(t, store.Increment(ctx, "owner-1", day, domain.UsageSearches, 2))
	require.NoError(t, store.Increment(ctx, "owner-1", day, domain.UsageLLMTokens, 420))
	require.NoError(t, store.Increment(ctx, "owner-2", day, domain.UsageEmbedChunks, 7))

	counter, err = store.Current(ctx, "owner-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.Used(domain.UsageSearches))
	assert.Equal(t, int64(420), counter.Used(domain.UsageLLMTokens))
	assert.Equal(t, int64(0), counter.Used(domain.UsageEmbedChunks))

	key := usageKey("owner-1", day)
	assert.Equal(t, "timeline:usage:owner-1:2026-03-14", key)
	assert.Equal(t, usageTTL, mr.TTL(key))
}

func TestUsageStore_NewDayResets(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewUsageStore(client)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Increment(ctx, "owner-1", day, domain.UsageChatMessages, 5))

	next, err := store.Current(ctx, "owner-1", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), next.ChatMessageCount)

	prev, err := store.Current(ctx, "owner-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(5), prev.ChatMessageCount)
}

func TestUsageStore_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewUsageStore(client)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Increment(ctx, "owner-1", day, domain.UsageSearches, 1))
	mr.FastForward(usageTTL + time.Second)

	counter, err := store.Current(ctx, "owner-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter.SearchCount)
}

func TestUsageStore_CorruptValue(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewUsageStore(client)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mr.HSet(usageKey("owner-1", day), string(domain.UsageSearches), "many")
	_, err := store.Current(context.Background(), "owner-1", day)
	assert.Error(t, err)
}
