package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UsageStore = (*UsageStore)(nil)

const (
	usagePrefix = "timeline:usage:"

	// usageTTL keeps a day's hash around past its period so late reads still see it
	usageTTL = 48 * time.Hour
)

// UsageStore implements driven.UsageStore with one Redis hash per owner
// and UTC day. A new period starts from an empty hash.
type UsageStore struct {
	client *redis.Client
}

// NewUsageStore creates a new Redis-backed usage store
func NewUsageStore(client *redis.Client) *UsageStore {
	return &UsageStore{client: client}
}

func usageKey(ownerID string, periodStart time.Time) string {
	return usagePrefix + ownerID + ":" + periodStart.UTC().Format("2006-01-02")
}

// Current returns the owner's counter for periodStart
func (s *UsageStore) Current(ctx context.Context, ownerID string, periodStart time.Time) (*domain.UsageCounter, error) {
	values, err := s.client.HGetAll(ctx, usageKey(ownerID, periodStart)).Result()
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	counter := domain.NewUsageCounter(ownerID, periodStart)
	for _, kind := range domain.UsageKinds {
		raw, ok := values[string(kind)]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse usage %s: %w", kind, err)
		}
		counter.Add(kind, n)
	}
	return counter, nil
}

// Increment atomically adds amount to one counter and refreshes the expiry
func (s *UsageStore) Increment(ctx context.Context, ownerID string, periodStart time.Time, kind domain.UsageKind, amount int64) error {
	key := usageKey(ownerID, periodStart)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, string(kind), amount)
		pipe.Expire(ctx, key, usageTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}
