package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UsageStore = (*UsageStore)(nil)

var usageColumns = map[domain.UsageKind]string{
	domain.UsageSearches:     "search_count",
	domain.UsageEmbedChunks:  "embed_chunk_count",
	domain.UsageChatMessages: "chat_message_count",
	domain.UsageLLMTokens:    "llm_token_estimate",
}

// UsageStore implements driven.UsageStore using PostgreSQL.
// Each owner has one row; a row from an earlier period is reset in place.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new UsageStore
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Current returns the owner's counter for periodStart
func (s *UsageStore) Current(ctx context.Context, ownerID string, periodStart time.Time) (*domain.UsageCounter, error) {
	counter := domain.NewUsageCounter(ownerID, periodStart)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (owner_id, period_start)
		VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET
			period_start = EXCLUDED.period_start,
			search_count = 0,
			embed_chunk_count = 0,
			chat_message_count = 0,
			llm_token_estimate = 0
		WHERE usage_counters.period_start < EXCLUDED.period_start
		RETURNING period_start, search_count, embed_chunk_count, chat_message_count, llm_token_estimate
	`, ownerID, periodStart).Scan(
		&counter.PeriodStart,
		&counter.SearchCount,
		&counter.EmbedChunkCount,
		&counter.ChatMessageCount,
		&counter.LLMTokenEstimate,
	)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	// The conditional upsert returns no row when the stored period is current
	err = s.db.QueryRowContext(ctx, `
		SELECT period_start, search_count, embed_chunk_count, chat_message_count, llm_token_estimate
		FROM usage_counters
		WHERE owner_id = $1
	`, ownerID).Scan(
		&counter.PeriodStart,
		&counter.SearchCount,
		&counter.EmbedChunkCount,
		&counter.ChatMessageCount,
		&counter.LLMTokenEstimate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	return counter, nil
}

// Increment atomically adds amount to one counter
func (s *UsageStore) Increment(ctx context.Context, ownerID string, periodStart time.Time, kind domain.UsageKind, amount int64) error {
	column, ok := usageColumns[kind]
	if !ok {
		return fmt.Errorf("%w: unknown usage kind %q", domain.ErrInvalidInput, kind)
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_counters (owner_id, period_start, %[1]s)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET
			period_start = GREATEST(usage_counters.period_start, EXCLUDED.period_start),
			%[2]s,
			%[1]s = CASE WHEN usage_counters.period_start < EXCLUDED.period_start
				THEN EXCLUDED.%[1]s
				ELSE usage_counters.%[1]s + EXCLUDED.%[1]s END
	`, column, resetOthers(column))

	if _, err := s.db.ExecContext(ctx, query, ownerID, periodStart, amount); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// resetOthers builds the period-reset assignments for every column but skip
func resetOthers(skip string) string {
	var out string
	for _, kind := range domain.UsageKinds {
		column := usageColumns[kind]
		if column == skip {
			continue
		}
		if out != "" {
			out += ",\n\t\t\t"
		}
		out += fmt.Sprintf("%[1]s = CASE WHEN usage_counters.period_start < EXCLUDED.period_start THEN 0 ELSE usage_counters.%[1]s END", column)
	}
	return out
}
