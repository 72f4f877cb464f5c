package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// UsageStore persists daily usage counters (PostgreSQL or Redis).
// Implementations reset a counter whose stored period is older than periodStart.
type UsageStore interface {
	// Current returns the owner's counter for periodStart, zeroed if absent or stale
	Current(ctx context.Context, ownerID string, periodStart time.Time) (*domain.UsageCounter, error)

	// Increment atomically adds amount to kind for periodStart
	Increment(ctx context.Context, ownerID string, periodStart time.Time, kind domain.UsageKind, amount int64) error
}
