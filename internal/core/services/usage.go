package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure UsageLedger implements UsageService
var _ driving.UsageService = (*UsageLedger)(nil)

// UsageLedger enforces the daily per-owner quotas.
// Periods are UTC calendar days.
type UsageLedger struct {
	store  driven.UsageStore
	limits domain.QuotaLimits
	now    func() time.Time
	logger *slog.Logger
}

// UsageLedgerConfig holds dependencies for UsageLedger.
type UsageLedgerConfig struct {
	Store  driven.UsageStore
	Limits domain.QuotaLimits
	Now    func() time.Time // Defaults to time.Now
	Logger *slog.Logger
}

// NewUsageLedger creates a new usage ledger.
func NewUsageLedger(cfg UsageLedgerConfig) *UsageLedger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &UsageLedger{
		store:  cfg.Store,
		limits: cfg.Limits,
		now:    now,
		logger: logger,
	}
}

// Limits returns the configured daily limits.
func (l *UsageLedger) Limits() domain.QuotaLimits {
	return l.limits
}

// Remaining returns the headroom left today for kind, floored at zero.
func (l *UsageLedger) Remaining(ctx context.Context, ownerID string, kind domain.UsageKind) (int64, error) {
	counter, err := l.store.Current(ctx, ownerID, domain.PeriodStartUTC(l.now()))
	if err != nil {
		return 0, err
	}
	return remaining(l.limits.For(kind), counter.Used(kind)), nil
}

// AssertRemaining fails with a *domain.QuotaError when fewer than requested
// units of kind are left today.
func (l *UsageLedger) AssertRemaining(ctx context.Context, ownerID string, kind domain.UsageKind, requested int64) error {
	left, err := l.Remaining(ctx, ownerID, kind)
	if err != nil {
		return err
	}
	if left < requested {
		return domain.NewQuotaError(kind, l.limits.For(kind), left)
	}
	return nil
}

// Record adds amount units of kind to today's counter.
// Non-positive amounts are ignored.
func (l *UsageLedger) Record(ctx context.Context, ownerID string, kind domain.UsageKind, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if err := l.store.Increment(ctx, ownerID, domain.PeriodStartUTC(l.now()), kind, amount); err != nil {
		l.logger.Error("failed to record usage",
			"owner_id", ownerID,
			"kind", kind,
			"amount", amount,
			"error", err,
		)
		return err
	}
	return nil
}

// Snapshot returns today's usage, limits and remaining headroom.
func (l *UsageLedger) Snapshot(ctx context.Context, ownerID string) (*domain.QuotaSnapshot, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	periodStart := domain.PeriodStartUTC(l.now())
	counter, err := l.store.Current(ctx, ownerID, periodStart)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.QuotaSnapshot{
		PeriodStart: periodStart,
		Usage:       *counter,
		Limits:      l.limits,
		Remaining:   make(map[domain.UsageKind]int64, len(domain.UsageKinds)),
	}
	for _, kind := range domain.UsageKinds {
		snapshot.Remaining[kind] = remaining(l.limits.For(kind), counter.Used(kind))
	}
	return snapshot, nil
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
