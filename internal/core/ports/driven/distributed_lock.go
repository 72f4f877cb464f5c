package driven

import (
	"context"
	"time"
)

// DistributedLock serialises work across worker and api instances. The
// pipeline runner holds "pipeline:<owner>" for a whole run and the
// scheduler holds "scheduler:<task type>" while it enqueues.
type DistributedLock interface {
	// Acquire takes name for ttl. It returns false without error when
	// another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release drops name. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out to ttl from now.
	// The PostgreSQL advisory lock has no expiry and ignores it.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
