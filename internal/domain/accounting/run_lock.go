package accounting

import (
	"context"
	"time"
)

// ReconcileLockKey is the run lock key shared by every worker trigger
const ReconcileLockKey = "accounting:reconcile"

// RunLock prevents overlapping reconciliation runs across triggers and
// instances. Locks expire after their TTL so a crashed holder cannot block
// later runs forever.
type RunLock interface {
	// TryAcquire takes the lock if free. It returns the holder token and true
	// on success, or false when another holder owns the lock.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Release frees the lock if token still owns it
	Release(ctx context.Context, key, token string) error

	// Close releases resources held by the lock backend
	Close() error
}
