package renewallock

import (
	"context"
	"time"
)

// Repository defines the interface for renewal lock persistence. The
// (subscription_id, cycle_end_date) pair is unique; Create must fail with an
// already-exists error when a row for the pair is present, since that
// uniqueness is what makes the lock an idempotency boundary.
type Repository interface {
	// Create inserts a new lock row for a (subscription, cycle) pair.
	Create(ctx context.Context, lock *RenewalLock) error

	// GetByCycle retrieves the lock for a (subscription, cycle) pair.
	GetByCycle(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*RenewalLock, error)

	// Update persists lock state transitions.
	Update(ctx context.Context, lock *RenewalLock) error
}
