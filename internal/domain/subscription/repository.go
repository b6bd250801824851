package subscription

import (
	"context"
	"time"
)

// DueFilter selects renewal candidates for one sweep pass.
type DueFilter struct {
	// Now is the sweep's reference instant.
	Now time.Time
	// Lookahead bounds how far before end_date a candidate counts as due.
	Lookahead time.Duration
	// Limit caps the number of candidates returned.
	Limit int
}

// Repository defines the interface for subscription persistence operations.
type Repository interface {
	// Get retrieves a subscription by ID
	Get(ctx context.Context, id string) (*Subscription, error)

	// Update persists subscription mutations
	Update(ctx context.Context, sub *Subscription) error

	// ListDueForRenewal returns active, auto-renewing, non-cancelled
	// subscriptions whose billing moment has arrived, in ascending due order.
	ListDueForRenewal(ctx context.Context, filter DueFilter) ([]*Subscription, error)

	// ListActiveMultiMonth returns active subscriptions whose term spans more
	// than one calendar month; these are fulfilled one month at a time.
	ListActiveMultiMonth(ctx context.Context) ([]*Subscription, error)
}
