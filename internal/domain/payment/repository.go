package payment

import (
	"context"
	"time"
)

// Repository defines the interface for payment record persistence.
type Repository interface {
	// Create inserts a new payment record.
	Create(ctx context.Context, p *Payment) error

	// Get retrieves a payment by ID.
	Get(ctx context.Context, id string) (*Payment, error)

	// Update persists payment status transitions.
	Update(ctx context.Context, p *Payment) error

	// GetActiveBySubscription returns the newest non-terminal payment for a
	// subscription, or a not-found error when none exists.
	GetActiveBySubscription(ctx context.Context, subscriptionID string) (*Payment, error)

	// ListAgedPending returns non-terminal payments created before the cutoff.
	ListAgedPending(ctx context.Context, cutoff time.Time) ([]*Payment, error)
}

// MethodRepository defines the interface for stored payment methods.
type MethodRepository interface {
	// Get retrieves a payment method by ID.
	Get(ctx context.Context, id string) (*PaymentMethod, error)

	// GetPlatformDefault returns the user's platform-default method, or a
	// not-found error when none exists.
	GetPlatformDefault(ctx context.Context, userID string) (*PaymentMethod, error)
}
