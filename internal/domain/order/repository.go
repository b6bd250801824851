package order

import "context"

// Repository defines read access to orders and line items for the sweep's
// fallback-chain field resolution.
type Repository interface {
	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// GetLineItem retrieves a line item by ID.
	GetLineItem(ctx context.Context, id string) (*LineItem, error)
}
