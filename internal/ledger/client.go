package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// SpendRequest debits a user's prepaid balance. IdempotencyKey makes retried
// calls for the same renewal cycle a no-op on the ledger side.
type SpendRequest struct {
	UserID         string            `json:"user_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// Client is the prepaid balance service contract. Spend returns a
// ierr.ErrInsufficientBalance-marked error on a terminal decline for lack of
// funds; any other error is ambiguous and retryable.
type Client interface {
	Spend(ctx context.Context, req SpendRequest) error
}
