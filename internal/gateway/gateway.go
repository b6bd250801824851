package gateway

import (
	"context"

	"github.com/subflow/subflow/internal/types"
)

// CreateChargeRequest describes an off-session charge: merchant-initiated,
// cardholder not present, using a previously stored payment method.
type CreateChargeRequest struct {
	UserID            string
	GatewayCustomerID string
	PaymentMethodID   string
	AmountCents       int64
	Currency          string
	Description       string
	// IdempotencyKey scopes the charge to one renewal cycle attempt.
	IdempotencyKey string
	Metadata       map[string]string
}

// CreateChargeResult reports the gateway's initial view of the charge.
type CreateChargeResult struct {
	// GatewayPaymentID is the gateway-side identifier for status queries.
	GatewayPaymentID string
	Status           types.PaymentStatus
}

// Gateway is the card payment gateway contract.
type Gateway interface {
	// CreateOffSessionCharge creates a merchant-initiated charge.
	CreateOffSessionCharge(ctx context.Context, req CreateChargeRequest) (*CreateChargeResult, error)

	// GetPaymentStatus returns the gateway's authoritative status for a
	// previously created charge.
	GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (types.PaymentStatus, error)
}
