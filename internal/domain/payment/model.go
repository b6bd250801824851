package payment

import (
	"time"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// Payment is the local record of an off-session gateway charge.
type Payment struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id"`
	// GatewayPaymentID is the gateway's identifier for the charge, used for
	// authoritative status queries during reconciliation.
	GatewayPaymentID string              `json:"gateway_payment_id"`
	AmountCents      int64               `json:"amount_cents"`
	Currency         string              `json:"currency"`
	PaymentStatus    types.PaymentStatus `json:"payment_status"`

	types.BaseModel
}

// Age returns how long the payment has been outstanding.
func (p *Payment) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Validate checks the payment's identifying fields.
func (p *Payment) Validate() error {
	if p.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if p.AmountCents <= 0 {
		return ierr.NewError("amount_cents must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentMethod is a stored card usable for merchant-initiated charges.
type PaymentMethod struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// GatewayCustomerID is the gateway-side customer reference required for
	// off-session charging. A method without it cannot be charged.
	GatewayCustomerID string `json:"gateway_customer_id,omitempty"`
	Active            bool   `json:"active"`
	PlatformDefault   bool   `json:"platform_default"`

	types.BaseModel
}

// Chargeable reports whether the method can back an off-session charge.
func (m *PaymentMethod) Chargeable() bool {
	return m != nil && m.Active && m.GatewayCustomerID != ""
}
