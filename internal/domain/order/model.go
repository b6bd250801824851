package order

import (
	"github.com/subflow/subflow/internal/types"
)

// Order is the originating purchase a subscription was created from. The
// sweep only reads it through the term/price fallback chains.
type Order struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
	// CouponID marks the order as discounted. A discounted order total is not
	// a safe proxy for a single renewal price.
	CouponID string            `json:"coupon_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	types.BaseModel
}

// LineItem is a single purchased line within an order.
type LineItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	TermMonths *int   `json:"term_months,omitempty"`
	PriceCents *int64 `json:"price_cents,omitempty"`
	Currency   string `json:"currency,omitempty"`

	types.BaseModel
}
