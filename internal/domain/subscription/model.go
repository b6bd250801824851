package subscription

import (
	"time"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// Subscription is the renewal candidate. It is mutated exclusively by the
// renewal sweep and by user-initiated cancellation.
type Subscription struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ServiceID string `json:"service_id"`
	PlanID    string `json:"plan_id,omitempty"`

	StartDate     time.Time  `json:"start_date"`
	TermStartAt   time.Time  `json:"term_start_at"`
	EndDate       time.Time  `json:"end_date"`
	RenewalDate   time.Time  `json:"renewal_date"`
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`

	AutoRenew     bool                `json:"auto_renew"`
	RenewalMethod types.RenewalMethod `json:"renewal_method,omitempty"`

	TermMonths     *int   `json:"term_months,omitempty"`
	PriceCents     *int64 `json:"price_cents,omitempty"`
	BasePriceCents *int64 `json:"base_price_cents,omitempty"`
	DiscountPct    int    `json:"discount_percent"`
	Currency       string `json:"currency"`

	SubscriptionStatus      types.SubscriptionStatus `json:"subscription_status"`
	StatusReason            types.StatusReason       `json:"status_reason,omitempty"`
	CancellationRequestedAt *time.Time               `json:"cancellation_requested_at,omitempty"`

	// OrderID and LineItemID link back to the originating purchase; used by
	// the term and price fallback chains when structured fields are missing.
	OrderID    string `json:"order_id,omitempty"`
	LineItemID string `json:"line_item_id,omitempty"`

	// PaymentMethodID is the subscription-scoped default card, when set.
	PaymentMethodID string `json:"payment_method_id,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	types.BaseModel
}

// IsDue reports whether the subscription should be considered by the sweep at
// the given instant with the given lookahead window.
func (s *Subscription) IsDue(now time.Time, lookahead time.Duration) bool {
	if !s.AutoRenew || s.SubscriptionStatus != types.SubscriptionStatusActive {
		return false
	}
	if s.CancellationRequestedAt != nil {
		return false
	}
	if s.NextBillingAt != nil {
		return !s.NextBillingAt.After(now)
	}
	return !s.EndDate.After(now.Add(lookahead))
}

// DueAt returns the instant used for ascending due-date ordering within a
// sweep pass.
func (s *Subscription) DueAt() time.Time {
	if s.NextBillingAt != nil {
		return *s.NextBillingAt
	}
	return s.EndDate
}

// Validate checks the fields the sweep relies on.
func (s *Subscription) Validate() error {
	if s.ID == "" {
		return ierr.NewError("subscription id is required").Mark(ierr.ErrValidation)
	}
	if s.UserID == "" {
		return ierr.NewError("user_id is required").Mark(ierr.ErrValidation)
	}
	if s.EndDate.IsZero() {
		return ierr.NewError("end_date is required").Mark(ierr.ErrValidation)
	}
	return nil
}
