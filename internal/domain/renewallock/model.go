package renewallock

import (
	"time"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// RenewalLock is the idempotency record for one renewal attempt, keyed by
// (subscription id, cycle-end-date). At most one lock per pair may be
// in_progress; terminal states are permanent for their cycle.
type RenewalLock struct {
	ID             string                 `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	CycleEndDate   time.Time              `json:"cycle_end_date"`
	State          types.RenewalLockState `json:"state"`
	// PaymentID records which externally-created payment belongs to this
	// cycle's attempt, so a later pass can recognize an existing charge.
	PaymentID string `json:"payment_id,omitempty"`

	types.BaseModel
}

// Validate checks the lock's identifying fields.
func (l *RenewalLock) Validate() error {
	if l.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if l.CycleEndDate.IsZero() {
		return ierr.NewError("cycle_end_date is required").Mark(ierr.ErrValidation)
	}
	return nil
}
