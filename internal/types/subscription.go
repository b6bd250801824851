package types

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// RenewalMethod describes how a subscription renews when due.
type RenewalMethod string

const (
	RenewalMethodCredits RenewalMethod = "credits"
	RenewalMethodCard    RenewalMethod = "card"
	RenewalMethodManual  RenewalMethod = "manual"
)

// StatusReason is a free-form diagnostic tag recorded on a subscription when
// a sweep pass could not advance it. Reasons are recoverable data-quality
// states, not errors; the candidate is retried after a fixed delay.
type StatusReason string

const (
	StatusReasonMissingRenewalMethod  StatusReason = "missing_renewal_method"
	StatusReasonMissingPrice          StatusReason = "missing_price"
	StatusReasonMissingTerm           StatusReason = "missing_term"
	StatusReasonCurrencyMismatch      StatusReason = "currency_mismatch"
	StatusReasonInsufficientBalance   StatusReason = "insufficient_balance"
	StatusReasonLedgerFailure         StatusReason = "ledger_failure"
	StatusReasonNoPaymentMethod       StatusReason = "no_payment_method"
	StatusReasonRetriesExhausted      StatusReason = "retries_exhausted"
	StatusReasonAwaitingManualReview  StatusReason = "awaiting_manual_review"
	StatusReasonPaymentPending        StatusReason = "payment_pending"
	StatusReasonCardPaymentFailed     StatusReason = "card_payment_failed"
	StatusReasonRenewed               StatusReason = "renewed"
	StatusReasonTermResolvedFromDates StatusReason = "term_resolved_from_dates"
)

// RenewalLockState represents the idempotency state of a renewal attempt for
// one (subscription, cycle-end-date) pair.
type RenewalLockState string

const (
	RenewalLockStateInProgress RenewalLockState = "in_progress"
	RenewalLockStateSucceeded  RenewalLockState = "succeeded"
	RenewalLockStateFailed     RenewalLockState = "failed"
)

// IsTerminal reports whether the lock state is permanent for its cycle.
func (s RenewalLockState) IsTerminal() bool {
	return s == RenewalLockStateSucceeded || s == RenewalLockStateFailed
}
