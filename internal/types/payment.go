package types

// PaymentStatus mirrors the gateway's charge lifecycle. Pending and
// processing are non-terminal; local rows in those states must eventually be
// reconciled against the gateway's authoritative status.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal reports whether the gateway will not change this status again.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// NotificationType classifies user-facing renewal notifications.
type NotificationType string

const (
	NotificationTypeRenewalSucceeded  NotificationType = "renewal_succeeded"
	NotificationTypeRenewalFailed     NotificationType = "renewal_failed"
	NotificationTypeAutoRenewDisabled NotificationType = "auto_renew_disabled"
	NotificationTypeInsufficientFunds NotificationType = "insufficient_funds"
)

// TaskCategory classifies operator-visible tasks created by the engine.
type TaskCategory string

const (
	TaskCategoryFulfillment  TaskCategory = "fulfillment"
	TaskCategoryManualReview TaskCategory = "manual_review"
	TaskCategoryMMUUpgrade   TaskCategory = "mmu_upgrade"
)
