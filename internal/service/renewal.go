package service

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/subflow/subflow/internal/billing"
	"github.com/subflow/subflow/internal/domain/payment"
	"github.com/subflow/subflow/internal/domain/subscription"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/gateway"
	"github.com/subflow/subflow/internal/ledger"
	"github.com/subflow/subflow/internal/notification"
	"github.com/subflow/subflow/internal/task"
	"github.com/subflow/subflow/internal/types"
)

// Payment methods rarely change mid-sweep; cache lookups briefly so a large
// batch does not hammer the method store for the same user.
const paymentMethodCacheTTL = 5 * time.Minute

// RenewalService advances due subscriptions exactly one cycle per pass, or
// schedules a retry. It is the only writer of subscription renewal state.
type RenewalService interface {
	// ProcessDueRenewals runs one sweep pass: select due candidates bounded by
	// the lookahead window and batch size, then advance or reschedule each.
	// Candidate failures are isolated; the pass itself only fails when the
	// candidate query does.
	ProcessDueRenewals(ctx context.Context) error
}

type renewalService struct {
	ServiceParams
	locks       RenewalLockService
	methodCache *cache.Cache
}

func newRenewalService(params ServiceParams) *renewalService {
	return &renewalService{
		ServiceParams: params,
		locks:         NewRenewalLockService(params),
		methodCache:   cache.New(paymentMethodCacheTTL, 2*paymentMethodCacheTTL),
	}
}

// NewRenewalService creates a new renewal sweep service
func NewRenewalService(params ServiceParams) RenewalService {
	return newRenewalService(params)
}

func (s *renewalService) ProcessDueRenewals(ctx context.Context) error {
	now := s.Clock.Now()

	candidates, err := s.SubRepo.ListDueForRenewal(ctx, subscription.DueFilter{
		Now:       now,
		Lookahead: s.Config.Renewal.LookaheadWindow,
		Limit:     s.Config.Renewal.BatchSize,
	})
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		s.Logger.Debugw("renewal sweep found no due candidates")
		return nil
	}

	s.Logger.Infow("renewal sweep started", "candidates", len(candidates))

	// Candidates arrive in ascending due order and are processed in that
	// order. A failing candidate never blocks the rest of the batch.
	processed, failed := 0, 0
	for _, sub := range candidates {
		if err := s.processCandidate(ctx, sub, now); err != nil {
			failed++
			s.Logger.Errorw("failed to process renewal candidate",
				"subscription_id", sub.ID,
				"error", err)
			continue
		}
		processed++
	}

	s.Logger.Infow("renewal sweep finished",
		"processed", processed,
		"failed", failed)
	return nil
}

func (s *renewalService) processCandidate(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	switch sub.RenewalMethod {
	case types.RenewalMethodCredits, types.RenewalMethodCard:
	default:
		// Manual or missing renewal method: operators decide, we never charge.
		reason := types.StatusReasonAwaitingManualReview
		if sub.RenewalMethod == "" {
			reason = types.StatusReasonMissingRenewalMethod
		}
		return s.markForManualReview(ctx, sub, reason, now)
	}

	res, reason := s.resolveRenewalFields(ctx, sub)
	if reason != "" {
		return s.rescheduleWithReason(ctx, sub, reason, now)
	}

	if sub.RenewalMethod == types.RenewalMethodCredits {
		return s.renewWithCredits(ctx, sub, res, now)
	}
	return s.renewWithCard(ctx, sub, res, now)
}

func (s *renewalService) renewWithCredits(ctx context.Context, sub *subscription.Subscription, res *fieldResolution, now time.Time) error {
	cycleEnd := sub.EndDate

	acq, err := s.locks.AcquireRenewalLock(ctx, sub.ID, cycleEnd)
	if err != nil {
		return err
	}
	if !acq.Acquired {
		s.Logger.Infow("skipping candidate, renewal cycle already claimed",
			"subscription_id", sub.ID,
			"cycle_end_date", cycleEnd,
			"lock_state", acq.State)
		return nil
	}

	err = s.Ledger.Spend(ctx, ledger.SpendRequest{
		UserID:      sub.UserID,
		Amount:      decimal.NewFromInt(res.PriceCents).Div(decimal.NewFromInt(100)),
		Currency:    res.Currency,
		Description: fmt.Sprintf("Subscription renewal %s", sub.ID),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"order_id":        sub.OrderID,
			"cycle_end_date":  cycleEnd.UTC().Format(time.RFC3339),
		},
		IdempotencyKey: renewalIdempotencyKey(sub.ID, cycleEnd),
	})
	if err != nil {
		if markErr := s.locks.MarkRenewalFailed(ctx, sub.ID, cycleEnd); markErr != nil {
			s.Logger.Errorw("failed to mark renewal lock failed",
				"subscription_id", sub.ID,
				"error", markErr)
		}

		reason := types.StatusReasonLedgerFailure
		notifType := types.NotificationTypeRenewalFailed
		message := "We could not renew your subscription. We will retry shortly."
		if ierr.IsInsufficientBalance(err) {
			reason = types.StatusReasonInsufficientBalance
			notifType = types.NotificationTypeInsufficientFunds
			message = "Your balance is too low to renew your subscription. Please top up."
		}

		s.Logger.Warnw("credit renewal debit failed",
			"subscription_id", sub.ID,
			"status_reason", reason,
			"error", err)
		s.notify(ctx, sub, notifType, "Subscription renewal failed", message, cycleEnd)
		return s.rescheduleWithReason(ctx, sub, reason, now)
	}

	if err := s.locks.MarkRenewalSucceeded(ctx, sub.ID, cycleEnd); err != nil {
		// The debit is applied; advancing is still correct, and the ledger
		// idempotency key protects any replay of this cycle.
		s.Logger.Errorw("failed to mark renewal lock succeeded after debit",
			"subscription_id", sub.ID,
			"cycle_end_date", cycleEnd,
			"error", err)
	}

	return s.finishRenewalSuccess(ctx, sub, res.TermMonths, cycleEnd, now)
}

func (s *renewalService) renewWithCard(ctx context.Context, sub *subscription.Subscription, res *fieldResolution, now time.Time) error {
	cycleEnd := sub.EndDate

	// A non-terminal payment already attached to this subscription means a
	// charge is in flight; never create a second one on top of it.
	existing, err := s.PaymentRepo.GetActiveBySubscription(ctx, sub.ID)
	if err != nil && !ierr.IsNotFound(err) {
		return err
	}
	if err == nil {
		if existing.Age(now) < s.Config.Renewal.PendingPaymentTimeout {
			s.Logger.Infow("skipping candidate, card payment still in flight",
				"subscription_id", sub.ID,
				"payment_id", existing.ID,
				"age", existing.Age(now))
			return s.confirmPendingSchedule(ctx, sub, now)
		}
		// Aged past the pending timeout: trust the gateway, not the local row.
		rec := &reconcilerService{ServiceParams: s.ServiceParams, renewals: s}
		return rec.ReconcilePayment(ctx, existing)
	}

	method, err := s.resolvePaymentMethod(ctx, sub)
	if err != nil {
		// Ambiguous store failure; the sweep retries the candidate next pass.
		return err
	}
	if !method.Chargeable() {
		// Retrying without a usable method is pointless; this needs the user.
		return s.disableAutoRenew(ctx, sub, types.StatusReasonNoPaymentMethod, now)
	}

	acq, err := s.locks.AcquireRenewalLock(ctx, sub.ID, cycleEnd)
	if err != nil {
		return err
	}
	if !acq.Acquired {
		s.Logger.Infow("skipping candidate, renewal cycle already claimed",
			"subscription_id", sub.ID,
			"cycle_end_date", cycleEnd,
			"lock_state", acq.State)
		return nil
	}

	result, err := s.Gateway.CreateOffSessionCharge(ctx, gateway.CreateChargeRequest{
		UserID:            sub.UserID,
		GatewayCustomerID: method.GatewayCustomerID,
		PaymentMethodID:   method.ID,
		AmountCents:       res.PriceCents,
		Currency:          res.Currency,
		Description:       fmt.Sprintf("Subscription renewal %s", sub.ID),
		IdempotencyKey:    renewalIdempotencyKey(sub.ID, cycleEnd),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"cycle_end_date":  cycleEnd.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		if markErr := s.locks.MarkRenewalFailed(ctx, sub.ID, cycleEnd); markErr != nil {
			s.Logger.Errorw("failed to mark renewal lock failed",
				"subscription_id", sub.ID,
				"error", markErr)
		}
		s.Logger.Warnw("off-session charge creation failed",
			"subscription_id", sub.ID,
			"error", err)
		return s.scheduleNextCardAttempt(ctx, sub, types.StatusReasonCardPaymentFailed, now)
	}

	p := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		SubscriptionID:   sub.ID,
		UserID:           sub.UserID,
		GatewayPaymentID: result.GatewayPaymentID,
		AmountCents:      res.PriceCents,
		Currency:         res.Currency,
		PaymentStatus:    result.Status,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		s.Logger.Errorw("failed to persist payment record for created charge",
			"subscription_id", sub.ID,
			"gateway_payment_id", result.GatewayPaymentID,
			"error", err)
	}
	if err := s.locks.AttachPaymentToRenewal(ctx, sub.ID, cycleEnd, p.ID); err != nil {
		s.Logger.Errorw("failed to attach payment to renewal lock",
			"subscription_id", sub.ID,
			"payment_id", p.ID,
			"error", err)
	}

	switch result.Status {
	case types.PaymentStatusSucceeded:
		if err := s.locks.MarkRenewalSucceeded(ctx, sub.ID, cycleEnd); err != nil {
			s.Logger.Errorw("failed to mark renewal lock succeeded",
				"subscription_id", sub.ID,
				"error", err)
		}
		return s.finishRenewalSuccess(ctx, sub, res.TermMonths, cycleEnd, now)

	case types.PaymentStatusFailed:
		if err := s.locks.MarkRenewalFailed(ctx, sub.ID, cycleEnd); err != nil {
			s.Logger.Errorw("failed to mark renewal lock failed",
				"subscription_id", sub.ID,
				"error", err)
		}
		s.notify(ctx, sub, types.NotificationTypeRenewalFailed,
			"Subscription renewal failed",
			"Your card was declined. We will retry before your subscription expires.",
			cycleEnd)
		return s.scheduleNextCardAttempt(ctx, sub, types.StatusReasonCardPaymentFailed, now)

	default:
		// Pending or processing: the lock stays in progress with the payment
		// attached; the reconciler converges it once the gateway settles.
		s.Logger.Infow("off-session charge pending gateway settlement",
			"subscription_id", sub.ID,
			"payment_id", p.ID,
			"gateway_payment_id", result.GatewayPaymentID)
		return s.confirmPendingSchedule(ctx, sub, now)
	}
}

// finishRenewalSuccess advances the subscription one term and raises the
// user-facing and operator-facing follow-ups. Shared by the credit path, the
// synchronous card success path, and the reconciler's deferred success path.
func (s *renewalService) finishRenewalSuccess(ctx context.Context, sub *subscription.Subscription, termMonths int, cycleEnd time.Time, now time.Time) error {
	termStart := sub.EndDate
	if now.After(termStart) {
		termStart = now
	}
	newEnd, renewalDate := billing.AdvanceTerm(sub.EndDate, now, termMonths)

	sub.TermStartAt = termStart
	sub.EndDate = newEnd
	sub.RenewalDate = renewalDate
	if sub.AutoRenew {
		next := renewalDate
		sub.NextBillingAt = &next
	} else {
		sub.NextBillingAt = nil
	}
	sub.StatusReason = types.StatusReasonRenewed
	sub.UpdatedAt = now

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	// A paid renewal of a manually provisioned service still needs delivery.
	if err := s.TaskSink.CreateTask(ctx, task.Params{
		EntityType: "subscription",
		EntityID:   sub.ID,
		Category:   types.TaskCategoryFulfillment,
		Title:      "Provision renewed subscription",
		DueAt:      now.Add(s.Config.Renewal.FulfillmentDue),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"service_id":      sub.ServiceID,
		},
	}); err != nil {
		s.Logger.Errorw("failed to create fulfillment task",
			"subscription_id", sub.ID,
			"error", err)
	}

	s.notify(ctx, sub, types.NotificationTypeRenewalSucceeded,
		"Subscription renewed",
		fmt.Sprintf("Your subscription has been renewed until %s.", newEnd.Format("2006-01-02")),
		cycleEnd)

	s.Logger.Infow("subscription renewed",
		"subscription_id", sub.ID,
		"term_months", termMonths,
		"new_end_date", newEnd,
		"next_billing_at", sub.NextBillingAt)
	return nil
}

// confirmPendingSchedule re-confirms the candidate's retry scheduling while a
// charge is in flight, without touching money.
func (s *renewalService) confirmPendingSchedule(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	sub.StatusReason = types.StatusReasonPaymentPending
	if next := billing.NextCardAttemptDate(sub.EndDate, now); next != nil {
		sub.NextBillingAt = next
	}
	sub.UpdatedAt = now
	return s.SubRepo.Update(ctx, sub)
}

// scheduleNextCardAttempt moves the candidate to the next slot of the
// day-offset schedule before its end date, or disables auto-renew once the
// schedule is exhausted. Card retries never extend past account expiry.
func (s *renewalService) scheduleNextCardAttempt(ctx context.Context, sub *subscription.Subscription, reason types.StatusReason, now time.Time) error {
	next := billing.NextCardAttemptDate(sub.EndDate, now)
	if next == nil {
		return s.disableAutoRenew(ctx, sub, types.StatusReasonRetriesExhausted, now)
	}

	sub.StatusReason = reason
	sub.NextBillingAt = next
	sub.UpdatedAt = now
	s.Logger.Infow("scheduled next card renewal attempt",
		"subscription_id", sub.ID,
		"next_billing_at", *next,
		"status_reason", reason)
	return s.SubRepo.Update(ctx, sub)
}

// disableAutoRenew is the terminal, user-visible outcome for configuration
// exhaustion: no usable payment method, or the retry schedule ran out.
func (s *renewalService) disableAutoRenew(ctx context.Context, sub *subscription.Subscription, reason types.StatusReason, now time.Time) error {
	sub.AutoRenew = false
	sub.NextBillingAt = nil
	sub.StatusReason = reason
	sub.UpdatedAt = now
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	s.Logger.Warnw("disabled auto-renew",
		"subscription_id", sub.ID,
		"status_reason", reason)
	s.notify(ctx, sub, types.NotificationTypeAutoRenewDisabled,
		"Auto-renew disabled",
		"We could not renew your subscription automatically. Please update your payment details to keep it active.",
		sub.EndDate)
	return nil
}

// rescheduleWithReason records a recoverable data-quality state and retries
// the candidate after the fixed delay. It never bills.
func (s *renewalService) rescheduleWithReason(ctx context.Context, sub *subscription.Subscription, reason types.StatusReason, now time.Time) error {
	next := now.Add(s.Config.Renewal.RetryDelay)
	sub.StatusReason = reason
	sub.NextBillingAt = &next
	sub.UpdatedAt = now
	s.Logger.Infow("rescheduled renewal candidate",
		"subscription_id", sub.ID,
		"status_reason", reason,
		"next_billing_at", next)
	return s.SubRepo.Update(ctx, sub)
}

func (s *renewalService) markForManualReview(ctx context.Context, sub *subscription.Subscription, reason types.StatusReason, now time.Time) error {
	if err := s.TaskSink.CreateTask(ctx, task.Params{
		EntityType: "subscription",
		EntityID:   sub.ID,
		Category:   types.TaskCategoryManualReview,
		Title:      "Review subscription renewal",
		DueAt:      now.Add(s.Config.Renewal.RetryDelay),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"renewal_method":  string(sub.RenewalMethod),
		},
	}); err != nil {
		s.Logger.Errorw("failed to create manual review task",
			"subscription_id", sub.ID,
			"error", err)
	}
	return s.rescheduleWithReason(ctx, sub, reason, now)
}

// resolvePaymentMethod returns the subscription's stored default method, else
// the account's platform default, else nil. A missing method is a nil result,
// not an error; a repository failure is returned as-is so callers never treat
// it as a confirmed absent method. Results are briefly cached.
func (s *renewalService) resolvePaymentMethod(ctx context.Context, sub *subscription.Subscription) (*payment.PaymentMethod, error) {
	cacheKey := fmt.Sprintf("pm:%s:%s", sub.UserID, sub.PaymentMethodID)
	if cached, found := s.methodCache.Get(cacheKey); found {
		return cached.(*payment.PaymentMethod), nil
	}

	var method *payment.PaymentMethod
	if sub.PaymentMethodID != "" {
		m, err := s.PaymentMethodRepo.Get(ctx, sub.PaymentMethodID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		if err == nil && m.Chargeable() {
			method = m
		}
	}
	if method == nil {
		m, err := s.PaymentMethodRepo.GetPlatformDefault(ctx, sub.UserID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			method = m
		}
	}

	if method != nil {
		s.methodCache.Set(cacheKey, method, cache.DefaultExpiration)
	}
	return method, nil
}

func (s *renewalService) notify(ctx context.Context, sub *subscription.Subscription, typ types.NotificationType, title, message string, cycleEnd time.Time) {
	err := s.Notifier.CreateNotification(ctx, notification.Params{
		UserID:  sub.UserID,
		Type:    typ,
		Title:   title,
		Message: message,
		Metadata: map[string]string{
			"subscription_id": sub.ID,
		},
		DedupeKey: fmt.Sprintf("%s:%s:%s", typ, sub.ID, cycleEnd.UTC().Format(time.RFC3339)),
	})
	if err != nil {
		s.Logger.Errorw("failed to create notification",
			"subscription_id", sub.ID,
			"type", typ,
			"error", err)
	}
}

// renewalIdempotencyKey scopes ledger debits and gateway charges to exactly
// one (subscription, cycle) pair.
func renewalIdempotencyKey(subscriptionID string, cycleEnd time.Time) string {
	return fmt.Sprintf("renewal:%s:%s", subscriptionID, cycleEnd.UTC().Format(time.RFC3339))
}
