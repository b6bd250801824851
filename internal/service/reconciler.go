package service

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/subflow/subflow/internal/domain/payment"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// Payments are independent of each other, so reconciliation fans out; the
// bound keeps gateway API pressure predictable.
const reconcileParallelism = 4

// ReconcilerService resolves aged pending off-session payments against the
// gateway's authoritative status. Gateways are eventually consistent; a local
// "pending" row must not be trusted indefinitely.
type ReconcilerService interface {
	// ReconcilePendingPayments runs one reconciliation pass over all
	// non-terminal payments older than the pending timeout.
	ReconcilePendingPayments(ctx context.Context) error

	// ReconcilePayment reconciles a single payment: still-processing is left
	// alone, a terminal gateway status converges the subscription into the
	// sweep's success or failure path.
	ReconcilePayment(ctx context.Context, p *payment.Payment) error
}

type reconcilerService struct {
	ServiceParams
	renewals *renewalService
}

// NewReconcilerService creates a new payment reconciler service
func NewReconcilerService(params ServiceParams) ReconcilerService {
	return &reconcilerService{
		ServiceParams: params,
		renewals:      newRenewalService(params),
	}
}

func (r *reconcilerService) ReconcilePendingPayments(ctx context.Context) error {
	now := r.Clock.Now()
	cutoff := now.Add(-r.Config.Renewal.PendingPaymentTimeout)

	aged, err := r.PaymentRepo.ListAgedPending(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(aged) == 0 {
		r.Logger.Debugw("payment reconciliation found no aged pending payments")
		return nil
	}

	r.Logger.Infow("payment reconciliation started", "payments", len(aged))

	p := pool.New().WithMaxGoroutines(reconcileParallelism)
	for _, pmt := range aged {
		p.Go(func() {
			if err := r.ReconcilePayment(ctx, pmt); err != nil {
				r.Logger.Errorw("failed to reconcile payment",
					"payment_id", pmt.ID,
					"subscription_id", pmt.SubscriptionID,
					"error", err)
			}
		})
	}
	p.Wait()

	r.Logger.Infow("payment reconciliation finished", "payments", len(aged))
	return nil
}

func (r *reconcilerService) ReconcilePayment(ctx context.Context, p *payment.Payment) error {
	status, err := r.Gateway.GetPaymentStatus(ctx, p.GatewayPaymentID)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to query gateway payment status").
			WithReportableDetails(map[string]interface{}{
				"payment_id":         p.ID,
				"gateway_payment_id": p.GatewayPaymentID,
			}).
			Mark(ierr.ErrIntegration)
	}

	now := r.Clock.Now()

	if !status.IsTerminal() {
		// Legitimately still in flight; leave it and re-check next pass.
		r.Logger.Infow("payment still processing at gateway",
			"payment_id", p.ID,
			"gateway_status", status)
		return nil
	}

	if status != p.PaymentStatus {
		p.PaymentStatus = status
		p.UpdatedAt = now
		if err := r.PaymentRepo.Update(ctx, p); err != nil {
			return err
		}
	}

	sub, err := r.SubRepo.Get(ctx, p.SubscriptionID)
	if err != nil {
		return err
	}
	cycleEnd := sub.EndDate

	lock, err := r.RenewalLockRepo.GetByCycle(ctx, sub.ID, cycleEnd)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return err
		}
		// The subscription's current cycle has no lock referencing this
		// payment, e.g. the cycle already advanced. Nothing safe to mutate.
		r.Logger.Warnw("no renewal lock for reconciled payment's cycle",
			"payment_id", p.ID,
			"subscription_id", sub.ID,
			"cycle_end_date", cycleEnd)
		return nil
	}
	if lock.PaymentID != "" && lock.PaymentID != p.ID {
		r.Logger.Warnw("reconciled payment does not match cycle's attached payment",
			"payment_id", p.ID,
			"attached_payment_id", lock.PaymentID,
			"subscription_id", sub.ID)
		return nil
	}

	if status == types.PaymentStatusSucceeded {
		// The gateway is authoritative here: a lock failed by an earlier pass
		// is overwritten once its attached charge settles as succeeded, so the
		// lock's terminal state and the subscription's dates agree.
		lock.State = types.RenewalLockStateSucceeded
		lock.UpdatedAt = now
		if err := r.RenewalLockRepo.Update(ctx, lock); err != nil {
			r.Logger.Errorw("failed to mark renewal lock succeeded during reconciliation",
				"subscription_id", sub.ID,
				"error", err)
		}

		li, ord := r.renewals.fetchOrigins(ctx, sub)
		termMonths, _ := resolveTermMonths(sub, li, ord)
		if termMonths <= 0 {
			r.Logger.Warnw("no term length resolvable for reconciled renewal, defaulting to one month",
				"subscription_id", sub.ID)
			termMonths = 1
		}

		r.Logger.Infow("reconciled payment as succeeded",
			"payment_id", p.ID,
			"subscription_id", sub.ID)
		return r.renewals.finishRenewalSuccess(ctx, sub, termMonths, cycleEnd, now)
	}

	if err := r.renewals.locks.MarkRenewalFailed(ctx, sub.ID, cycleEnd); err != nil {
		r.Logger.Errorw("failed to mark renewal lock failed during reconciliation",
			"subscription_id", sub.ID,
			"error", err)
	}

	r.renewals.notify(ctx, sub, types.NotificationTypeRenewalFailed,
		"Subscription renewal failed",
		"Your card payment did not complete. We will retry before your subscription expires.",
		cycleEnd)

	r.Logger.Infow("reconciled payment as failed",
		"payment_id", p.ID,
		"subscription_id", sub.ID)
	return r.renewals.scheduleNextCardAttempt(ctx, sub, types.StatusReasonCardPaymentFailed, now)
}
