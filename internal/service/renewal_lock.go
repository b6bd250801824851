package service

import (
	"context"
	"time"

	"github.com/subflow/subflow/internal/domain/renewallock"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// AcquireRenewalLockResult reports the outcome of a lock acquisition attempt.
// When Acquired is false the caller must skip the candidate for this pass;
// State tells it why (another attempt live, or the cycle already renewed).
type AcquireRenewalLockResult struct {
	Acquired     bool
	State        types.RenewalLockState
	CycleEndDate time.Time
}

// RenewalLockService is the idempotency boundary for renewal billing: it
// guarantees at most one live attempt per (subscription, cycle-end-date) and
// records the attempt's terminal outcome so no cycle is ever charged twice.
type RenewalLockService interface {
	// AcquireRenewalLock claims the renewal attempt for a cycle. It succeeds
	// when no lock exists for the pair or when a previous attempt ended in
	// failure; an in-progress or succeeded lock is never re-acquired.
	AcquireRenewalLock(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*AcquireRenewalLockResult, error)

	// MarkRenewalSucceeded transitions the cycle's lock to its permanent
	// succeeded state.
	MarkRenewalSucceeded(ctx context.Context, subscriptionID string, cycleEndDate time.Time) error

	// MarkRenewalFailed transitions the cycle's lock to failed. A later pass
	// may re-acquire and retry.
	MarkRenewalFailed(ctx context.Context, subscriptionID string, cycleEndDate time.Time) error

	// AttachPaymentToRenewal records which externally created payment belongs
	// to this cycle's attempt, so a pass after a restart can recognize that a
	// charge already exists instead of creating a second one.
	AttachPaymentToRenewal(ctx context.Context, subscriptionID string, cycleEndDate time.Time, paymentID string) error

	// GetRenewalLock returns the lock for a cycle, or a not-found error.
	GetRenewalLock(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*renewallock.RenewalLock, error)
}

type renewalLockService struct {
	ServiceParams
}

// NewRenewalLockService creates a new renewal lock service
func NewRenewalLockService(params ServiceParams) RenewalLockService {
	return &renewalLockService{
		ServiceParams: params,
	}
}

func (s *renewalLockService) AcquireRenewalLock(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*AcquireRenewalLockResult, error) {
	if subscriptionID == "" {
		return nil, ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if cycleEndDate.IsZero() {
		return nil, ierr.NewError("cycle_end_date is required").Mark(ierr.ErrValidation)
	}

	existing, err := s.RenewalLockRepo.GetByCycle(ctx, subscriptionID, cycleEndDate)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	if existing != nil && err == nil {
		// In-progress and succeeded locks are never re-acquired; a failed
		// attempt may be retried by resetting the same row.
		if existing.State != types.RenewalLockStateFailed {
			s.Logger.Infow("renewal lock not acquired",
				"subscription_id", subscriptionID,
				"cycle_end_date", cycleEndDate,
				"state", existing.State)
			return &AcquireRenewalLockResult{
				Acquired:     false,
				State:        existing.State,
				CycleEndDate: cycleEndDate,
			}, nil
		}

		existing.State = types.RenewalLockStateInProgress
		existing.UpdatedAt = s.Clock.Now()
		if err := s.RenewalLockRepo.Update(ctx, existing); err != nil {
			return nil, err
		}
		s.Logger.Infow("re-acquired renewal lock after failed attempt",
			"subscription_id", subscriptionID,
			"cycle_end_date", cycleEndDate)
		return &AcquireRenewalLockResult{
			Acquired:     true,
			State:        types.RenewalLockStateInProgress,
			CycleEndDate: cycleEndDate,
		}, nil
	}

	lock := &renewallock.RenewalLock{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RENEWAL_LOCK),
		SubscriptionID: subscriptionID,
		CycleEndDate:   cycleEndDate,
		State:          types.RenewalLockStateInProgress,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if err := s.RenewalLockRepo.Create(ctx, lock); err != nil {
		if ierr.IsAlreadyExists(err) {
			// Lost the race to a concurrent sweep; that attempt owns the cycle.
			s.Logger.Infow("renewal lock not acquired, concurrent attempt won",
				"subscription_id", subscriptionID,
				"cycle_end_date", cycleEndDate)
			return &AcquireRenewalLockResult{
				Acquired:     false,
				State:        types.RenewalLockStateInProgress,
				CycleEndDate: cycleEndDate,
			}, nil
		}
		return nil, err
	}

	return &AcquireRenewalLockResult{
		Acquired:     true,
		State:        types.RenewalLockStateInProgress,
		CycleEndDate: cycleEndDate,
	}, nil
}

func (s *renewalLockService) MarkRenewalSucceeded(ctx context.Context, subscriptionID string, cycleEndDate time.Time) error {
	return s.transition(ctx, subscriptionID, cycleEndDate, types.RenewalLockStateSucceeded)
}

func (s *renewalLockService) MarkRenewalFailed(ctx context.Context, subscriptionID string, cycleEndDate time.Time) error {
	return s.transition(ctx, subscriptionID, cycleEndDate, types.RenewalLockStateFailed)
}

func (s *renewalLockService) transition(ctx context.Context, subscriptionID string, cycleEndDate time.Time, state types.RenewalLockState) error {
	lock, err := s.RenewalLockRepo.GetByCycle(ctx, subscriptionID, cycleEndDate)
	if err != nil {
		return err
	}

	if lock.State.IsTerminal() && lock.State != state {
		return ierr.NewError("renewal lock already in a different terminal state").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": subscriptionID,
				"cycle_end_date":  cycleEndDate,
				"current_state":   lock.State,
				"requested_state": state,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	lock.State = state
	lock.UpdatedAt = s.Clock.Now()
	return s.RenewalLockRepo.Update(ctx, lock)
}

func (s *renewalLockService) AttachPaymentToRenewal(ctx context.Context, subscriptionID string, cycleEndDate time.Time, paymentID string) error {
	if paymentID == "" {
		return ierr.NewError("payment_id is required").Mark(ierr.ErrValidation)
	}

	lock, err := s.RenewalLockRepo.GetByCycle(ctx, subscriptionID, cycleEndDate)
	if err != nil {
		return err
	}

	lock.PaymentID = paymentID
	lock.UpdatedAt = s.Clock.Now()
	return s.RenewalLockRepo.Update(ctx, lock)
}

func (s *renewalLockService) GetRenewalLock(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*renewallock.RenewalLock, error) {
	return s.RenewalLockRepo.GetByCycle(ctx, subscriptionID, cycleEndDate)
}
