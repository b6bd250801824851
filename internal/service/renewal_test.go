package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/subflow/subflow/internal/domain/payment"
	"github.com/subflow/subflow/internal/domain/renewallock"
	"github.com/subflow/subflow/internal/domain/subscription"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/testutil"
	"github.com/subflow/subflow/internal/types"
)

type RenewalServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	renewalService RenewalService
	params         ServiceParams
}

func TestRenewalService(t *testing.T) {
	suite.Run(t, new(RenewalServiceTestSuite))
}

func (s *RenewalServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		Clock:             s.GetClock(),
		SubRepo:           s.GetStores().SubscriptionRepo,
		RenewalLockRepo:   s.GetStores().RenewalLockRepo,
		PaymentRepo:       s.GetStores().PaymentRepo,
		PaymentMethodRepo: s.GetStores().PaymentMethodRepo,
		OrderRepo:         s.GetStores().OrderRepo,
		Ledger:            s.GetLedger(),
		Gateway:           s.GetGateway(),
		Notifier:          s.GetNotifications(),
		TaskSink:          s.GetTasks(),
	}
	s.renewalService = NewRenewalService(s.params)
}

// newDueSubscription seeds an active, auto-renewing subscription that is due
// right now: next billing an hour in the past, end date six hours out.
func (s *RenewalServiceTestSuite) newDueSubscription(id string, method types.RenewalMethod) *subscription.Subscription {
	now := s.GetClock().Now()
	nextBilling := now.Add(-time.Hour)
	sub := &subscription.Subscription{
		ID:                 id,
		UserID:             "user_1",
		ServiceID:          "svc_1",
		StartDate:          now.AddDate(0, -1, 0),
		TermStartAt:        now.AddDate(0, -1, 0),
		EndDate:            now.Add(6 * time.Hour),
		RenewalDate:        nextBilling,
		NextBillingAt:      &nextBilling,
		AutoRenew:          true,
		RenewalMethod:      method,
		TermMonths:         lo.ToPtr(1),
		PriceCents:         lo.ToPtr(int64(1999)),
		Currency:           "usd",
		SubscriptionStatus: types.SubscriptionStatusActive,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))
	return sub
}

func (s *RenewalServiceTestSuite) seedChargeableMethod() {
	s.Require().NoError(s.GetStores().PaymentMethodRepo.Create(s.GetContext(), &payment.PaymentMethod{
		ID:                "pm_1",
		UserID:            "user_1",
		GatewayCustomerID: "cus_1",
		Active:            true,
		PlatformDefault:   true,
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}))
}

func (s *RenewalServiceTestSuite) getSubscription(id string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return sub
}

func (s *RenewalServiceTestSuite) TestCreditRenewalSuccess() {
	s.GetLedger().SetBalance("user_1", decimal.NewFromInt(100))
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)
	cycleEnd := sub.EndDate

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(1, s.GetLedger().SpendCount())
	s.True(decimal.RequireFromString("80.01").Equal(s.GetLedger().Balance("user_1")))

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, cycleEnd)
	s.NoError(err)
	s.Equal(types.RenewalLockStateSucceeded, lock.State)

	updated := s.getSubscription(sub.ID)
	wantEnd := cycleEnd.AddDate(0, 1, 0)
	s.Equal(wantEnd, updated.EndDate)
	s.Equal(wantEnd.AddDate(0, 0, -7), updated.RenewalDate)
	s.Require().NotNil(updated.NextBillingAt)
	s.Equal(updated.RenewalDate, *updated.NextBillingAt)
	s.Equal(cycleEnd, updated.TermStartAt)
	s.Equal(types.StatusReasonRenewed, updated.StatusReason)

	tasks := s.GetTasks().Created()
	s.Require().Len(tasks, 1)
	s.Equal(types.TaskCategoryFulfillment, tasks[0].Category)

	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeRenewalSucceeded), 1)
}

func (s *RenewalServiceTestSuite) TestCreditRenewalIdempotentAcrossPasses() {
	s.GetLedger().SetBalance("user_1", decimal.NewFromInt(100))
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))
	firstEnd := s.getSubscription(sub.ID).EndDate

	// An immediate second pass must not bill or advance again.
	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(1, s.GetLedger().SpendCount())
	s.Equal(firstEnd, s.getSubscription(sub.ID).EndDate)
}

func (s *RenewalServiceTestSuite) TestCreditRenewalSkipsClaimedCycle() {
	s.GetLedger().SetBalance("user_1", decimal.NewFromInt(100))
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)

	// Another attempt already owns this cycle.
	s.Require().NoError(s.GetStores().RenewalLockRepo.Create(s.GetContext(), &renewallock.RenewalLock{
		ID:             "rlock_other",
		SubscriptionID: sub.ID,
		CycleEndDate:   sub.EndDate,
		State:          types.RenewalLockStateInProgress,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetLedger().SpendCount())
	s.Equal(sub.EndDate, s.getSubscription(sub.ID).EndDate)
}

func (s *RenewalServiceTestSuite) TestCreditRenewalInsufficientBalance() {
	s.GetLedger().SetBalance("user_1", decimal.NewFromInt(5))
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)
	now := s.GetClock().Now()

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.NoError(err)
	s.Equal(types.RenewalLockStateFailed, lock.State)

	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonInsufficientBalance, updated.StatusReason)
	s.Require().NotNil(updated.NextBillingAt)
	s.Equal(now.Add(s.GetConfig().Renewal.RetryDelay), *updated.NextBillingAt)
	s.Equal(sub.EndDate, updated.EndDate)

	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeInsufficientFunds), 1)
	s.True(decimal.NewFromInt(5).Equal(s.GetLedger().Balance("user_1")))
}

func (s *RenewalServiceTestSuite) TestCreditRenewalLedgerOutage() {
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)
	s.GetLedger().FailWith(errors.New("ledger unavailable"))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonLedgerFailure, updated.StatusReason)
	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeRenewalFailed), 1)

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.NoError(err)
	s.Equal(types.RenewalLockStateFailed, lock.State)
}

func (s *RenewalServiceTestSuite) TestMissingPriceReschedules() {
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)
	sub.PriceCents = nil
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetLedger().SpendCount())
	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonMissingPrice, updated.StatusReason)

	// Never billed means no lock was ever created for the cycle.
	_, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.True(ierr.IsNotFound(err))
}

func (s *RenewalServiceTestSuite) TestManualMethodGoesToReview() {
	sub := s.newDueSubscription("subs_manual", types.RenewalMethodManual)
	now := s.GetClock().Now()

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetLedger().SpendCount())
	s.Equal(0, s.GetGateway().ChargeCount())

	tasks := s.GetTasks().Created()
	s.Require().Len(tasks, 1)
	s.Equal(types.TaskCategoryManualReview, tasks[0].Category)

	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonAwaitingManualReview, updated.StatusReason)
	s.Require().NotNil(updated.NextBillingAt)
	s.Equal(now.Add(s.GetConfig().Renewal.RetryDelay), *updated.NextBillingAt)
}

func (s *RenewalServiceTestSuite) TestCardRenewalCreatesPendingCharge() {
	s.seedChargeableMethod()
	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Require().Equal(1, s.GetGateway().ChargeCount())
	charge := s.GetGateway().Charges()[0]
	s.Equal(int64(1999), charge.AmountCents)
	s.Equal("cus_1", charge.GatewayCustomerID)
	s.Equal(renewalIdempotencyKey(sub.ID, sub.EndDate), charge.IdempotencyKey)

	pending, err := s.GetStores().PaymentRepo.GetActiveBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.PaymentStatusPending, pending.PaymentStatus)

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.NoError(err)
	s.Equal(types.RenewalLockStateInProgress, lock.State)
	s.Equal(pending.ID, lock.PaymentID)

	s.Equal(types.StatusReasonPaymentPending, s.getSubscription(sub.ID).StatusReason)
}

func (s *RenewalServiceTestSuite) TestCardRenewalDoesNotDuplicateInFlightCharge() {
	s.seedChargeableMethod()
	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))
	s.Require().Equal(1, s.GetGateway().ChargeCount())

	// The charge is still young when the candidate comes due again.
	s.GetClock().Advance(7 * time.Hour)
	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(1, s.GetGateway().ChargeCount())
}

func (s *RenewalServiceTestSuite) TestCardDeclineSchedulesNextAttempt() {
	s.seedChargeableMethod()
	s.GetGateway().NextStatus = types.PaymentStatusFailed

	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	sub.EndDate = s.GetClock().Now().AddDate(0, 0, 10)
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.NoError(err)
	s.Equal(types.RenewalLockStateFailed, lock.State)
	s.NotEmpty(lock.PaymentID)

	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonCardPaymentFailed, updated.StatusReason)
	s.Require().NotNil(updated.NextBillingAt)
	s.Equal(sub.EndDate.AddDate(0, 0, -7), *updated.NextBillingAt)
	s.True(updated.AutoRenew)

	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeRenewalFailed), 1)
}

func (s *RenewalServiceTestSuite) TestCardSynchronousSuccessAdvances() {
	s.seedChargeableMethod()
	s.GetGateway().NextStatus = types.PaymentStatusSucceeded

	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))
	cycleEnd := sub.EndDate

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	lock, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, cycleEnd)
	s.NoError(err)
	s.Equal(types.RenewalLockStateSucceeded, lock.State)

	updated := s.getSubscription(sub.ID)
	s.Equal(cycleEnd.AddDate(0, 1, 0), updated.EndDate)
	s.Equal(types.StatusReasonRenewed, updated.StatusReason)

	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeRenewalSucceeded), 1)
}

// failingMethodStore simulates a payment method store outage.
type failingMethodStore struct{}

func (failingMethodStore) Get(ctx context.Context, id string) (*payment.PaymentMethod, error) {
	return nil, ierr.NewError("method store unavailable").Mark(ierr.ErrSystem)
}

func (failingMethodStore) GetPlatformDefault(ctx context.Context, userID string) (*payment.PaymentMethod, error) {
	return nil, ierr.NewError("method store unavailable").Mark(ierr.ErrSystem)
}

func (s *RenewalServiceTestSuite) TestMethodStoreOutageDoesNotDisableAutoRenew() {
	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	params := s.params
	params.PaymentMethodRepo = failingMethodStore{}
	svc := NewRenewalService(params)

	s.NoError(svc.ProcessDueRenewals(s.GetContext()))

	// An unreadable method store is ambiguous, never a confirmed missing
	// method: the candidate must stay eligible for the next pass.
	s.Equal(0, s.GetGateway().ChargeCount())

	updated := s.getSubscription(sub.ID)
	s.True(updated.AutoRenew)
	s.NotEqual(types.StatusReasonNoPaymentMethod, updated.StatusReason)
	s.Empty(s.GetNotifications().SentOfType(types.NotificationTypeAutoRenewDisabled))
}

func (s *RenewalServiceTestSuite) TestNoUsableMethodDisablesAutoRenew() {
	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetGateway().ChargeCount())

	updated := s.getSubscription(sub.ID)
	s.False(updated.AutoRenew)
	s.Nil(updated.NextBillingAt)
	s.Equal(types.StatusReasonNoPaymentMethod, updated.StatusReason)

	s.Len(s.GetNotifications().SentOfType(types.NotificationTypeAutoRenewDisabled), 1)

	_, err := s.GetStores().RenewalLockRepo.GetByCycle(s.GetContext(), sub.ID, sub.EndDate)
	s.True(ierr.IsNotFound(err))
}

func (s *RenewalServiceTestSuite) TestCardRetryExhaustionDisablesAutoRenew() {
	s.seedChargeableMethod()
	s.GetGateway().NextStatus = types.PaymentStatusFailed

	sub := s.newDueSubscription("subs_card", types.RenewalMethodCard)
	sub.PaymentMethodID = "pm_1"
	sub.EndDate = s.GetClock().Now().Add(-time.Hour)
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	updated := s.getSubscription(sub.ID)
	s.False(updated.AutoRenew)
	s.Nil(updated.NextBillingAt)
	s.Equal(types.StatusReasonRetriesExhausted, updated.StatusReason)
}

func (s *RenewalServiceTestSuite) TestMissingRenewalMethodGoesToReview() {
	sub := s.newDueSubscription("subs_unknown", "")

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetLedger().SpendCount())
	s.Equal(0, s.GetGateway().ChargeCount())

	tasks := s.GetTasks().Created()
	s.Require().Len(tasks, 1)
	s.Equal(types.TaskCategoryManualReview, tasks[0].Category)

	updated := s.getSubscription(sub.ID)
	s.Equal(types.StatusReasonMissingRenewalMethod, updated.StatusReason)
}

func (s *RenewalServiceTestSuite) TestCancelledSubscriptionNotSwept() {
	s.GetLedger().SetBalance("user_1", decimal.NewFromInt(100))
	sub := s.newDueSubscription("subs_credit", types.RenewalMethodCredits)
	cancelledAt := s.GetClock().Now().Add(-time.Minute)
	sub.CancellationRequestedAt = &cancelledAt
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	s.NoError(s.renewalService.ProcessDueRenewals(s.GetContext()))

	s.Equal(0, s.GetLedger().SpendCount())
}
