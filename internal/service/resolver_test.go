package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/subflow/subflow/internal/domain/order"
	"github.com/subflow/subflow/internal/domain/subscription"
	"github.com/subflow/subflow/internal/testutil"
	"github.com/subflow/subflow/internal/types"
)

type ResolverTestSuite struct {
	testutil.BaseServiceTestSuite
	svc *renewalService
}

func TestResolver(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

func (s *ResolverTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.svc = newRenewalService(ServiceParams{
		Logger:    s.GetLogger(),
		Config:    s.GetConfig(),
		Clock:     s.GetClock(),
		SubRepo:   s.GetStores().SubscriptionRepo,
		OrderRepo: s.GetStores().OrderRepo,
	})
}

func (s *ResolverTestSuite) newSubscription() *subscription.Subscription {
	now := s.GetClock().Now()
	return &subscription.Subscription{
		ID:                 "subs_1",
		UserID:             "user_1",
		StartDate:          now.AddDate(0, -6, 0),
		TermStartAt:        now.AddDate(0, -6, 0),
		EndDate:            now,
		Currency:           "usd",
		SubscriptionStatus: types.SubscriptionStatusActive,
	}
}

func (s *ResolverTestSuite) TestStoredFieldsWin() {
	sub := s.newSubscription()
	sub.TermMonths = lo.ToPtr(3)
	sub.PriceCents = lo.ToPtr(int64(4999))

	res, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Require().Empty(reason)
	s.Equal(3, res.TermMonths)
	s.Equal(termSourceSubscription, res.TermSource)
	s.Equal(int64(4999), res.PriceCents)
	s.Equal(priceSourceSubscription, res.PriceSource)
	s.Equal("usd", res.Currency)
}

func (s *ResolverTestSuite) TestLineItemFallback() {
	s.Require().NoError(s.GetStores().OrderRepo.CreateLineItem(s.GetContext(), &order.LineItem{
		ID:         "li_1",
		OrderID:    "order_1",
		TermMonths: lo.ToPtr(6),
		PriceCents: lo.ToPtr(int64(9900)),
		Currency:   "usd",
	}))

	sub := s.newSubscription()
	sub.LineItemID = "li_1"

	res, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Require().Empty(reason)
	s.Equal(6, res.TermMonths)
	s.Equal(termSourceLineItem, res.TermSource)
	s.Equal(int64(9900), res.PriceCents)
	s.Equal(priceSourceLineItem, res.PriceSource)
}

func (s *ResolverTestSuite) TestOrderTotalSubstitutesWithoutCoupon() {
	s.Require().NoError(s.GetStores().OrderRepo.CreateOrder(s.GetContext(), &order.Order{
		ID:         "order_1",
		UserID:     "user_1",
		TotalCents: 5000,
		Currency:   "usd",
	}))

	sub := s.newSubscription()
	sub.OrderID = "order_1"
	sub.TermMonths = lo.ToPtr(1)

	res, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Require().Empty(reason)
	s.Equal(int64(5000), res.PriceCents)
	s.Equal(priceSourceOrderTotal, res.PriceSource)
}

func (s *ResolverTestSuite) TestCouponedOrderTotalIsNotAPriceProxy() {
	s.Require().NoError(s.GetStores().OrderRepo.CreateOrder(s.GetContext(), &order.Order{
		ID:         "order_1",
		UserID:     "user_1",
		TotalCents: 5000,
		Currency:   "usd",
		CouponID:   "cpn_1",
	}))

	sub := s.newSubscription()
	sub.OrderID = "order_1"
	sub.TermMonths = lo.ToPtr(1)

	_, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Equal(types.StatusReasonMissingPrice, reason)
}

func (s *ResolverTestSuite) TestMetadataFallback() {
	sub := s.newSubscription()
	sub.Metadata = map[string]string{
		"term_months": "12",
		"price_cents": "19900",
	}

	res, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Require().Empty(reason)
	s.Equal(12, res.TermMonths)
	s.Equal(termSourceSubMeta, res.TermSource)
	s.Equal(int64(19900), res.PriceCents)
	s.Equal(priceSourceSubMeta, res.PriceSource)
}

func (s *ResolverTestSuite) TestDateDeltaIsLastResortForTerm() {
	sub := s.newSubscription()
	sub.TermStartAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub.EndDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	sub.PriceCents = lo.ToPtr(int64(1999))

	res, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Require().Empty(reason)
	s.Equal(6, res.TermMonths)
	s.Equal(termSourceDateDelta, res.TermSource)
}

func (s *ResolverTestSuite) TestCurrencyMismatchBlocksCharge() {
	s.Require().NoError(s.GetStores().OrderRepo.CreateLineItem(s.GetContext(), &order.LineItem{
		ID:         "li_1",
		OrderID:    "order_1",
		TermMonths: lo.ToPtr(1),
		PriceCents: lo.ToPtr(int64(9900)),
		Currency:   "eur",
	}))

	sub := s.newSubscription()
	sub.LineItemID = "li_1"

	_, reason := s.svc.resolveRenewalFields(s.GetContext(), sub)
	s.Equal(types.StatusReasonCurrencyMismatch, reason)
}
