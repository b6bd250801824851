package service

import (
	"context"
	"strconv"

	"github.com/subflow/subflow/internal/billing"
	"github.com/subflow/subflow/internal/domain/order"
	"github.com/subflow/subflow/internal/domain/subscription"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

// fieldResolution is the outcome of the term and price fallback chains for
// one renewal candidate.
type fieldResolution struct {
	TermMonths  int
	TermSource  string
	PriceCents  int64
	PriceSource string
	Currency    string
}

// resolveRenewalFields resolves the candidate's term length and renewal price
// through ordered fallback chains, since upstream data may be incomplete:
// stored field, then originating line item, then originating order, then
// free-form metadata, then (term only) a calendar delta between the
// subscription's dates. A non-empty reason means the candidate must not be
// charged this pass; the state is recoverable and the caller reschedules it.
func (s *renewalService) resolveRenewalFields(ctx context.Context, sub *subscription.Subscription) (*fieldResolution, types.StatusReason) {
	li, ord := s.fetchOrigins(ctx, sub)

	termMonths, termSource := resolveTermMonths(sub, li, ord)
	if termMonths <= 0 {
		s.Logger.Warnw("no term length resolvable for renewal candidate",
			"subscription_id", sub.ID)
		return nil, types.StatusReasonMissingTerm
	}
	if termSource == termSourceDateDelta {
		// Weakest fallback; reaching it means structured term data is missing
		// everywhere upstream.
		s.Logger.Warnw("term length resolved from date delta",
			"subscription_id", sub.ID,
			"term_months", termMonths,
			"status_reason", types.StatusReasonTermResolvedFromDates)
	}

	priceCents, priceCurrency, priceSource := resolvePriceCents(sub, li, ord)
	if priceCents <= 0 {
		s.Logger.Warnw("no positive price resolvable for renewal candidate",
			"subscription_id", sub.ID)
		return nil, types.StatusReasonMissingPrice
	}
	if priceCurrency != "" && sub.Currency != "" && priceCurrency != sub.Currency {
		s.Logger.Warnw("resolved price currency does not match subscription",
			"subscription_id", sub.ID,
			"price_source", priceSource,
			"price_currency", priceCurrency,
			"subscription_currency", sub.Currency)
		return nil, types.StatusReasonCurrencyMismatch
	}

	currency := sub.Currency
	if currency == "" {
		currency = priceCurrency
	}

	return &fieldResolution{
		TermMonths:  termMonths,
		TermSource:  termSource,
		PriceCents:  priceCents,
		PriceSource: priceSource,
		Currency:    currency,
	}, ""
}

// fetchOrigins loads the candidate's originating line item and order, best
// effort. Missing rows are normal for legacy data and never block the chain.
func (s *renewalService) fetchOrigins(ctx context.Context, sub *subscription.Subscription) (*order.LineItem, *order.Order) {
	var li *order.LineItem
	var ord *order.Order

	if sub.LineItemID != "" {
		found, err := s.OrderRepo.GetLineItem(ctx, sub.LineItemID)
		if err != nil && !ierr.IsNotFound(err) {
			s.Logger.Warnw("failed to load originating line item",
				"subscription_id", sub.ID,
				"line_item_id", sub.LineItemID,
				"error", err)
		} else if err == nil {
			li = found
		}
	}
	if sub.OrderID != "" {
		found, err := s.OrderRepo.GetOrder(ctx, sub.OrderID)
		if err != nil && !ierr.IsNotFound(err) {
			s.Logger.Warnw("failed to load originating order",
				"subscription_id", sub.ID,
				"order_id", sub.OrderID,
				"error", err)
		} else if err == nil {
			ord = found
		}
	}
	return li, ord
}

const (
	termSourceSubscription = "subscription"
	termSourceLineItem     = "line_item"
	termSourceOrderMeta    = "order_metadata"
	termSourceSubMeta      = "subscription_metadata"
	termSourceDateDelta    = "date_delta"

	priceSourceSubscription = "subscription"
	priceSourceLineItem     = "line_item"
	priceSourceOrderTotal   = "order_total"
	priceSourceSubMeta      = "subscription_metadata"
)

// resolveTermMonths tries each term source in order and stops at the first
// positive value.
func resolveTermMonths(sub *subscription.Subscription, li *order.LineItem, ord *order.Order) (int, string) {
	type resolver struct {
		source  string
		resolve func() int
	}

	chain := []resolver{
		{termSourceSubscription, func() int {
			if sub.TermMonths != nil {
				return *sub.TermMonths
			}
			return 0
		}},
		{termSourceLineItem, func() int {
			if li != nil && li.TermMonths != nil {
				return *li.TermMonths
			}
			return 0
		}},
		{termSourceOrderMeta, func() int {
			if ord == nil {
				return 0
			}
			return parseIntField(ord.Metadata, "term_months")
		}},
		{termSourceSubMeta, func() int {
			return parseIntField(sub.Metadata, "term_months")
		}},
		{termSourceDateDelta, func() int {
			start := sub.TermStartAt
			if start.IsZero() {
				start = sub.StartDate
			}
			if start.IsZero() || sub.EndDate.IsZero() {
				return 0
			}
			return billing.TermMonthsFromDates(start, sub.EndDate)
		}},
	}

	for _, r := range chain {
		if v := r.resolve(); v > 0 {
			return v, r.source
		}
	}
	return 0, ""
}

// resolvePriceCents tries each price source in order and stops at the first
// positive value, returning the source's own currency when it declares one.
// An order total only substitutes for a missing price when the order carries
// no coupon, since a discounted total is not a safe proxy for one renewal.
func resolvePriceCents(sub *subscription.Subscription, li *order.LineItem, ord *order.Order) (int64, string, string) {
	type resolver struct {
		source  string
		resolve func() (int64, string)
	}

	chain := []resolver{
		{priceSourceSubscription, func() (int64, string) {
			if sub.PriceCents != nil {
				return *sub.PriceCents, sub.Currency
			}
			return 0, ""
		}},
		{priceSourceLineItem, func() (int64, string) {
			if li != nil && li.PriceCents != nil {
				return *li.PriceCents, li.Currency
			}
			return 0, ""
		}},
		{priceSourceOrderTotal, func() (int64, string) {
			if ord == nil || ord.CouponID != "" {
				return 0, ""
			}
			return ord.TotalCents, ord.Currency
		}},
		{priceSourceSubMeta, func() (int64, string) {
			return parseInt64Field(sub.Metadata, "price_cents"), ""
		}},
	}

	for _, r := range chain {
		if v, currency := r.resolve(); v > 0 {
			return v, currency, r.source
		}
	}
	return 0, "", ""
}

func parseIntField(metadata map[string]string, key string) int {
	if metadata == nil {
		return 0
	}
	v, err := strconv.Atoi(metadata[key])
	if err != nil {
		return 0
	}
	return v
}

func parseInt64Field(metadata map[string]string, key string) int64 {
	if metadata == nil {
		return 0
	}
	v, err := strconv.ParseInt(metadata[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
