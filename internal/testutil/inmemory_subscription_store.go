package testutil

import (
	"context"
	"sort"

	"github.com/subflow/subflow/internal/domain/subscription"
	"github.com/subflow/subflow/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository.
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

// NewInMemorySubscriptionStore creates a new in-memory subscription store.
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	copied := *sub
	if sub.NextBillingAt != nil {
		next := *sub.NextBillingAt
		copied.NextBillingAt = &next
	}
	if sub.CancellationRequestedAt != nil {
		at := *sub.CancellationRequestedAt
		copied.CancellationRequestedAt = &at
	}
	if sub.TermMonths != nil {
		months := *sub.TermMonths
		copied.TermMonths = &months
	}
	if sub.PriceCents != nil {
		price := *sub.PriceCents
		copied.PriceCents = &price
	}
	if sub.BasePriceCents != nil {
		base := *sub.BasePriceCents
		copied.BasePriceCents = &base
	}
	if sub.Metadata != nil {
		copied.Metadata = make(map[string]string, len(sub.Metadata))
		for k, v := range sub.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// Create inserts a subscription. Test setup helper.
func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	return s.InMemoryStore.Update(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) ListActiveMultiMonth(ctx context.Context) ([]*subscription.Subscription, error) {
	matched := s.InMemoryStore.List(ctx, func(sub *subscription.Subscription) bool {
		return sub.SubscriptionStatus == types.SubscriptionStatusActive &&
			sub.TermMonths != nil && *sub.TermMonths > 1
	})

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].ID < matched[b].ID
	})

	result := make([]*subscription.Subscription, len(matched))
	for i, sub := range matched {
		result[i] = copySubscription(sub)
	}
	return result, nil
}

func (s *InMemorySubscriptionStore) ListDueForRenewal(ctx context.Context, filter subscription.DueFilter) ([]*subscription.Subscription, error) {
	candidates := s.InMemoryStore.List(ctx, func(sub *subscription.Subscription) bool {
		return sub.IsDue(filter.Now, filter.Lookahead)
	})

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].DueAt().Before(candidates[b].DueAt())
	})

	if filter.Limit > 0 && len(candidates) > filter.Limit {
		candidates = candidates[:filter.Limit]
	}

	result := make([]*subscription.Subscription, len(candidates))
	for i, sub := range candidates {
		result[i] = copySubscription(sub)
	}
	return result, nil
}
