package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/subflow/subflow/internal/domain/payment"
	ierr "github.com/subflow/subflow/internal/errors"
)

// InMemoryPaymentStore implements payment.Repository.
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
}

// NewInMemoryPaymentStore creates a new in-memory payment store.
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Payment](),
	}
}

func copyPayment(p *payment.Payment) *payment.Payment {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, p.ID, copyPayment(p))
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyPayment(p), nil
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	return s.InMemoryStore.Update(ctx, p.ID, copyPayment(p))
}

func (s *InMemoryPaymentStore) GetActiveBySubscription(ctx context.Context, subscriptionID string) (*payment.Payment, error) {
	active := s.InMemoryStore.List(ctx, func(p *payment.Payment) bool {
		return p.SubscriptionID == subscriptionID && !p.PaymentStatus.IsTerminal()
	})
	if len(active) == 0 {
		return nil, ierr.NewErrorf("no active payment for subscription: %s", subscriptionID).
			Mark(ierr.ErrNotFound)
	}

	sort.Slice(active, func(a, b int) bool {
		return active[a].CreatedAt.After(active[b].CreatedAt)
	})
	return copyPayment(active[0]), nil
}

func (s *InMemoryPaymentStore) ListAgedPending(ctx context.Context, cutoff time.Time) ([]*payment.Payment, error) {
	aged := s.InMemoryStore.List(ctx, func(p *payment.Payment) bool {
		return !p.PaymentStatus.IsTerminal() && p.CreatedAt.Before(cutoff)
	})

	sort.Slice(aged, func(a, b int) bool {
		return aged[a].CreatedAt.Before(aged[b].CreatedAt)
	})

	result := make([]*payment.Payment, len(aged))
	for i, p := range aged {
		result[i] = copyPayment(p)
	}
	return result, nil
}

// InMemoryPaymentMethodStore implements payment.MethodRepository.
type InMemoryPaymentMethodStore struct {
	*InMemoryStore[*payment.PaymentMethod]
}

// NewInMemoryPaymentMethodStore creates a new in-memory payment method store.
func NewInMemoryPaymentMethodStore() *InMemoryPaymentMethodStore {
	return &InMemoryPaymentMethodStore{
		InMemoryStore: NewInMemoryStore[*payment.PaymentMethod](),
	}
}

func copyPaymentMethod(m *payment.PaymentMethod) *payment.PaymentMethod {
	if m == nil {
		return nil
	}
	copied := *m
	return &copied
}

// Create inserts a payment method. Test setup helper.
func (s *InMemoryPaymentMethodStore) Create(ctx context.Context, m *payment.PaymentMethod) error {
	return s.InMemoryStore.Create(ctx, m.ID, copyPaymentMethod(m))
}

func (s *InMemoryPaymentMethodStore) Get(ctx context.Context, id string) (*payment.PaymentMethod, error) {
	m, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyPaymentMethod(m), nil
}

func (s *InMemoryPaymentMethodStore) GetPlatformDefault(ctx context.Context, userID string) (*payment.PaymentMethod, error) {
	defaults := s.InMemoryStore.List(ctx, func(m *payment.PaymentMethod) bool {
		return m.UserID == userID && m.PlatformDefault
	})
	if len(defaults) == 0 {
		return nil, ierr.NewErrorf("no platform default payment method for user: %s", userID).
			Mark(ierr.ErrNotFound)
	}
	return copyPaymentMethod(defaults[0]), nil
}
