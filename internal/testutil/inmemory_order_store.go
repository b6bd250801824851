package testutil

import (
	"context"

	"github.com/subflow/subflow/internal/domain/order"
)

// InMemoryOrderStore implements order.Repository.
type InMemoryOrderStore struct {
	orders    *InMemoryStore[*order.Order]
	lineItems *InMemoryStore[*order.LineItem]
}

// NewInMemoryOrderStore creates a new in-memory order store.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:    NewInMemoryStore[*order.Order](),
		lineItems: NewInMemoryStore[*order.LineItem](),
	}
}

// CreateOrder inserts an order. Test setup helper.
func (s *InMemoryOrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	copied := *o
	return s.orders.Create(ctx, o.ID, &copied)
}

// CreateLineItem inserts a line item. Test setup helper.
func (s *InMemoryOrderStore) CreateLineItem(ctx context.Context, li *order.LineItem) error {
	copied := *li
	return s.lineItems.Create(ctx, li.ID, &copied)
}

func (s *InMemoryOrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *o
	return &copied, nil
}

func (s *InMemoryOrderStore) GetLineItem(ctx context.Context, id string) (*order.LineItem, error) {
	li, err := s.lineItems.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *li
	return &copied, nil
}
