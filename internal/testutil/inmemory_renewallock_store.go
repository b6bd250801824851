package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/subflow/subflow/internal/domain/renewallock"
)

// InMemoryRenewalLockStore implements renewallock.Repository. The composite
// (subscription_id, cycle_end_date) key enforces the same uniqueness a
// database unique constraint would.
type InMemoryRenewalLockStore struct {
	*InMemoryStore[*renewallock.RenewalLock]
}

// NewInMemoryRenewalLockStore creates a new in-memory renewal lock store.
func NewInMemoryRenewalLockStore() *InMemoryRenewalLockStore {
	return &InMemoryRenewalLockStore{
		InMemoryStore: NewInMemoryStore[*renewallock.RenewalLock](),
	}
}

func cycleKey(subscriptionID string, cycleEndDate time.Time) string {
	return fmt.Sprintf("%s:%s", subscriptionID, cycleEndDate.UTC().Format(time.RFC3339))
}

func copyRenewalLock(lock *renewallock.RenewalLock) *renewallock.RenewalLock {
	if lock == nil {
		return nil
	}
	copied := *lock
	return &copied
}

func (s *InMemoryRenewalLockStore) Create(ctx context.Context, lock *renewallock.RenewalLock) error {
	if err := lock.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, cycleKey(lock.SubscriptionID, lock.CycleEndDate), copyRenewalLock(lock))
}

func (s *InMemoryRenewalLockStore) GetByCycle(ctx context.Context, subscriptionID string, cycleEndDate time.Time) (*renewallock.RenewalLock, error) {
	lock, err := s.InMemoryStore.Get(ctx, cycleKey(subscriptionID, cycleEndDate))
	if err != nil {
		return nil, err
	}
	return copyRenewalLock(lock), nil
}

func (s *InMemoryRenewalLockStore) Update(ctx context.Context, lock *renewallock.RenewalLock) error {
	return s.InMemoryStore.Update(ctx, cycleKey(lock.SubscriptionID, lock.CycleEndDate), copyRenewalLock(lock))
}
