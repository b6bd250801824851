package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subflow/subflow/internal/lock"
	"github.com/subflow/subflow/internal/logger"
)

func newTestScheduler(store lock.Store) *Scheduler {
	return New(store, logger.NewNopLogger(), nil)
}

func TestScheduler_RegistrationGuards(t *testing.T) {
	s := newTestScheduler(nil)

	s.Register(JobConfig{
		Name:     "sweep",
		Interval: time.Minute,
		Handler:  func(ctx context.Context) error { return nil },
	})
	// Duplicate name is ignored
	s.Register(JobConfig{
		Name:     "sweep",
		Interval: time.Second,
		Handler:  func(ctx context.Context) error { return nil },
	})
	// Non-positive interval is ignored
	s.Register(JobConfig{
		Name:     "broken",
		Interval: 0,
		Handler:  func(ctx context.Context) error { return nil },
	})
	// Missing handler is ignored
	s.Register(JobConfig{
		Name:     "no-handler",
		Interval: time.Minute,
	})

	assert.Equal(t, 1, s.JobCount())
}

func TestScheduler_DoubleStartDoesNotDoubleTimers(t *testing.T) {
	s := newTestScheduler(nil)

	var runs atomic.Int64
	s.Register(JobConfig{
		Name:     "counter",
		Interval: 50 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	s.Start()
	defer s.Stop()

	time.Sleep(230 * time.Millisecond)

	// One run-on-start plus ~4 ticks. A doubled timer set would roughly
	// double this.
	got := runs.Load()
	assert.GreaterOrEqual(t, got, int64(3))
	assert.LessOrEqual(t, got, int64(7))
}

func TestScheduler_SkipWhileRunning(t *testing.T) {
	s := newTestScheduler(nil)

	var runs atomic.Int64
	s.Register(JobConfig{
		Name:     "slow",
		Interval: 30 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			time.Sleep(250 * time.Millisecond)
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), runs.Load())
}

func TestScheduler_FailingJobDoesNotAffectSiblings(t *testing.T) {
	s := newTestScheduler(nil)

	var healthyRuns atomic.Int64
	s.Register(JobConfig{
		Name:     "panicky",
		Interval: 40 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			panic("boom")
		},
	})
	s.Register(JobConfig{
		Name:     "healthy",
		Interval: 40 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			healthyRuns.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.GreaterOrEqual(t, healthyRuns.Load(), int64(2))
}

func TestScheduler_LockHeldByAnotherProcessSkips(t *testing.T) {
	store := lock.NewMemoryStore(nil)
	ctx := context.Background()

	// Simulate another process holding the job lock
	token, err := store.Acquire(ctx, "jobs:sweep", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	s := newTestScheduler(store)
	var runs atomic.Int64
	s.Register(JobConfig{
		Name:     "sweep",
		Interval: 30 * time.Millisecond,
		LockKey:  "jobs:sweep",
		LockTTL:  time.Minute,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int64(0), runs.Load())
}

func TestScheduler_LockStoreUnreachableSkips(t *testing.T) {
	store := lock.NewMemoryStore(nil)
	store.SetUnreachable(true)

	s := newTestScheduler(store)
	var runs atomic.Int64
	s.Register(JobConfig{
		Name:     "sweep",
		Interval: 30 * time.Millisecond,
		LockKey:  "jobs:sweep",
		LockTTL:  time.Minute,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	// Do not run unlocked when the lock store is down
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int64(0), runs.Load())
}

func TestScheduler_LockReleasedAfterRun(t *testing.T) {
	store := lock.NewMemoryStore(nil)

	s := newTestScheduler(store)
	done := make(chan struct{}, 1)
	s.Register(JobConfig{
		Name:     "sweep",
		Interval: time.Minute,
		LockKey:  "jobs:sweep",
		LockTTL:  time.Minute,
		Handler: func(ctx context.Context) error {
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	// Give the deferred release a moment, then the lock must be free
	require.Eventually(t, func() bool {
		token, err := store.Acquire(context.Background(), "jobs:sweep", time.Minute)
		if err != nil || token == "" {
			return false
		}
		_, _ = store.Release(context.Background(), "jobs:sweep", token)
		return true
	}, time.Second, 10*time.Millisecond)
}
