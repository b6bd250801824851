package lock

import (
	"context"
	"sync"
	"time"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/types"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore implements Store in process memory. Used in tests and as a
// fallback for single-process deployments without Redis.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	clock       types.Clock
	unreachable bool
}

// NewMemoryStore creates an in-memory lock store.
func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// SetUnreachable makes Acquire/Release fail like a downed store. Test helper.
func (s *MemoryStore) SetUnreachable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = down
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return "", ierr.NewError("lock store unreachable").Mark(ierr.ErrSystem)
	}

	now := s.clock.Now()
	if entry, ok := s.entries[key]; ok && entry.expiresAt.After(now) {
		return "", nil
	}

	token := types.GenerateUUID()
	s.entries[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (s *MemoryStore) Release(ctx context.Context, key string, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return false, ierr.NewError("lock store unreachable").Mark(ierr.ErrSystem)
	}

	entry, ok := s.entries[key]
	if !ok || entry.token != token {
		return false, nil
	}

	delete(s.entries, key)
	return true, nil
}
