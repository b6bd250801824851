package lock

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/redis"
	"github.com/subflow/subflow/internal/types"
)

// releaseScript deletes the key only when it still holds the caller's token.
// Compare-and-delete must be atomic; a GET followed by DEL would race with
// TTL expiry and re-acquisition by another process.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisStore implements Store on top of Redis SET NX PX.
type RedisStore struct {
	client *goredis.Client
	log    *logger.Logger
}

// NewRedisStore creates a Redis-backed lock store.
func NewRedisStore(client *redis.Client, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client: client.GetClient(),
		log:    log,
	}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := types.GenerateUUID()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Lock store unreachable").
			WithReportableDetails(map[string]interface{}{
				"key": key,
			}).
			Mark(ierr.ErrSystem)
	}
	if !ok {
		return "", nil
	}

	return token, nil
}

func (s *RedisStore) Release(ctx context.Context, key string, token string) (bool, error) {
	res, err := s.client.Eval(ctx, releaseScript, []string{key}, token).Result()
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to release lock").
			WithReportableDetails(map[string]interface{}{
				"key": key,
			}).
			Mark(ierr.ErrSystem)
	}

	deleted, ok := res.(int64)
	if !ok {
		return false, nil
	}
	if deleted == 0 {
		s.log.Warnw("lock token mismatch on release, lock was re-acquired by another owner",
			"key", key)
		return false, nil
	}

	return true, nil
}
