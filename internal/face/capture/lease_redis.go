package capture

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"faceledger/pkg/platform/sentinel"
)

const cameraLeaseKeyPrefix = "face:lease:camera:"

// releaseScript deletes the lease only when the caller still holds it, so a
// session that outlived its TTL cannot free a lease re-acquired by another.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaseStore is the multi-instance LeaseStore. SET NX plus a TTL gives
// exclusive ownership that expires on its own if a process dies mid-session.
type RedisLeaseStore struct {
	client *redis.Client
}

// NewRedisLeaseStore constructs a Redis-backed camera lease store.
func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, cameraID, sessionID string, ttl time.Duration) error {
	key := cameraLeaseKeyPrefix + cameraID

	ok, err := s.client.SetNX(ctx, key, sessionID, ttl).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	holder, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if holder == sessionID {
		// Re-acquisition by the same session extends the TTL.
		return s.client.Set(ctx, key, sessionID, ttl).Err()
	}
	return sentinel.ErrConflict
}

func (s *RedisLeaseStore) Release(ctx context.Context, cameraID, sessionID string) error {
	key := cameraLeaseKeyPrefix + cameraID
	return releaseScript.Run(ctx, s.client, []string{key}, sessionID).Err()
}

func (s *RedisLeaseStore) Holder(ctx context.Context, cameraID string) (string, error) {
	holder, err := s.client.Get(ctx, cameraLeaseKeyPrefix+cameraID).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return holder, nil
}
