package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 30 * time.Second
	retryInterval = 50 * time.Millisecond
	keyPrefix     = "inboxd:lock:"
)

// releaseScript deletes the lock only if we still own it, so an expired
// lock reacquired by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per key across processes using SET NX with a
// TTL. Intended for deployments running more than one worker node.
type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.Client.SetNX(ctx, redisKey, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				releaseScript.Run(releaseCtx, r.Client, []string{redisKey}, token)
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
