package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this holder still owns it, so an
// expired lock re-acquired by another worker is never released by the first.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a single-holder distributed lock backed by SET NX PX.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// TryLock attempts to acquire key for ttl. Returns (nil, false, nil) when
// another holder owns the lock.
func TryLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: client, key: key, token: token}, true, nil
}

// Release frees the lock if still owned by this holder.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
