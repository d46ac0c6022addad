package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/damoang/angple-workflow/pkg/redis"
)

// Locker guards a due schedule against concurrent execution when several
// trigger workers share the database. The returned release func is nil-safe
// to defer.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}

type redisLocker struct {
	client *goredis.Client
}

// NewRedisLocker creates a Locker backed by Redis SET NX PX.
func NewRedisLocker(client *goredis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	lock, ok, err := pkgredis.TryLock(ctx, l.client, key, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func(releaseCtx context.Context) {
		_ = lock.Release(releaseCtx)
	}, true, nil
}
