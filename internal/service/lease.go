package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLease guards a scheduler sweep against concurrent runs on other instances.
type SweepLease interface {
	Acquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

type redisLease struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSweepLease returns a Redis backed lease. With a nil client every acquire succeeds and the
// process-local guards are the only protection.
func NewSweepLease(client *redis.Client, prefix string, ttl time.Duration) SweepLease {
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	if prefix == "" {
		prefix = "teachmate"
	}
	return &redisLease{client: client, prefix: prefix, ttl: ttl}
}

func (l *redisLease) Acquire(ctx context.Context, name string) (func(), bool, error) {
	if l.client == nil {
		return func() {}, true, nil
	}

	key := fmt.Sprintf("%s:lease:%s", l.prefix, name)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
