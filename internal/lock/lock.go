// Package lock serializes ledger mutations across processes sharing one
// state store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotAcquired = errors.New("lock held by another process")

// Locker hands out leases on a named resource. Release must be called with
// the lease returned by Acquire.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// Noop grants every lease immediately.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never drops a lease taken over by another process.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX leases.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedis connects to addr and pings it. wait bounds how long Acquire polls
// for a busy lease; zero fails immediately.
func NewRedis(ctx context.Context, addr string, ttl, wait time.Duration, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, ttl, wait, logger), nil
}

func NewRedisWithClient(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, wait: wait, prefix: "cloudmining:lock:", logger: logger}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, name string) (Lease, error) {
	key := r.prefix + name
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)
	delay := 50 * time.Millisecond

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			r.logger.Debug("lock acquired", zap.String("key", key), zap.String("token", token))
			return &redisLease{client: r.client, key: key, token: token, logger: r.logger}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if delay < time.Second {
			delay *= 2
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	logger *zap.Logger
}

func (l *redisLease) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if released == 0 {
		l.logger.Warn("lock expired before release", zap.String("key", l.key))
	}
	return nil
}
