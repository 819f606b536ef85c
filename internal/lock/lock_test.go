package lock

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	lease, err := Noop{}.Acquire(context.Background(), "main")
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestRedisUnreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), "127.0.0.1:1", 0, 0, nil)
	require.Error(t, err)
}

func TestRedisDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	r := NewRedisWithClient(client, 0, 0, nil)
	require.Equal(t, "cloudmining:lock:", r.prefix)
	require.Positive(t, r.ttl.Seconds())
	require.NotNil(t, r.logger)
}
