package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
)

func TestRedisOptionsFollowConfig(t *testing.T) {
	opts := redisOptions(config.RedisConfig{
		Addr:           "cache:6379",
		DB:             2,
		PoolSize:       7,
		DialTimeoutMS:  1500,
		ReadTimeoutMS:  250,
		WriteTimeoutMS: 300,
	}, "queue-service")

	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "queue-service", opts.ClientName)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 1500*time.Millisecond, opts.DialTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 300*time.Millisecond, opts.WriteTimeout)
}

func TestRedisPingTracksServer(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	r := NewRedis(ctx, config.RedisConfig{Addr: srv.Addr(), DialTimeoutMS: 500}, "", zap.NewNop())
	t.Cleanup(r.Close)
	require.NoError(t, r.Ping(ctx))

	srv.Close()
	assert.Error(t, r.Ping(ctx))

	var missing *Redis
	assert.Error(t, missing.Ping(ctx))
}
