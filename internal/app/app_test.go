package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
	"github.com/spec-kit/queue-service/internal/service"
)

func testConfig(redisAddr string) *config.Config {
	return &config.Config{
		App:    config.AppConfig{Env: "test"},
		Redis:  config.RedisConfig{Addr: redisAddr, DialTimeoutMS: 1000},
		Jobs:   config.JobsConfig{KeyPrefix: "jobs-x", MaxAttempts: 3, BackoffMS: 100, VisibilityTimeoutMS: 1000, PromoteBackupMS: 1000},
		Notify: config.NotifyConfig{ChannelPrefix: "events-x"},
	}
}

func TestBuildPublishesOnNotifyPrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := Build(ctx, testConfig(srv.Addr()), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.IsType(t, &memstore.Store{}, a.Store)

	q, err := a.Core.Queues.CreateQueue(ctx, "owner-1", service.QueueInput{Name: "desk"})
	require.NoError(t, err)

	channel := "events-x:" + events.QueueChannel(q.ID)
	sub := a.Redis.Client.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	_, err = a.Core.Queues.Join(ctx, q.ID, "alice")
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, channel, msg.Channel)

	var jobKeys int
	for _, key := range srv.Keys() {
		assert.False(t, strings.HasPrefix(key, "events-x"), key)
		if strings.HasPrefix(key, "jobs-x:") {
			jobKeys++
		}
	}
	assert.Positive(t, jobKeys)
}
