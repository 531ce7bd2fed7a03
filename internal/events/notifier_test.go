package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryNotifierFansOut(t *testing.T) {
	n := NewInMemoryNotifier()
	var got []Event
	n.Subscribe(QueueChannel("q1"), func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})
	n.Subscribe(QueueChannel("q1"), func(context.Context, Event) error {
		return errors.New("observer gone")
	})

	err := n.Publish(context.Background(), QueueChannel("q1"), Event{Type: EventQueueUpdated, QueueID: "q1"})
	assert.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "q1", got[0].QueueID)

	assert.NoError(t, n.Publish(context.Background(), QueueChannel("other"), Event{}))
}

func TestRecorderFiltersByChannel(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), TicketChannel("t1"), Event{TicketID: "t1"}))
	require.NoError(t, r.Publish(context.Background(), QueueChannel("q1"), Event{QueueID: "q1"}))

	assert.Len(t, r.Events(TicketChannel("t1")), 1)
	assert.Len(t, r.Events(QueueChannel("q1")), 1)
	assert.Empty(t, r.Events(TicketChannel("t2")))
}

func TestRedisNotifierDelivers(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	n := NewRedisNotifier(client, "qs")
	assert.Equal(t, "qs:ticket:t1", n.Channel(TicketChannel("t1")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- n.Subscribe(ctx, func(_ context.Context, e Event) error {
			received <- e
			cancel()
			return nil
		}, TicketChannel("t1"))
	}()

	require.Eventually(t, func() bool {
		return srv.PubSubNumSub("qs:ticket:t1")["qs:ticket:t1"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, n.Publish(ctx, TicketChannel("t1"), Event{
		Type:     EventTicketUpdated,
		QueueID:  "q1",
		TicketID: "t1",
		Payload:  TicketUpdatedPayload{Status: "SERVING"},
	}))

	select {
	case e := <-received:
		assert.Equal(t, EventTicketUpdated, e.Type)
		assert.Equal(t, "t1", e.TicketID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.NoError(t, <-done)
}
