package types

import (
	"context"
	"testing"

	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSubscriptions(t *testing.T) {
	subs := NewSubscriptions()
	assert.False(t, subs.IsSubscribed(StreamLive))

	subs.Subscribe(StreamBackfill)
	assert.True(t, subs.IsSubscribed(StreamBackfill))
	assert.False(t, subs.IsSubscribed(StreamLive))

	subs.Subscribe(StreamAll)
	assert.True(t, subs.IsSubscribed(StreamLive))

	subs.Unsubscribe(StreamAll)
	subs.Unsubscribe(StreamBackfill)
	assert.False(t, subs.IsSubscribed(StreamBackfill))
}

func TestHubBroadcastFiltersByStream(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	live := hub.Register(4)
	live.Subs.Subscribe(StreamLive)
	all := hub.Register(4)
	all.Subs.Subscribe(StreamAll)
	hub.Register(4) // subscribed to nothing

	assert.Equal(t, 2, hub.Broadcast(redis.SlotProcessed{Slot: 1}))
	assert.Equal(t, 1, hub.Broadcast(redis.SlotProcessed{Slot: 2, Backfill: true}))
	assert.Len(t, live.Send, 1)
	assert.Len(t, all.Send, 2)

	msg := <-all.Send
	assert.Equal(t, MessageSlotProcessed, msg.Type)
	assert.Equal(t, uint64(1), msg.Payload.(redis.SlotProcessed).Slot)

	hub.Unregister(live)
	assert.Equal(t, 2, hub.Clients())
	assert.Equal(t, 1, hub.Broadcast(redis.SlotProcessed{Slot: 3}))
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	slow := hub.Register(1)
	slow.Subs.Subscribe(StreamAll)

	assert.Equal(t, 1, hub.Broadcast(redis.SlotProcessed{Slot: 1}))
	assert.Equal(t, 0, hub.Broadcast(redis.SlotProcessed{Slot: 2}))
	require.Len(t, slow.Send, 1)
	assert.Equal(t, uint64(1), (<-slow.Send).Payload.(redis.SlotProcessed).Slot)
}

func TestHubHandlePayload(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	c := hub.Register(2)
	c.Subs.Subscribe(StreamBackfill)

	hub.HandlePayload(context.Background(), `{"slot":9,"blockHeight":5,"backfill":true}`)
	hub.HandlePayload(context.Background(), `not json`)
	require.Len(t, c.Send, 1)
	assert.Equal(t, uint64(9), (<-c.Send).Payload.(redis.SlotProcessed).Slot)
}
