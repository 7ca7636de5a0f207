package types

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Streams a websocket client can subscribe to.
const (
	StreamAll      = "*"
	StreamLive     = "live"
	StreamBackfill = "backfill"
)

// Server message types.
const (
	MessageSlotProcessed = redis.EventSlotProcessed
	MessageSubscribed    = "subscribed"
	MessageUnsubscribed  = "unsubscribed"
	MessageError         = "error"
)

// WSClientMessage represents a message from WebSocket client
type WSClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Stream string `json:"stream"` // "live", "backfill" or "*"
}

// WSServerMessage represents a message to WebSocket client
type WSServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ValidStream reports whether s names a stream.
func ValidStream(s string) bool {
	return s == StreamAll || s == StreamLive || s == StreamBackfill
}

// StreamOf returns the stream a slot event belongs to.
func StreamOf(ev redis.SlotProcessed) string {
	if ev.Backfill {
		return StreamBackfill
	}
	return StreamLive
}

// Subscriptions tracks the streams one client listens to.
type Subscriptions struct {
	mu      sync.RWMutex
	streams map[string]bool
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{streams: make(map[string]bool)}
}

func (s *Subscriptions) Subscribe(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream] = true
}

func (s *Subscriptions) Unsubscribe(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, stream)
}

// IsSubscribed checks if a stream is subscribed. Wildcard (*) matches all streams.
func (s *Subscriptions) IsSubscribed(stream string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams[StreamAll] || s.streams[stream]
}

// HubClient is one registered websocket connection.
type HubClient struct {
	ID   uint64
	Send chan WSServerMessage
	Subs *Subscriptions
}

// Hub fans slot events received from redis out to every subscribed client.
// A client whose buffer is full misses the event rather than stalling the
// others.
type Hub struct {
	clients *xsync.Map[uint64, *HubClient]
	nextID  atomic.Uint64
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: xsync.NewMap[uint64, *HubClient](), logger: logger}
}

// Register adds a client with a send buffer of the given size.
func (h *Hub) Register(buffer int) *HubClient {
	c := &HubClient{
		ID:   h.nextID.Add(1),
		Send: make(chan WSServerMessage, buffer),
		Subs: NewSubscriptions(),
	}
	h.clients.Store(c.ID, c)
	return c
}

func (h *Hub) Unregister(c *HubClient) {
	h.clients.Delete(c.ID)
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return h.clients.Size()
}

// Broadcast delivers ev to the clients subscribed to its stream and returns
// how many received it.
func (h *Hub) Broadcast(ev redis.SlotProcessed) int {
	stream := StreamOf(ev)
	msg := WSServerMessage{Type: MessageSlotProcessed, Payload: ev}
	delivered := 0
	h.clients.Range(func(id uint64, c *HubClient) bool {
		if !c.Subs.IsSubscribed(stream) {
			return true
		}
		select {
		case c.Send <- msg:
			delivered++
		default:
			h.logger.Warn("Websocket client is slow, dropping event",
				zap.Uint64("client", id),
				zap.Uint64("slot", ev.Slot))
		}
		return true
	})
	return delivered
}

// HandlePayload is the redis.Handler of the slot channel.
func (h *Hub) HandlePayload(_ context.Context, payload string) {
	ev, err := redis.DecodeSlotProcessed(payload)
	if err != nil {
		h.logger.Error("Failed to parse Redis message", zap.Error(err))
		return
	}
	h.Broadcast(ev)
}
