package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultChannelPrefix = "sedimentology"

	// EventSlotProcessed is published once per committed slot.
	EventSlotProcessed = "slot.processed"
)

// SlotProcessed is the payload of EventSlotProcessed.
type SlotProcessed struct {
	Slot        uint64    `json:"slot"`
	BlockHeight uint64    `json:"blockHeight"`
	BlockTime   int64     `json:"blockTime"`
	Txs         int       `json:"txs"`
	Backfill    bool      `json:"backfill"`
	ProcessedAt time.Time `json:"processedAt"`
}

// PublishSlotProcessed encodes and publishes a slot event, best-effort.
func (c *Client) PublishSlotProcessed(ctx context.Context, ev SlotProcessed) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("Failed to encode slot event", zap.Uint64("slot", ev.Slot), zap.Error(err))
		return
	}
	c.Publish(ctx, c.Channel(EventSlotProcessed), payload)
}

// DecodeSlotProcessed parses a payload received on the slot channel.
func DecodeSlotProcessed(payload string) (SlotProcessed, error) {
	var ev SlotProcessed
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("decode slot event: %w", err)
	}
	return ev, nil
}

// Handler receives raw pub/sub payloads.
type Handler func(ctx context.Context, payload string)

// Listen subscribes to the slot channel and calls handler for each message
// until ctx is cancelled. Subscription errors are retried with backoff.
func (c *Client) Listen(ctx context.Context, event string, handler Handler) error {
	retryInterval := time.Second
	const maxRetryInterval = 30 * time.Second

	for {
		err := c.listenOnce(ctx, c.Channel(event), handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Redis subscription dropped, will retry",
			zap.String("event", event),
			zap.Error(err),
			zap.Duration("retryIn", retryInterval))

		select {
		case <-time.After(retryInterval):
			retryInterval = min(retryInterval*2, maxRetryInterval)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, channel string, handler Handler) error {
	sub := c.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			handler(ctx, msg.Payload)
		}
	}
}
