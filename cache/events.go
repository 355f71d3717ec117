package cache

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"rsi-cycle-tracker/cycle"
)

// EventBus relays cycle events through Redis pub/sub so every replica's
// local subscribers see them.
type EventBus struct {
	redis   *RedisClient
	channel string
	local   cycle.EventSink
	log     *zap.Logger
}

// NewEventBus creates a bus delivering received events to local.
func NewEventBus(redis *RedisClient, channel string, local cycle.EventSink, log *zap.Logger) *EventBus {
	if channel == "" {
		channel = "cycle_events"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBus{redis: redis, channel: channel, local: local, log: log}
}

// Publish implements cycle.EventSink. When Redis is unavailable the event is
// delivered locally only.
func (b *EventBus) Publish(ctx context.Context, ev cycle.Event) {
	if err := b.redis.Publish(context.WithoutCancel(ctx), b.channel, ev); err != nil {
		b.log.Warn("⚠️ Event publish failed, delivering locally", zap.Error(err))
		b.local.Publish(ctx, ev)
	}
}

// Run forwards events from Redis to the local sink until ctx is done.
func (b *EventBus) Run(ctx context.Context) {
	sub := b.redis.Subscribe(ctx, b.channel)
	if sub == nil {
		return
	}
	defer sub.Close()

	b.log.Info("📡 Subscribed to cycle events", zap.String("channel", b.channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev cycle.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("⚠️ Dropping malformed cycle event", zap.Error(err))
				continue
			}
			b.local.Publish(ctx, ev)
		}
	}
}
