package cycle

import (
	"context"
	"time"
)

// EventType names a cycle lifecycle event.
type EventType string

const (
	EventOpened          EventType = "cycle_opened"
	EventClosed          EventType = "cycle_closed"
	EventTrailingUpdated EventType = "cycle_trailing_updated"
)

// Event is published after a mutation has been committed.
type Event struct {
	Type   EventType  `json:"type"`
	UserID int64      `json:"user_id"`
	Cycle  TradeCycle `json:"cycle"`
	At     time.Time  `json:"at"`
}

// EventSink receives committed cycle events. Publish must not block for long.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

// Publish implements EventSink.
func (s Sinks) Publish(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, ev)
		}
	}
}

type discardSink struct{}

func (discardSink) Publish(context.Context, Event) {}
