// Package realtime streams committed cycle events to the owning user over
// Server-Sent Events and WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/metrics"
)

// ErrClosed is returned when subscribing to a stopped broker.
var ErrClosed = errors.New("broker is closed")

// Frame is one message delivered to a subscriber.
type Frame struct {
	Event string
	Data  []byte
}

type client struct {
	userID int64
	ch     chan Frame
}

type message struct {
	userID int64
	frame  Frame
}

// Broker fans cycle events out to the subscribers of the event's user.
type Broker struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan message
	done       chan struct{}
	mu         sync.RWMutex
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewBroker creates a broker. Run must be started before subscribing.
func NewBroker(m *metrics.Metrics, log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, 1000),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log,
	}
}

// Run starts the broker loop. It returns when ctx is done, closing every
// subscriber channel.
func (b *Broker) Run(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.ch)
			b.metrics.StreamConnected(-1)
		}
		b.mu.Unlock()
		close(b.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			total := len(b.clients)
			b.mu.Unlock()
			b.metrics.StreamConnected(1)
			b.log.Debug("Stream client connected", zap.Int64("user_id", c.userID), zap.Int("total", total))

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.ch)
				b.metrics.StreamConnected(-1)
			}
			total := len(b.clients)
			b.mu.Unlock()
			b.log.Debug("Stream client disconnected", zap.Int64("user_id", c.userID), zap.Int("total", total))

		case msg := <-b.broadcast:
			b.mu.RLock()
			for c := range b.clients {
				if c.userID != msg.userID {
					continue
				}
				select {
				case c.ch <- msg.frame:
				default:
					// Skip if client buffer is full to prevent blocking
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Subscribe registers a subscriber for userID. The returned cancel func is
// idempotent; the channel is closed after cancel or when the broker stops.
func (b *Broker) Subscribe(ctx context.Context, userID int64) (<-chan Frame, func(), error) {
	c := &client{userID: userID, ch: make(chan Frame, 16)}
	select {
	case b.register <- c:
	case <-b.done:
		return nil, nil, ErrClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			select {
			case b.unregister <- c:
			case <-b.done:
			}
		})
	}
	return c.ch, cancel, nil
}

// Clients returns the number of connected subscribers.
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish implements cycle.EventSink. Events are dropped when the broadcast
// buffer is full.
func (b *Broker) Publish(_ context.Context, ev cycle.Event) {
	data, err := json.Marshal(map[string]interface{}{
		"event":   ev.Type,
		"payload": ev,
	})
	if err != nil {
		b.log.Error("Error marshalling broadcast message", zap.Error(err))
		return
	}

	select {
	case b.broadcast <- message{userID: ev.UserID, frame: Frame{Event: string(ev.Type), Data: data}}:
	default:
		b.log.Warn("⚠️ Broadcast buffer full, dropping event", zap.String("event", string(ev.Type)))
	}
}
