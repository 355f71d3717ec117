package realtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 25 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
)

// ServeSSE streams the user's events as Server-Sent Events until the client
// disconnects or the broker stops.
func (b *Broker) ServeSSE(w http.ResponseWriter, r *http.Request, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	frames, cancel, err := b.Subscribe(r.Context(), userID)
	if err != nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case f, ok := <-frames:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
			flusher.Flush()
		}
	}
}

// NewUpgrader returns a WebSocket upgrader accepting the given origins; "*"
// or an empty list accepts any origin.
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	anyOrigin := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return anyOrigin || origin == "" || allowed[origin]
		},
	}
}

// ServeWS streams the user's events over a WebSocket. Each text message is
// the JSON event envelope. Incoming messages are ignored.
func (b *Broker) ServeWS(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("ws upgrade error", zap.Error(err))
		return
	}

	frames, cancel, err := b.Subscribe(r.Context(), userID)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go readPump(conn, cancel)
	writePump(conn, frames)
}

// readPump discards client messages and cancels the subscription once the
// connection drops.
func readPump(conn *websocket.Conn, cancel func()) {
	defer cancel()
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, frames <-chan Frame) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case f, ok := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, f.Data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
