package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rsi-cycle-tracker/cycle"
)

func startBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b
}

func event(userID int64, typ cycle.EventType, symbol string) cycle.Event {
	return cycle.Event{Type: typ, UserID: userID, Cycle: cycle.TradeCycle{UserID: userID, Symbol: symbol}, At: time.Now()}
}

func receive(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func TestBroker_RoutesByUser(t *testing.T) {
	b := startBroker(t)
	ctx := context.Background()

	mine, cancelMine, err := b.Subscribe(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer cancelMine()
	theirs, cancelTheirs, err := b.Subscribe(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer cancelTheirs()

	b.Publish(ctx, event(2, cycle.EventOpened, "NICA"))
	b.Publish(ctx, event(1, cycle.EventClosed, "NABIL"))

	f := receive(t, mine)
	if f.Event != string(cycle.EventClosed) {
		t.Errorf("user 1 got %s", f.Event)
	}
	var envelope struct {
		Event   string      `json:"event"`
		Payload cycle.Event `json:"payload"`
	}
	if err := json.Unmarshal(f.Data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Payload.Cycle.Symbol != "NABIL" {
		t.Errorf("payload = %+v", envelope.Payload)
	}

	if f := receive(t, theirs); f.Event != string(cycle.EventOpened) {
		t.Errorf("user 2 got %s", f.Event)
	}
}

func TestBroker_CancelAndStop(t *testing.T) {
	b := NewBroker(nil, nil)
	ctx, stop := context.WithCancel(context.Background())
	go b.Run(ctx)

	ch, cancel, err := b.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel() // idempotent
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	ch2, _, err := b.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	stop()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed when the broker stops")
	}
	if _, _, err := b.Subscribe(context.Background(), 1); err != ErrClosed {
		t.Errorf("Subscribe after stop = %v, want ErrClosed", err)
	}
}

func TestServeSSE(t *testing.T) {
	b := startBroker(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeSSE(w, r, 7)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}
	r.ReadString('\n')

	b.Publish(context.Background(), event(8, cycle.EventOpened, "HDL"))
	b.Publish(context.Background(), event(7, cycle.EventOpened, "NABIL"))

	line, _ = r.ReadString('\n')
	if strings.TrimSpace(line) != "event: cycle_opened" {
		t.Errorf("event line = %q", line)
	}
	line, _ = r.ReadString('\n')
	if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"NABIL"`) {
		t.Errorf("data line = %q", line)
	}
}

func TestServeWS(t *testing.T) {
	b := startBroker(t)
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeWS(upgrader, w, r, 3)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(context.Background(), event(3, cycle.EventClosed, "NICA"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"cycle_closed"`) || !strings.Contains(string(data), `"NICA"`) {
		t.Errorf("message = %s", data)
	}
}

func TestNewUpgrader_Origins(t *testing.T) {
	u := NewUpgrader([]string{"https://app.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := u.CheckOrigin(r); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
