package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/market"
)

func closedEvent(t *testing.T) cycle.Event {
	t.Helper()
	d, err := market.ParseDate("2026-01-05")
	if err != nil {
		t.Fatal(err)
	}
	c := cycle.NewCycle(1, "NABIL", 2, d, 1000, 72)
	closed, err := cycle.Close(c, cycle.CloseRequest{Date: d.AddDays(3), Price: 1130, RSI: 25}, cycle.AutomaticReason, cycle.TriggerSignal)
	if err != nil {
		t.Fatal(err)
	}
	return cycle.Event{Type: cycle.EventClosed, UserID: 1, Cycle: closed, At: time.Now()}
}

func TestCreatePayload(t *testing.T) {
	p := CreatePayload(closedEvent(t))
	if p.Event != "cycle_closed" || p.Symbol != "NABIL" || p.CycleNumber != 2 {
		t.Errorf("payload = %+v", p)
	}
	want := "🔴 SELL NABIL #2 at NPR 1,130.00 | P/L NPR 130.00 (+13.00%) | AUTOMATIC"
	if p.Message != want {
		t.Errorf("message = %q, want %q", p.Message, want)
	}
}

func TestWebhookManager_DeliversWithRetry(t *testing.T) {
	var (
		calls int32
		mu    sync.Mutex
		got   WebhookPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wm := NewWebhookManager(WebhookConfig{URLs: []string{srv.URL}, Retries: 3, RetryDelay: time.Millisecond}, nil, nil)
	wm.Publish(context.Background(), closedEvent(t))
	wm.Wait()

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Symbol != "NABIL" || !strings.HasPrefix(got.Message, "🔴 SELL") {
		t.Errorf("delivered payload = %+v", got)
	}
}

func TestWebhookManager_SkipsTrailingUpdates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	wm := NewWebhookManager(WebhookConfig{URLs: []string{srv.URL}}, nil, nil)
	ev := closedEvent(t)
	ev.Type = cycle.EventTrailingUpdated
	wm.Publish(context.Background(), ev)
	wm.Wait()

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}
