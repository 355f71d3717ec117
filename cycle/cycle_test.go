package cycle

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
)

func date(t *testing.T, s string) market.Date {
	t.Helper()
	d, err := market.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNewCycle(t *testing.T) {
	c := NewCycle(1, "NABIL", 3, date(t, "2026-01-05"), 100, 72.5)
	if !c.IsOpen() || c.Status != StatusOpen {
		t.Fatal("new cycle should be open")
	}
	if c.HighestPriceAfterBuy != 100 || c.TSLTriggerPrice != 95 {
		t.Errorf("highest=%v tsl=%v", c.HighestPriceAfterBuy, c.TSLTriggerPrice)
	}
	if c.CycleNumber != 3 {
		t.Errorf("cycle_number = %d", c.CycleNumber)
	}
}

func TestObserve_TrailingStopFollowsHighs(t *testing.T) {
	c := NewCycle(1, "NABIL", 1, date(t, "2026-01-05"), 100, 72)

	steps := []struct {
		price       float64
		wantHighest float64
		wantTSL     float64
		wantPnL     float64
		wantNewHigh bool
	}{
		{105, 105, 99.75, 5, true},
		{120, 120, 114, 20, true},
		{110, 120, 114, 10, false},
	}
	for _, s := range steps {
		obs := Observe(c, s.price)
		if obs.HighestPrice != s.wantHighest || obs.TSLPrice != s.wantTSL || obs.UnrealizedPnL != s.wantPnL || obs.NewHigh != s.wantNewHigh {
			t.Errorf("Observe(%v) = %+v", s.price, obs)
		}
		if obs.HighestPrice < c.HighestPriceAfterBuy {
			t.Fatalf("highest decreased: %v < %v", obs.HighestPrice, c.HighestPriceAfterBuy)
		}
		c.HighestPriceAfterBuy = obs.HighestPrice
		c.TSLTriggerPrice = obs.TSLPrice
	}
}

func TestShouldAutoClose(t *testing.T) {
	c := NewCycle(1, "NABIL", 1, date(t, "2026-01-05"), 100, 72)
	c.HighestPriceAfterBuy = 120
	c.TSLTriggerPrice = 114

	tests := []struct {
		name    string
		signal  indicator.SignalClass
		price   float64
		want    CloseTrigger
		closing bool
	}{
		{"above stop, neutral", indicator.SignalNeutral, 115, "", false},
		{"at stop", indicator.SignalNeutral, 114, TriggerTrailingStop, true},
		{"below stop", indicator.SignalBuy, 113, TriggerTrailingStop, true},
		{"sell signal above stop", indicator.SignalSell, 118, TriggerSignal, true},
		{"sell signal and stop", indicator.SignalSell, 110, TriggerSignalTrailingStop, true},
		{"new high never stops", indicator.SignalNeutral, 130, "", false},
	}
	for _, tt := range tests {
		got, ok := ShouldAutoClose(tt.signal, tt.price, c)
		if got != tt.want || ok != tt.closing {
			t.Errorf("%s: ShouldAutoClose = %q, %v", tt.name, got, ok)
		}
	}

	closed, _ := Close(c, CloseRequest{Date: date(t, "2026-01-09"), Price: 113}, AutomaticReason, TriggerTrailingStop)
	if _, ok := ShouldAutoClose(indicator.SignalSell, 1, closed); ok {
		t.Error("closed cycle must never auto-close")
	}
}

func TestClose(t *testing.T) {
	c := NewCycle(1, "NABIL", 1, date(t, "2026-01-05"), 100, 72)
	c.HighestPriceAfterBuy, c.TSLTriggerPrice = 120, 114

	closed, err := Close(c, CloseRequest{Date: date(t, "2026-01-09"), Price: 113, RSI: 45}, AutomaticReason, TriggerTrailingStop)
	if err != nil {
		t.Fatal(err)
	}
	if closed.IsOpen() || closed.Status != StatusClosed {
		t.Fatal("cycle should be closed")
	}
	if closed.SellReason != "AUTOMATIC" || closed.ProfitLoss != 13 || closed.ProfitLossPercent != 13 {
		t.Errorf("unexpected exit: %+v", closed.Exit)
	}
	if !c.IsOpen() {
		t.Error("Close must not mutate its input")
	}

	again, err := Close(closed, CloseRequest{Date: date(t, "2026-01-10"), Price: 200}, AutomaticReason, TriggerSignal)
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if again.SellPrice != 113 {
		t.Error("closed cycle was modified")
	}
}

func TestTradeCycleJSON(t *testing.T) {
	c := NewCycle(1, "NABIL", 1, date(t, "2026-01-05"), 100, 72)
	data, _ := json.Marshal(c)
	if strings.Contains(string(data), "sell_price") {
		t.Errorf("open cycle should not carry exit fields: %s", data)
	}

	closed, _ := Close(c, CloseRequest{Date: date(t, "2026-01-09"), Price: 113}, AutomaticReason, TriggerTrailingStop)
	data, _ = json.Marshal(closed)
	for _, field := range []string{`"sell_price":113`, `"sell_reason":"AUTOMATIC"`, `"sell_date":"2026-01-09"`, `"status":"CLOSED"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("closed cycle JSON missing %s: %s", field, data)
		}
	}
}

func TestValidateManualClose(t *testing.T) {
	tests := []struct {
		name         string
		reason       string
		confirmation string
		want         string
		check        func(error) bool
	}{
		{"empty", "", "SELL", "", func(err error) bool { return errors.Is(err, ErrReasonRequired) }},
		{"whitespace", "   ", "SELL", "", func(err error) bool { return errors.Is(err, ErrReasonRequired) }},
		{"too short", "ok", "SELL", "", apperr.IsValidation},
		{"short after trim", "  ok  ", "SELL", "", apperr.IsValidation},
		{"wrong confirmation", "Rebalancing portfolio", "sell", "", func(err error) bool { return errors.Is(err, ErrConfirmationMismatch) }},
		{"valid", "  Rebalancing portfolio ", "SELL", "Rebalancing portfolio", func(err error) bool { return err == nil }},
	}
	for _, tt := range tests {
		got, err := ValidateManualClose(tt.reason, tt.confirmation, "")
		if !tt.check(err) {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: reason = %q, want %q", tt.name, got, tt.want)
		}
	}

	if _, err := ValidateManualClose("Rebalancing portfolio", "CONFIRM", "CONFIRM"); err != nil {
		t.Errorf("custom confirmation rejected: %v", err)
	}
}
