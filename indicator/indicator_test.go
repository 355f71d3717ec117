package indicator

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/market"
)

const tolerance = 1e-9

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (diff %.2e)", name, got, want, math.Abs(got-want))
	}
}

func makeBars(closes ...float64) []market.PriceBar {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = market.PriceBar{
			Symbol: "NABIL",
			Date:   market.NewDate(start.AddDate(0, 0, i)),
			Close:  c,
		}
	}
	return bars
}

func TestComputeRSI_HandComputed(t *testing.T) {
	// period 2: gains [1,0] losses [0,1] -> 50; next gain 1 -> avg 0.75/0.25 -> 75
	got, err := ComputeRSI([]float64{1, 2, 1, 2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %d", len(got))
	}
	assertClose(t, "rsi[0]", got[0], 50, tolerance)
	assertClose(t, "rsi[1]", got[1], 75, tolerance)
}

func TestComputeRSI_WilderReference(t *testing.T) {
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
		45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64,
	}
	want := []float64{70.46413502109705, 66.24961855355505, 66.48094183471265,
		69.34685316290866, 66.29471265892624, 57.91502067008556}

	got, err := ComputeRSI(closes, 14)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		assertClose(t, "rsi", got[i], want[i], 1e-6)
	}
}

func TestComputeRSI_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"only gains", []float64{1, 2, 3, 4, 5}, 100},
		{"flat series has no losses", []float64{5, 5, 5, 5}, 100},
		{"only losses", []float64{5, 4, 3, 2, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeRSI(tt.closes, 3)
			if err != nil {
				t.Fatal(err)
			}
			for _, v := range got {
				assertClose(t, tt.name, v, tt.want, tolerance)
			}
		})
	}
}

func TestComputeRSI_InsufficientData(t *testing.T) {
	_, err := ComputeRSI([]float64{1, 2, 3}, 3)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Required != 4 || ide.Got != 3 {
		t.Errorf("unexpected error fields: %+v", ide)
	}
	if !strings.Contains(ide.Error(), "at least 4 bars") {
		t.Errorf("message should name the minimum: %s", ide.Error())
	}

	if _, err := ComputeRSI(nil, 14); !errors.As(err, &ide) {
		t.Errorf("empty series: expected InsufficientDataError, got %v", err)
	}
}

func TestComputeRSI_InvalidPeriod(t *testing.T) {
	if _, err := ComputeRSI([]float64{1, 2, 3}, 1); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestComputeRSI_BoundedAndDeterministic(t *testing.T) {
	closes := make([]float64, 300)
	seed := uint32(7)
	price := 500.0
	for i := range closes {
		seed = seed*1664525 + 1013904223
		price += float64(int(seed>>24)%21-10) * 0.5
		if price < 1 {
			price = 1
		}
		closes[i] = price
	}

	first, err := ComputeRSI(closes, 14)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := ComputeRSI(closes, 14)

	for i, v := range first {
		if v < 0 || v > 100 || math.IsNaN(v) {
			t.Fatalf("rsi[%d] = %v out of range", i, v)
		}
		if v != second[i] {
			t.Fatalf("rsi[%d] differs between runs: %v vs %v", i, v, second[i])
		}
	}
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds
	tests := []struct {
		rsi  float64
		want SignalClass
	}{
		{100, SignalBuy},
		{70, SignalBuy},
		{69.99, SignalNeutral},
		{50, SignalNeutral},
		{30.01, SignalNeutral},
		{30, SignalSell},
		{0, SignalSell},
	}
	for _, tt := range tests {
		if got := Classify(tt.rsi, th); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.rsi, got, tt.want)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds, false},
		{"edges", Thresholds{RSIPeriod: 2, UpperThreshold: 50, LowerThreshold: 0}, false},
		{"period too small", Thresholds{RSIPeriod: 1, UpperThreshold: 70, LowerThreshold: 30}, true},
		{"upper above 100", Thresholds{RSIPeriod: 14, UpperThreshold: 101, LowerThreshold: 30}, true},
		{"upper below 50", Thresholds{RSIPeriod: 14, UpperThreshold: 45, LowerThreshold: 30}, true},
		{"lower negative", Thresholds{RSIPeriod: 14, UpperThreshold: 70, LowerThreshold: -1}, true},
		{"lower equals upper", Thresholds{RSIPeriod: 14, UpperThreshold: 50, LowerThreshold: 50}, true},
		{"fractional upper", Thresholds{RSIPeriod: 14, UpperThreshold: 70.5, LowerThreshold: 30}, true},
		{"fractional lower", Thresholds{RSIPeriod: 14, UpperThreshold: 70, LowerThreshold: 29.9}, true},
	}
	for _, tt := range tests {
		err := tt.th.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !apperr.IsValidation(err) {
			t.Errorf("%s: expected ValidationError, got %T", tt.name, err)
		}
	}
}

func TestSignals_Transitions(t *testing.T) {
	// period 2 readings: 100 50 25 12.5 56.25 78.125 89.0625
	// classes:           B   N  S  S    N     B      B
	bars := makeBars(10, 11, 12, 11, 10, 9, 10, 11, 12)
	th := Thresholds{RSIPeriod: 2, UpperThreshold: 70, LowerThreshold: 30}

	signals, err := Signals(bars, th)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d: %+v", len(signals), signals)
	}

	sell, buy := signals[0], signals[1]
	if sell.Type != SignalSell || sell.Date.String() != "2026-01-05" || sell.Price != 10 {
		t.Errorf("unexpected sell signal: %+v", sell)
	}
	assertClose(t, "sell rsi", sell.RSI, 25, tolerance)
	if sell.Message != "RSI crossed below 30 - Weak momentum, sell signal" {
		t.Errorf("sell message = %q", sell.Message)
	}

	if buy.Type != SignalBuy || buy.Date.String() != "2026-01-08" || buy.Price != 11 {
		t.Errorf("unexpected buy signal: %+v", buy)
	}
	if buy.Message != "RSI crossed above 70 - Strong momentum, buy signal" {
		t.Errorf("buy message = %q", buy.Message)
	}
}

func TestLatest(t *testing.T) {
	th := DefaultThresholds
	tests := []struct {
		rsi     float64
		want    AlertType
		message string
	}{
		{75.456, AlertOverbought, "RSI is 75.46 - Strong momentum, consider buying"},
		{20, AlertOversold, "RSI is 20.00 - Weak momentum, consider selling"},
		{50, AlertNeutral, "RSI is 50.00 - No clear signal, market is neutral"},
	}
	for _, tt := range tests {
		got := Latest(tt.rsi, th)
		if got.Type != tt.want || got.Message != tt.message {
			t.Errorf("Latest(%v) = %+v", tt.rsi, got)
		}
	}
}

func TestEvaluate(t *testing.T) {
	bars := makeBars(10, 11, 12, 11, 10, 9, 10, 11, 12)
	r, err := Evaluate(bars, Thresholds{RSIPeriod: 2, UpperThreshold: 70, LowerThreshold: 30})
	if err != nil {
		t.Fatal(err)
	}
	if r.Class != SignalBuy || r.Bar.Close != 12 {
		t.Errorf("Evaluate() = %+v", r)
	}
	assertClose(t, "rsi", r.RSI, 89.0625, tolerance)

	if _, err := Evaluate(bars[:2], Thresholds{RSIPeriod: 2, UpperThreshold: 70, LowerThreshold: 30}); err == nil {
		t.Error("expected InsufficientDataError")
	}
}

func TestAnalyze(t *testing.T) {
	bars := makeBars(10, 11, 12, 11, 10, 9, 10, 11, 12)
	th := Thresholds{RSIPeriod: 2, UpperThreshold: 70, LowerThreshold: 30}

	a, err := Analyze("NABIL", bars, th)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.ChartData) != len(bars) {
		t.Fatalf("chart_data has %d points", len(a.ChartData))
	}
	if a.ChartData[0].RSI != nil || a.ChartData[1].RSI != nil || a.ChartData[2].RSI == nil {
		t.Error("warm-up points should have nil RSI")
	}

	s := a.Statistics
	if s.TotalSignals != 2 || s.BuySignals != 1 || s.SellSignals != 1 {
		t.Errorf("unexpected signal counts: %+v", s)
	}
	if s.CurrentPrice != 12 || s.DateRange.Start.String() != "2026-01-01" || s.DateRange.End.String() != "2026-01-09" {
		t.Errorf("unexpected statistics: %+v", s)
	}
	assertClose(t, "current_rsi", s.CurrentRSI, 89.0625, tolerance)
	assertClose(t, "avg_rsi", s.AvgRSI, 58.705357142857146, 1e-9)
	if a.LatestSignal.Type != AlertOverbought {
		t.Errorf("latest_signal = %+v", a.LatestSignal)
	}

	if _, err := Analyze("NABIL", bars[:2], th); err == nil {
		t.Error("expected error for short series")
	}
}
