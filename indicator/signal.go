package indicator

import (
	"fmt"
	"math"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/market"
)

// SignalClass is the actionable reading of a symbol on a date.
type SignalClass string

const (
	SignalBuy     SignalClass = "BUY"
	SignalSell    SignalClass = "SELL"
	SignalNeutral SignalClass = "NEUTRAL"
	SignalHold    SignalClass = "HOLD" // neutral while a cycle is open; set by the scanner
)

// AlertType narrates the latest reading for humans.
type AlertType string

const (
	AlertOverbought AlertType = "OVERBOUGHT"
	AlertOversold   AlertType = "OVERSOLD"
	AlertNeutral    AlertType = "NEUTRAL"
)

// Thresholds configures one RSI evaluation.
type Thresholds struct {
	RSIPeriod      int     `json:"rsi_period"`
	UpperThreshold float64 `json:"upper_threshold"`
	LowerThreshold float64 `json:"lower_threshold"`
}

// DefaultThresholds are used when the installation has no stored defaults.
var DefaultThresholds = Thresholds{RSIPeriod: 14, UpperThreshold: 70, LowerThreshold: 30}

// Validate checks ranges, that thresholds are whole numbers and that
// lower < upper.
func (t Thresholds) Validate() error {
	if t.RSIPeriod < MinPeriod {
		return apperr.NewValidationErrorWithValue("rsi_period", fmt.Sprintf("must be at least %d", MinPeriod), t.RSIPeriod)
	}
	if t.UpperThreshold != math.Trunc(t.UpperThreshold) {
		return apperr.NewValidationErrorWithValue("upper_threshold", "must be a whole number", t.UpperThreshold)
	}
	if t.LowerThreshold != math.Trunc(t.LowerThreshold) {
		return apperr.NewValidationErrorWithValue("lower_threshold", "must be a whole number", t.LowerThreshold)
	}
	if t.UpperThreshold < 50 || t.UpperThreshold > 100 {
		return apperr.NewValidationErrorWithValue("upper_threshold", "must be between 50 and 100", t.UpperThreshold)
	}
	if t.LowerThreshold < 0 || t.LowerThreshold > 50 {
		return apperr.NewValidationErrorWithValue("lower_threshold", "must be between 0 and 50", t.LowerThreshold)
	}
	if t.LowerThreshold >= t.UpperThreshold {
		return apperr.NewValidationError("lower_threshold", "must be below upper_threshold")
	}
	return nil
}

// Classify maps an RSI reading to a class. High RSI reads as BUY (strong
// momentum) and low RSI as SELL.
func Classify(rsi float64, t Thresholds) SignalClass {
	switch {
	case rsi >= t.UpperThreshold:
		return SignalBuy
	case rsi <= t.LowerThreshold:
		return SignalSell
	default:
		return SignalNeutral
	}
}

// Signal is a transition into BUY or SELL on a bar.
type Signal struct {
	Date    market.Date `json:"date"`
	Type    SignalClass `json:"type"`
	Price   float64     `json:"price"`
	RSI     float64     `json:"rsi"`
	Message string      `json:"message"`
}

// Signals lists every bar whose class moves into BUY or SELL relative to the
// prior bar's class. The first RSI reading has no predecessor and never
// produces a signal.
func Signals(bars []market.PriceBar, t Thresholds) ([]Signal, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	series, err := ComputeRSI(market.Closes(bars), t.RSIPeriod)
	if err != nil {
		return nil, err
	}
	return signalsFrom(bars, series, t), nil
}

func signalsFrom(bars []market.PriceBar, series []float64, t Thresholds) []Signal {
	offset := len(bars) - len(series)
	signals := make([]Signal, 0)

	prev := Classify(series[0], t)
	for i := 1; i < len(series); i++ {
		class := Classify(series[i], t)
		if class != prev && (class == SignalBuy || class == SignalSell) {
			bar := bars[offset+i]
			signals = append(signals, Signal{
				Date:    bar.Date,
				Type:    class,
				Price:   bar.Close,
				RSI:     series[i],
				Message: signalMessage(class, t),
			})
		}
		prev = class
	}
	return signals
}

func signalMessage(class SignalClass, t Thresholds) string {
	if class == SignalBuy {
		return fmt.Sprintf("RSI crossed above %g - Strong momentum, buy signal", t.UpperThreshold)
	}
	return fmt.Sprintf("RSI crossed below %g - Weak momentum, sell signal", t.LowerThreshold)
}

// Alert narrates the most recent RSI reading.
type Alert struct {
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

// Latest builds the alert for a reading, using the same boundaries as
// Classify.
func Latest(rsi float64, t Thresholds) Alert {
	switch Classify(rsi, t) {
	case SignalBuy:
		return Alert{Type: AlertOverbought, Message: fmt.Sprintf("RSI is %.2f - Strong momentum, consider buying", rsi)}
	case SignalSell:
		return Alert{Type: AlertOversold, Message: fmt.Sprintf("RSI is %.2f - Weak momentum, consider selling", rsi)}
	default:
		return Alert{Type: AlertNeutral, Message: fmt.Sprintf("RSI is %.2f - No clear signal, market is neutral", rsi)}
	}
}

// Reading is the latest evaluation of a symbol.
type Reading struct {
	Bar   market.PriceBar
	RSI   float64
	Class SignalClass
}

// Evaluate computes the reading for the last bar.
func Evaluate(bars []market.PriceBar, t Thresholds) (*Reading, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	series, err := ComputeRSI(market.Closes(bars), t.RSIPeriod)
	if err != nil {
		return nil, err
	}
	rsi := series[len(series)-1]
	return &Reading{Bar: bars[len(bars)-1], RSI: rsi, Class: Classify(rsi, t)}, nil
}
