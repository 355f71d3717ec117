// Package cycle owns the trade-cycle state machine: one open-to-close round
// trip per symbol per user, with a trailing stop that follows the highest
// price seen since the buy.
//
// The transition functions in this file are pure. Manager serializes them
// per (user, symbol) and persists the results through a Store.
package cycle

import (
	"strings"
	"time"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/helpers"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
)

const (
	// TSLRate is the trailing stop distance below the highest price.
	TSLRate = 0.05
	// AutomaticReason is the sell_reason of every automatic close.
	AutomaticReason = "AUTOMATIC"
	// MinReasonLength is the minimum trimmed length of a manual close reason.
	MinReasonLength = 5
	// DefaultConfirmation is the phrase a manual close must be confirmed with.
	DefaultConfirmation = "SELL"
)

// Status of a cycle.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CloseTrigger records what caused a close.
type CloseTrigger string

const (
	TriggerSignal             CloseTrigger = "SIGNAL"
	TriggerTrailingStop       CloseTrigger = "TRAILING_STOP"
	TriggerSignalTrailingStop CloseTrigger = "SIGNAL+TRAILING_STOP"
	TriggerManual             CloseTrigger = "MANUAL"
)

// Exit holds the fields that exist only once a cycle is closed.
type Exit struct {
	SellDate          market.Date  `json:"sell_date"`
	SellPrice         float64      `json:"sell_price"`
	SellRSI           float64      `json:"sell_rsi"`
	ProfitLoss        float64      `json:"profit_loss"`
	ProfitLossPercent float64      `json:"profit_loss_percent"`
	SellReason        string       `json:"sell_reason"`
	CloseTrigger      CloseTrigger `json:"close_trigger"`
}

// TradeCycle is one buy-to-sell round trip. A nil Exit means the cycle is
// open; its fields are flattened into the JSON form once closed.
type TradeCycle struct {
	ID                   int64       `json:"id"`
	UserID               int64       `json:"user_id"`
	Symbol               string      `json:"symbol"`
	CycleNumber          int         `json:"cycle_number"`
	Status               Status      `json:"status"`
	BuyDate              market.Date `json:"buy_date"`
	BuyPrice             float64     `json:"buy_price"`
	BuyRSI               float64     `json:"buy_rsi"`
	HighestPriceAfterBuy float64     `json:"highest_price_after_buy"`
	TSLTriggerPrice      float64     `json:"tsl_trigger_price"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`

	*Exit
}

// IsOpen reports whether the cycle has not been closed.
func (c *TradeCycle) IsOpen() bool {
	return c.Exit == nil
}

// TrailingStop returns the stop price for a highest price.
func TrailingStop(highest float64) float64 {
	return helpers.Discount(highest, TSLRate)
}

// NewCycle builds an open cycle from a buy.
func NewCycle(userID int64, symbol string, number int, date market.Date, price, rsi float64) TradeCycle {
	return TradeCycle{
		UserID:               userID,
		Symbol:               symbol,
		CycleNumber:          number,
		Status:               StatusOpen,
		BuyDate:              date,
		BuyPrice:             price,
		BuyRSI:               rsi,
		HighestPriceAfterBuy: price,
		TSLTriggerPrice:      TrailingStop(price),
	}
}

// Observation is the state of an open cycle at a price.
type Observation struct {
	HighestPrice  float64 `json:"highest_price"`
	TSLPrice      float64 `json:"tsl_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	NewHigh       bool    `json:"new_high"`
}

// Observe folds a price into the cycle's trailing stop. The highest price
// never decreases.
func Observe(c TradeCycle, price float64) Observation {
	obs := Observation{
		HighestPrice:  c.HighestPriceAfterBuy,
		TSLPrice:      c.TSLTriggerPrice,
		UnrealizedPnL: helpers.PercentChange(c.BuyPrice, price),
	}
	if price > c.HighestPriceAfterBuy {
		obs.HighestPrice = price
		obs.TSLPrice = TrailingStop(price)
		obs.NewHigh = true
	}
	return obs
}

// ShouldAutoClose reports whether an open cycle must be closed at price: on a
// SELL signal or once price reaches the trailing stop.
func ShouldAutoClose(signal indicator.SignalClass, price float64, c TradeCycle) (CloseTrigger, bool) {
	if !c.IsOpen() {
		return "", false
	}
	sell := signal == indicator.SignalSell
	stopped := price <= Observe(c, price).TSLPrice

	switch {
	case sell && stopped:
		return TriggerSignalTrailingStop, true
	case sell:
		return TriggerSignal, true
	case stopped:
		return TriggerTrailingStop, true
	default:
		return "", false
	}
}

// CloseRequest carries the sell-side bar of a close.
type CloseRequest struct {
	Date  market.Date
	Price float64
	RSI   float64
}

// Validate checks the sell price.
func (r CloseRequest) Validate() error {
	if r.Price <= 0 {
		return apperr.NewValidationErrorWithValue("price", "must be positive", r.Price)
	}
	if r.Date.IsZero() {
		return apperr.NewValidationError("date", "is required")
	}
	return nil
}

// Close returns a closed copy of c. It fails with ErrNotOpen when c is
// already closed.
func Close(c TradeCycle, req CloseRequest, reason string, trigger CloseTrigger) (TradeCycle, error) {
	if !c.IsOpen() {
		return c, ErrNotOpen
	}
	c.Status = StatusClosed
	c.Exit = &Exit{
		SellDate:          req.Date,
		SellPrice:         req.Price,
		SellRSI:           req.RSI,
		ProfitLoss:        helpers.Diff(c.BuyPrice, req.Price),
		ProfitLossPercent: helpers.PercentChange(c.BuyPrice, req.Price),
		SellReason:        reason,
		CloseTrigger:      trigger,
	}
	return c, nil
}

// ValidateManualClose checks a manual close before anything is locked or
// written and returns the trimmed reason.
func ValidateManualClose(reason, confirmation, expected string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", ErrReasonRequired
	}
	if len([]rune(reason)) < MinReasonLength {
		return "", apperr.NewValidationErrorWithValue("reason", "must be at least 5 characters", reason)
	}
	if expected == "" {
		expected = DefaultConfirmation
	}
	if confirmation != expected {
		return "", ErrConfirmationMismatch
	}
	return reason, nil
}
