// Package market provides read access to the daily price history supplied by
// the ingestion pipeline. The engine never writes through a Source.
package market

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownSymbol is returned when a symbol has no price history.
var ErrUnknownSymbol = errors.New("unknown symbol")

// PriceBar is one immutable daily bar of a symbol.
type PriceBar struct {
	Symbol   string  `json:"symbol"`
	Date     Date    `json:"date"`
	Close    float64 `json:"close"`
	Turnover float64 `json:"turnover"`
}

// Source supplies ordered per-symbol price history.
type Source interface {
	// Symbols lists every tracked symbol in ascending order.
	Symbols(ctx context.Context) ([]string, error)
	// History returns the bars of one symbol ordered by date ascending.
	History(ctx context.Context, symbol string) ([]PriceBar, error)
	// LatestSession returns every bar dated on the most recent trading date
	// present across all symbols.
	LatestSession(ctx context.Context) ([]PriceBar, error)
}

// Closes extracts the close prices of bars in order.
func Closes(bars []PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// LatestDate returns the most recent date among bars.
func LatestDate(bars []PriceBar) Date {
	var latest Date
	for _, b := range bars {
		if b.Date.After(latest) {
			latest = b.Date
		}
	}
	return latest
}

// UnknownSymbol wraps ErrUnknownSymbol with the symbol name.
func UnknownSymbol(symbol string) error {
	return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}
