package cycle

import (
	"context"

	"rsi-cycle-tracker/market"
)

// Store persists cycles. Every mutation of an existing row must be guarded
// by status = OPEN so closed cycles are never rewritten.
type Store interface {
	// FindOpen returns the open cycle for (userID, symbol), or nil.
	FindOpen(ctx context.Context, userID int64, symbol string) (*TradeCycle, error)
	// NextCycleNumber returns max(cycle_number)+1 over all cycles of
	// (userID, symbol), closed ones included.
	NextCycleNumber(ctx context.Context, userID int64, symbol string) (int, error)
	// Create inserts an open cycle and fills its ID and timestamps. It returns
	// ErrAlreadyOpen when another open cycle exists.
	Create(ctx context.Context, c *TradeCycle) error
	// RaiseHigh stores a strictly higher highest price and its stop. It
	// reports false when the row is closed or already higher.
	RaiseHigh(ctx context.Context, id int64, highest, tsl float64) (bool, error)
	// Close writes the exit of an open cycle, or returns ErrNotOpen.
	Close(ctx context.Context, c *TradeCycle) error
	// RecordObservation appends the trailing-stop audit row for a bar date,
	// once per (cycle, date).
	RecordObservation(ctx context.Context, cycleID int64, date market.Date, price float64, newHigh bool, tsl float64) error
	// List returns the cycles of a user, newest first, optionally for one
	// symbol.
	List(ctx context.Context, userID int64, symbol string) ([]TradeCycle, error)
	// ListOpen returns every open cycle of a user.
	ListOpen(ctx context.Context, userID int64) ([]TradeCycle, error)
}
