package cycle

import "errors"

var (
	// ErrAlreadyOpen is returned when opening a cycle for a (user, symbol)
	// that already has one open.
	ErrAlreadyOpen = errors.New("an open cycle already exists for this symbol")
	// ErrNotOpen is returned when closing a cycle that is closed or missing.
	ErrNotOpen = errors.New("no open cycle for this symbol")
	// ErrNotEligible is returned when a buy is attempted without a BUY signal
	// or outside the turnover top list.
	ErrNotEligible = errors.New("symbol is not eligible for buying")
	// ErrReasonRequired is returned for a manual close without a reason.
	ErrReasonRequired = errors.New("a reason is required for manual sells")
	// ErrConfirmationMismatch is returned when the confirmation phrase does not
	// match.
	ErrConfirmationMismatch = errors.New("confirmation text does not match")
)

// IsConflict reports state conflicts that are safe to retry after re-reading.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) || errors.Is(err, ErrNotOpen)
}
