// Package indicator computes Wilder's RSI over daily closes and classifies
// the readings into trading signals. Everything here is pure: the same
// closes and thresholds always yield bit-identical output.
package indicator

import (
	"fmt"

	"rsi-cycle-tracker/apperr"
)

// MinPeriod is the smallest accepted RSI period.
const MinPeriod = 2

// InsufficientDataError is returned when a series is too short for the
// requested period.
type InsufficientDataError struct {
	Period   int
	Required int
	Got      int
}

// Error implements the error interface
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: RSI(%d) needs at least %d bars, got %d", e.Period, e.Required, e.Got)
}

// MinBars returns the number of bars needed to produce one RSI value.
func MinBars(period int) int {
	return period + 1
}

// ComputeRSI returns Wilder's RSI for closes. The first average gain/loss is
// the simple mean of the first period deltas; later averages are smoothed
// as (prev*(period-1)+value)/period. The result has len(closes)-period
// values, where out[i] belongs to closes[period+i]. A window without losses
// reads 100.
func ComputeRSI(closes []float64, period int) ([]float64, error) {
	if period < MinPeriod {
		return nil, apperr.NewValidationErrorWithValue("rsi_period", fmt.Sprintf("must be at least %d", MinPeriod), period)
	}
	if len(closes) < MinBars(period) {
		return nil, &InsufficientDataError{Period: period, Required: MinBars(period), Got: len(closes)}
	}

	p := float64(period)
	out := make([]float64, 0, len(closes)-period)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p
	out = append(out, rsiFrom(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, rsiFrom(avgGain, avgLoss))
	}

	return out, nil
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
