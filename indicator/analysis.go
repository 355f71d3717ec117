package indicator

import (
	"fmt"

	"rsi-cycle-tracker/market"
)

// ChartPoint is one bar of the analysis chart. RSI is nil during warm-up.
type ChartPoint struct {
	Date  market.Date `json:"date"`
	Close float64     `json:"close"`
	RSI   *float64    `json:"rsi"`
}

// DateRange spans the analysed bars.
type DateRange struct {
	Start market.Date `json:"start"`
	End   market.Date `json:"end"`
}

// Statistics summarises an analysis run.
type Statistics struct {
	CurrentPrice float64   `json:"current_price"`
	DateRange    DateRange `json:"date_range"`
	TotalSignals int       `json:"total_signals"`
	BuySignals   int       `json:"buy_signals"`
	SellSignals  int       `json:"sell_signals"`
	CurrentRSI   float64   `json:"current_rsi"`
	AvgRSI       float64   `json:"avg_rsi"`
}

// Interpretation documents the threshold semantics used for a run.
type Interpretation struct {
	RSIPeriod      int     `json:"rsi_period"`
	UpperThreshold float64 `json:"upper_threshold"`
	LowerThreshold float64 `json:"lower_threshold"`
	Note           string  `json:"note"`
}

// Analysis is the full RSI report for one symbol.
type Analysis struct {
	Symbol            string         `json:"symbol"`
	ChartData         []ChartPoint   `json:"chart_data"`
	Signals           []Signal       `json:"signals"`
	LatestSignal      Alert          `json:"latest_signal"`
	Statistics        Statistics     `json:"statistics"`
	RSIInterpretation Interpretation `json:"rsi_interpretation"`
}

// Analyze builds the report for bars ordered by date ascending.
func Analyze(symbol string, bars []market.PriceBar, t Thresholds) (*Analysis, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	series, err := ComputeRSI(market.Closes(bars), t.RSIPeriod)
	if err != nil {
		return nil, err
	}

	offset := len(bars) - len(series)
	chart := make([]ChartPoint, len(bars))
	for i, b := range bars {
		chart[i] = ChartPoint{Date: b.Date, Close: b.Close}
		if i >= offset {
			v := series[i-offset]
			chart[i].RSI = &v
		}
	}

	signals := signalsFrom(bars, series, t)
	stats := Statistics{
		CurrentPrice: bars[len(bars)-1].Close,
		DateRange:    DateRange{Start: bars[0].Date, End: bars[len(bars)-1].Date},
		TotalSignals: len(signals),
		CurrentRSI:   series[len(series)-1],
	}
	for _, s := range signals {
		if s.Type == SignalBuy {
			stats.BuySignals++
		} else {
			stats.SellSignals++
		}
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	stats.AvgRSI = sum / float64(len(series))

	return &Analysis{
		Symbol:       symbol,
		ChartData:    chart,
		Signals:      signals,
		LatestSignal: Latest(stats.CurrentRSI, t),
		Statistics:   stats,
		RSIInterpretation: Interpretation{
			RSIPeriod:      t.RSIPeriod,
			UpperThreshold: t.UpperThreshold,
			LowerThreshold: t.LowerThreshold,
			Note: fmt.Sprintf("RSI >= %g = BUY (strong momentum), RSI <= %g = SELL (weak momentum)",
				t.UpperThreshold, t.LowerThreshold),
		},
	}, nil
}
