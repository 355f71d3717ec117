// Package scanner evaluates every tracked symbol for a user: the latest RSI
// signal, the turnover buy gate and the state of any open cycle.
package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/helpers"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
	"rsi-cycle-tracker/metrics"
)

// Filter selects the rows returned by a scan.
type Filter string

const (
	FilterAll      Filter = "ALL"
	FilterHoldings Filter = "HOLDINGS"
	FilterBuy      Filter = "BUY"
	FilterSell     Filter = "SELL"
	FilterNeutral  Filter = "NEUTRAL"
)

// SortKey orders the rows returned by a scan.
type SortKey string

const (
	SortTurnover SortKey = "turnover"
	SortRSI      SortKey = "rsi"
	SortSymbol   SortKey = "symbol"
)

// ParseFilter parses a filter name; empty means ALL.
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHoldings, FilterBuy, FilterSell, FilterNeutral:
		return f, nil
	}
	return "", apperr.NewValidationErrorWithValue("filter", "must be one of ALL, HOLDINGS, BUY, SELL, NEUTRAL", s)
}

// ParseSort parses a sort key; empty means turnover.
func ParseSort(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return SortTurnover, nil
	case SortTurnover, SortRSI, SortSymbol:
		return k, nil
	}
	return "", apperr.NewValidationErrorWithValue("sort", "must be one of turnover, rsi, symbol", s)
}

// OpenCycleView is the open cycle attached to a scan row.
type OpenCycleView struct {
	CycleNumber   int         `json:"cycle_number"`
	BuyDate       market.Date `json:"buy_date"`
	BuyPrice      float64     `json:"buy_price"`
	HighestPrice  float64     `json:"highest_price"`
	TSLPrice      float64     `json:"tsl_price"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
}

// ScanResult is one symbol's row.
type ScanResult struct {
	Symbol       string                `json:"symbol"`
	Date         market.Date           `json:"date"`
	CurrentPrice float64               `json:"current_price"`
	CurrentRSI   float64               `json:"current_rsi"`
	Signal       indicator.SignalClass `json:"signal"`
	SignalClass  string                `json:"signal_class"`
	HasOpenCycle bool                  `json:"has_open_cycle"`
	CanBuy       bool                  `json:"can_buy"`
	Turnover     float64               `json:"turnover"`
	TurnoverRank int                   `json:"turnover_rank,omitempty"`
	OpenCycle    *OpenCycleView        `json:"open_cycle,omitempty"`
	AutoClosed   *cycle.TradeCycle     `json:"auto_closed,omitempty"`
	Error        string                `json:"error,omitempty"`

	rsi float64
	err error
}

// RawSignal returns the classification before HOLD was applied.
func (r ScanResult) RawSignal() indicator.SignalClass {
	if r.Signal == indicator.SignalHold {
		return indicator.SignalNeutral
	}
	return r.Signal
}

// Eligibility returns the buy gate for the row.
func (r ScanResult) Eligibility() cycle.Eligibility {
	return cycle.Eligibility{Signal: r.RawSignal(), CanBuy: r.CanBuy}
}

// Summary counts rows across the whole scan, regardless of filter.
type Summary struct {
	TotalSymbols   int `json:"total_symbols"`
	BuySignals     int `json:"buy_signals"`
	SellSignals    int `json:"sell_signals"`
	NeutralSignals int `json:"neutral_signals"`
	OpenPositions  int `json:"open_positions"`
	Errors         int `json:"errors"`
}

// Result is the output of Scan.
type Result struct {
	Symbols  []ScanResult `json:"symbols"`
	Summary  Summary      `json:"summary"`
	ScanDate market.Date  `json:"scan_date"`
}

// Options are per-request scan knobs.
type Options struct {
	Filter Filter
	Sort   SortKey
}

// Config tunes a Scanner.
type Config struct {
	// TopN is the size of the turnover buy gate.
	TopN int
	// Workers bounds the symbols evaluated concurrently.
	Workers int
	// AutoClose closes open cycles on a SELL signal or a trailing stop breach.
	AutoClose bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TopN: DefaultTopN, Workers: 8, AutoClose: true}
}

// Scanner aggregates signals and cycle state across all symbols.
type Scanner struct {
	source  market.Source
	manager *cycle.Manager
	metrics *metrics.Metrics
	cfg     Config
	log     *zap.Logger
}

// New creates a Scanner. m may be nil.
func New(source market.Source, manager *cycle.Manager, m *metrics.Metrics, cfg Config, log *zap.Logger) *Scanner {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{source: source, manager: manager, metrics: m, cfg: cfg, log: log}
}

// Scan evaluates every symbol for userID. Open cycles are observed and, when
// configured, closed automatically. A symbol that cannot be evaluated gets a
// row with Error set; an upstream failure fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, userID int64, t indicator.Thresholds, opts Options) (*Result, error) {
	start := time.Now()
	res, rowErrors, err := s.scan(ctx, userID, t, opts)
	total := 0
	if res != nil {
		total = res.Summary.TotalSymbols
	}
	s.metrics.ObserveScan(time.Since(start), total, rowErrors, err)
	if err != nil {
		return nil, err
	}
	s.log.Debug("🔍 Scan completed",
		zap.Int64("user_id", userID),
		zap.Int("symbols", total),
		zap.Int("errors", rowErrors),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (s *Scanner) scan(ctx context.Context, userID int64, t indicator.Thresholds, opts Options) (*Result, int, error) {
	if err := t.Validate(); err != nil {
		return nil, 0, err
	}
	if opts.Filter == "" {
		opts.Filter = FilterAll
	}
	if opts.Sort == "" {
		opts.Sort = SortTurnover
	}

	symbols, err := s.source.Symbols(ctx)
	if err != nil {
		return nil, 0, apperr.Upstream("price_source.symbols", err)
	}
	ranking, err := s.ranking(ctx)
	if err != nil {
		return nil, 0, err
	}
	open, err := s.manager.OpenCycles(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]ScanResult, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			row, err := s.evaluate(gctx, symbol, t, ranking, open[symbol], true)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	res := &Result{Summary: Summarize(rows), ScanDate: ranking.Date}
	res.Symbols = Apply(rows, opts)
	return res, res.Summary.Errors, nil
}

// Row evaluates a single symbol without mutating any cycle. Trade requests
// use it for the buy gate and for the refreshed row in their response.
func (s *Scanner) Row(ctx context.Context, userID int64, symbol string, t indicator.Thresholds) (*ScanResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ranking, err := s.ranking(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.manager.FindOpen(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	row, err := s.evaluate(ctx, symbol, t, ranking, open, false)
	if err != nil {
		return nil, err
	}
	if row.err != nil {
		return nil, row.err
	}
	return &row, nil
}

func (s *Scanner) ranking(ctx context.Context) (Ranking, error) {
	latest, err := s.source.LatestSession(ctx)
	if err != nil {
		return Ranking{}, apperr.Upstream("price_source.latest_session", err)
	}
	return RankTurnover(latest), nil
}

// evaluate builds the row of one symbol. When mutate is set the open cycle
// is observed and may be closed; otherwise its view is computed in memory.
func (s *Scanner) evaluate(ctx context.Context, symbol string, t indicator.Thresholds, ranking Ranking, open *cycle.TradeCycle, mutate bool) (ScanResult, error) {
	row := ScanResult{
		Symbol:       symbol,
		TurnoverRank: ranking.Rank(symbol),
		CanBuy:       ranking.Eligible(symbol, s.cfg.TopN),
		HasOpenCycle: open != nil,
	}
	if turnover, ok := ranking.Turnover(symbol); ok {
		row.Turnover = turnover
	}

	bars, err := s.source.History(ctx, symbol)
	if err != nil {
		if errors.Is(err, market.ErrUnknownSymbol) {
			row.Error, row.err = err.Error(), err
			return row, nil
		}
		return row, apperr.Upstream("price_source.history", err)
	}
	reading, err := indicator.Evaluate(bars, t)
	if err != nil {
		var insufficient *indicator.InsufficientDataError
		if errors.As(err, &insufficient) {
			row.Error, row.err = err.Error(), err
			return row, nil
		}
		return row, err
	}

	row.Date = reading.Bar.Date
	row.CurrentPrice = reading.Bar.Close
	row.CurrentRSI = helpers.Round2(reading.RSI)
	row.Signal = reading.Class
	row.rsi = reading.RSI
	if _, ok := ranking.Turnover(symbol); !ok {
		row.Turnover = reading.Bar.Turnover
	}

	if open != nil {
		if err := s.track(ctx, &row, open, reading, mutate); err != nil {
			return row, err
		}
	}
	if row.HasOpenCycle && row.Signal == indicator.SignalNeutral {
		row.Signal = indicator.SignalHold
	}
	row.SignalClass = strings.ToLower(string(row.Signal))
	return row, nil
}

func (s *Scanner) track(ctx context.Context, row *ScanResult, c *cycle.TradeCycle, reading *indicator.Reading, mutate bool) error {
	var obs cycle.Observation
	if mutate {
		var err error
		obs, err = s.manager.Observe(ctx, c, reading.Bar)
		if err != nil {
			return err
		}
	} else {
		obs = cycle.Observe(*c, reading.Bar.Close)
	}

	if mutate && s.cfg.AutoClose {
		if trigger, ok := cycle.ShouldAutoClose(reading.Class, reading.Bar.Close, *c); ok {
			closed, err := s.manager.AutoClose(ctx, c, cycle.CloseRequest{
				Date:  reading.Bar.Date,
				Price: reading.Bar.Close,
				RSI:   helpers.Round2(reading.RSI),
			}, trigger)
			switch {
			case errors.Is(err, cycle.ErrNotOpen):
				// Closed by a concurrent request.
				row.HasOpenCycle = false
				return nil
			case err != nil:
				return err
			}
			s.metrics.ObserveAutoClose(trigger)
			row.HasOpenCycle = false
			row.AutoClosed = closed
			return nil
		}
	}

	row.OpenCycle = &OpenCycleView{
		CycleNumber:   c.CycleNumber,
		BuyDate:       c.BuyDate,
		BuyPrice:      c.BuyPrice,
		HighestPrice:  obs.HighestPrice,
		TSLPrice:      obs.TSLPrice,
		UnrealizedPnL: obs.UnrealizedPnL,
	}
	return nil
}

// Summarize counts rows. A BUY on a held symbol is not actionable and is
// counted only as an open position. Rows with an error are left out of the
// signal counts.
func Summarize(rows []ScanResult) Summary {
	sum := Summary{TotalSymbols: len(rows)}
	for _, r := range rows {
		if r.HasOpenCycle {
			sum.OpenPositions++
		}
		if r.Error != "" {
			sum.Errors++
			continue
		}
		switch r.Signal {
		case indicator.SignalBuy:
			if !r.HasOpenCycle {
				sum.BuySignals++
			}
		case indicator.SignalSell:
			sum.SellSignals++
		case indicator.SignalNeutral, indicator.SignalHold:
			sum.NeutralSignals++
		}
	}
	return sum
}

// Apply filters and sorts a copy of rows.
func Apply(rows []ScanResult, opts Options) []ScanResult {
	out := make([]ScanResult, 0, len(rows))
	for _, r := range rows {
		if matches(r, opts.Filter) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch opts.Sort {
		case SortRSI:
			if a.rsi != b.rsi {
				return a.rsi > b.rsi
			}
		case SortSymbol:
		default:
			if a.Turnover != b.Turnover {
				return a.Turnover > b.Turnover
			}
		}
		return a.Symbol < b.Symbol
	})
	return out
}

func matches(r ScanResult, f Filter) bool {
	switch f {
	case FilterHoldings:
		return r.HasOpenCycle
	case FilterBuy:
		return r.Signal == indicator.SignalBuy && !r.HasOpenCycle
	case FilterSell:
		return r.Signal == indicator.SignalSell
	case FilterNeutral:
		return r.Signal == indicator.SignalNeutral || r.Signal == indicator.SignalHold
	default:
		return true
	}
}
