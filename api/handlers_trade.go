package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/helpers"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
	"rsi-cycle-tracker/scanner"
	"rsi-cycle-tracker/settings"
)

const (
	actionBuy  = "BUY"
	actionSell = "SELL"
)

// barFields are the trade bar values of a request. Omitted values default
// to the symbol's latest bar.
type barFields struct {
	Date  market.Date `json:"date"`
	Price float64     `json:"price"`
	RSI   *float64    `json:"rsi"`
}

func (b barFields) complete() bool {
	return !b.Date.IsZero() && b.Price != 0 && b.RSI != nil
}

// withDefaults fills omitted values from row.
func (b barFields) withDefaults(row *scanner.ScanResult) barFields {
	if row == nil {
		return b
	}
	if b.Date.IsZero() {
		b.Date = row.Date
	}
	if b.Price == 0 {
		b.Price = row.CurrentPrice
	}
	if b.RSI == nil {
		rsi := row.CurrentRSI
		b.RSI = &rsi
	}
	return b
}

func (b barFields) rsi() float64 {
	if b.RSI == nil {
		return 0
	}
	return helpers.Round2(*b.RSI)
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Action string `json:"action"`
	barFields
}

type manualSellRequest struct {
	Symbol       string `json:"symbol"`
	Reason       string `json:"reason"`
	Confirmation string `json:"confirmation"`
	barFields
}

type tradeResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Cycle   *cycle.TradeCycle   `json:"cycle"`
	Scan    *scanner.ScanResult `json:"scan,omitempty"`
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	symbol := normalizeSymbol(r.PathValue("symbol"))

	list, err := s.deps.Cycles.History(r.Context(), user.ID, symbol)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []cycle.TradeCycle{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cycles": list})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	var req tradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if symbol == "" {
		s.respondError(w, r, apperr.NewValidationError("symbol", "is required"))
		return
	}
	if action != actionBuy && action != actionSell {
		s.respondError(w, r, apperr.NewValidationErrorWithValue("action", "must be BUY or SELL", req.Action))
		return
	}

	t, err := s.deps.Settings.Resolve(ctx, user.ID, settings.Override{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	row, err := s.deps.Scanner.Row(ctx, user.ID, symbol, t)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	bar := req.barFields.withDefaults(row)

	var (
		c       *cycle.TradeCycle
		message string
	)
	if action == actionBuy {
		c, err = s.deps.Cycles.Open(ctx, cycle.OpenRequest{
			UserID: user.ID,
			Symbol: symbol,
			Date:   bar.Date,
			Price:  bar.Price,
			RSI:    bar.rsi(),
		}, row.Eligibility())
		if err == nil {
			message = fmt.Sprintf("Opened %s cycle #%d at %s, trailing stop %s",
				symbol, c.CycleNumber, helpers.FormatNPR(c.BuyPrice), helpers.FormatNPR(c.TSLTriggerPrice))
		}
	} else {
		c, err = s.sell(ctx, user.ID, symbol, row, bar)
		if err == nil {
			message = closedMessage(c)
		}
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, tradeResponse{
		Success: true,
		Message: message,
		Cycle:   c,
		Scan:    s.refreshedRow(ctx, user.ID, symbol, t),
	})
}

// sell closes the open cycle when the bar qualifies for an automatic close:
// a SELL signal or a trailing stop breach at the requested price.
func (s *Server) sell(ctx context.Context, userID int64, symbol string, row *scanner.ScanResult, bar barFields) (*cycle.TradeCycle, error) {
	open, err := s.deps.Cycles.FindOpen(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, cycle.ErrNotOpen
	}
	req := cycle.CloseRequest{Date: bar.Date, Price: bar.Price, RSI: bar.rsi()}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	trigger, ok := cycle.ShouldAutoClose(row.RawSignal(), bar.Price, *open)
	if !ok {
		return nil, fmt.Errorf("no SELL signal and price above trailing stop %s: %w",
			helpers.FormatNPR(open.TSLTriggerPrice), cycle.ErrNotEligible)
	}
	closed, err := s.deps.Cycles.AutoClose(ctx, open, req, trigger)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.ObserveAutoClose(trigger)
	return closed, nil
}

func (s *Server) handleManualSell(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	var req manualSellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		s.respondError(w, r, apperr.NewValidationError("symbol", "is required"))
		return
	}
	if _, err := cycle.ValidateManualClose(req.Reason, req.Confirmation, s.deps.Cycles.Confirmation()); err != nil {
		s.respondError(w, r, err)
		return
	}

	t, err := s.deps.Settings.Resolve(ctx, user.ID, settings.Override{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	bar := req.barFields
	if !bar.complete() {
		row, err := s.deps.Scanner.Row(ctx, user.ID, symbol, t)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		bar = bar.withDefaults(row)
	}

	c, err := s.deps.Cycles.ManualClose(ctx, user.ID, symbol, cycle.CloseRequest{
		Date:  bar.Date,
		Price: bar.Price,
		RSI:   bar.rsi(),
	}, req.Reason, req.Confirmation)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, tradeResponse{
		Success: true,
		Message: closedMessage(c),
		Cycle:   c,
		Scan:    s.refreshedRow(ctx, user.ID, symbol, t),
	})
}

// refreshedRow re-evaluates the symbol after a committed trade. A failure
// here does not undo the trade, so it is logged and the row omitted.
func (s *Server) refreshedRow(ctx context.Context, userID int64, symbol string, t indicator.Thresholds) *scanner.ScanResult {
	row, err := s.deps.Scanner.Row(ctx, userID, symbol, t)
	if err != nil {
		s.log.Warn("⚠️ Failed to refresh scan row", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	return row
}

func closedMessage(c *cycle.TradeCycle) string {
	if c.Exit == nil {
		return fmt.Sprintf("%s cycle #%d closed", c.Symbol, c.CycleNumber)
	}
	return fmt.Sprintf("Closed %s cycle #%d at %s: P/L %s (%+.2f%%)",
		c.Symbol, c.CycleNumber, helpers.FormatNPR(c.SellPrice), helpers.FormatNPR(c.ProfitLoss), c.ProfitLossPercent)
}
