package api

import (
	"errors"
	"net/http"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
	"rsi-cycle-tracker/scanner"
	"rsi-cycle-tracker/settings"
)

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.deps.Source.Symbols(r.Context())
	if err != nil {
		s.respondError(w, r, apperr.Upstream("price_source.symbols", err))
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"total":   len(symbols),
	})
}

type scannerResponse struct {
	Symbols    []scanner.ScanResult `json:"symbols"`
	Summary    scanner.Summary      `json:"summary"`
	Thresholds indicator.Thresholds `json:"thresholds"`
	ScanDate   market.Date          `json:"scan_date"`
}

func (s *Server) handleScanner(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	q := r.URL.Query()

	filter, err := scanner.ParseFilter(q.Get("filter"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sortKey, err := scanner.ParseSort(q.Get("sort"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	t, err := s.deps.Settings.Resolve(r.Context(), user.ID, settings.Override{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.deps.Scanner.Scan(r.Context(), user.ID, t, scanner.Options{Filter: filter, Sort: sortKey})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rows := res.Symbols
	if rows == nil {
		rows = []scanner.ScanResult{}
	}
	respondJSON(w, http.StatusOK, scannerResponse{
		Symbols:    rows,
		Summary:    res.Summary,
		Thresholds: t,
		ScanDate:   res.ScanDate,
	})
}

type analyzeRequest struct {
	Symbol string `json:"symbol"`
	settings.Override
}

type analyzeResponse struct {
	Success    bool                 `json:"success"`
	Thresholds indicator.Thresholds `json:"thresholds"`
	*indicator.Analysis
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		s.respondError(w, r, apperr.NewValidationError("symbol", "is required"))
		return
	}

	t, err := s.deps.Settings.Resolve(r.Context(), user.ID, req.Override)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	bars, err := s.deps.Source.History(r.Context(), symbol)
	if err != nil {
		if !errors.Is(err, market.ErrUnknownSymbol) {
			err = apperr.Upstream("price_source.history", err)
		}
		s.respondError(w, r, err)
		return
	}
	analysis, err := indicator.Analyze(symbol, bars, t)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analyzeResponse{Success: true, Thresholds: t, Analysis: analysis})
}
