package market

import (
	"context"
	"sort"
	"sync"
)

// MemorySource is an in-process Source, used by tests and by the CSV import
// dry run.
type MemorySource struct {
	mu   sync.RWMutex
	bars map[string][]PriceBar
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{bars: make(map[string][]PriceBar)}
}

// Add appends bars, keeping each symbol ordered by date and replacing a bar
// that already exists for the same date.
func (m *MemorySource) Add(bars ...PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bars {
		series := m.bars[b.Symbol]
		replaced := false
		for i := range series {
			if series[i].Date.Equal(b.Date) {
				series[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, b)
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		m.bars[b.Symbol] = series
	}
}

// Symbols implements Source.
func (m *MemorySource) Symbols(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.bars))
	for s := range m.bars {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// History implements Source.
func (m *MemorySource) History(ctx context.Context, symbol string) ([]PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series, ok := m.bars[symbol]
	if !ok {
		return nil, UnknownSymbol(symbol)
	}
	out := make([]PriceBar, len(series))
	copy(out, series)
	return out, nil
}

// LatestSession implements Source.
func (m *MemorySource) LatestSession(ctx context.Context) ([]PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest Date
	for _, series := range m.bars {
		if n := len(series); n > 0 && series[n-1].Date.After(latest) {
			latest = series[n-1].Date
		}
	}

	var session []PriceBar
	for _, series := range m.bars {
		if n := len(series); n > 0 && series[n-1].Date.Equal(latest) {
			session = append(session, series[n-1])
		}
	}
	sort.Slice(session, func(i, j int) bool { return session[i].Symbol < session[j].Symbol })
	return session, nil
}
