package market

import (
	"context"
	"sort"
	"strings"
)

// Universe restricts a Source to a fixed set of symbols.
type Universe struct {
	next    Source
	members map[string]bool
}

// NewUniverse wraps next. An empty symbol list returns next unchanged.
func NewUniverse(next Source, symbols []string) Source {
	if len(symbols) == 0 {
		return next
	}
	members := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			members[s] = true
		}
	}
	return &Universe{next: next, members: members}
}

// Symbols implements Source.
func (u *Universe) Symbols(ctx context.Context) ([]string, error) {
	all, err := u.next.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(u.members))
	for _, s := range all {
		if u.members[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// History implements Source.
func (u *Universe) History(ctx context.Context, symbol string) ([]PriceBar, error) {
	if !u.members[symbol] {
		return nil, UnknownSymbol(symbol)
	}
	return u.next.History(ctx, symbol)
}

// LatestSession implements Source. Bars of symbols outside the universe are
// dropped, so turnover ranks only count members.
func (u *Universe) LatestSession(ctx context.Context) ([]PriceBar, error) {
	bars, err := u.next.LatestSession(ctx)
	if err != nil {
		return nil, err
	}
	out := bars[:0:0]
	for _, b := range bars {
		if u.members[b.Symbol] {
			out = append(out, b)
		}
	}
	return out, nil
}
