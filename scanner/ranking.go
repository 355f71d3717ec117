package scanner

import (
	"sort"

	"rsi-cycle-tracker/market"
)

// DefaultTopN is the number of symbols eligible for new buys.
const DefaultTopN = 15

// Ranking maps a symbol to its 1-based turnover rank on one trading date.
type Ranking struct {
	Date     market.Date
	ranks    map[string]int
	turnover map[string]float64
}

// RankTurnover ranks the bars dated on the latest date among bars by
// turnover, highest first. Ties are broken by symbol name.
func RankTurnover(bars []market.PriceBar) Ranking {
	latest := market.LatestDate(bars)
	day := make([]market.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Date.Equal(latest) {
			day = append(day, b)
		}
	}
	sort.Slice(day, func(i, j int) bool {
		if day[i].Turnover != day[j].Turnover {
			return day[i].Turnover > day[j].Turnover
		}
		return day[i].Symbol < day[j].Symbol
	})

	r := Ranking{
		Date:     latest,
		ranks:    make(map[string]int, len(day)),
		turnover: make(map[string]float64, len(day)),
	}
	for _, b := range day {
		if _, dup := r.ranks[b.Symbol]; dup {
			continue
		}
		r.ranks[b.Symbol] = len(r.ranks) + 1
		r.turnover[b.Symbol] = b.Turnover
	}
	return r
}

// Rank returns the symbol's rank, or 0 when it has no bar on the ranking date.
func (r Ranking) Rank(symbol string) int {
	return r.ranks[symbol]
}

// Turnover returns the symbol's turnover on the ranking date.
func (r Ranking) Turnover(symbol string) (float64, bool) {
	t, ok := r.turnover[symbol]
	return t, ok
}

// Eligible reports whether the symbol ranks within the top n.
func (r Ranking) Eligible(symbol string, n int) bool {
	rank := r.ranks[symbol]
	return rank > 0 && rank <= n
}
