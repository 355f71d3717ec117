package market

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLSource reads bars from the price_history table maintained by the
// ingestion pipeline. Works against PostgreSQL (lib/pq) and SQLite
// (mattn/go-sqlite3).
type SQLSource struct {
	db           *sql.DB
	driver       string
	historyLimit int
}

// NewSQLSource creates a source over an open pool. historyLimit caps the
// number of most recent bars returned per symbol; 0 returns everything.
func NewSQLSource(db *sql.DB, driver string, historyLimit int) *SQLSource {
	return &SQLSource{db: db, driver: driver, historyLimit: historyLimit}
}

// Symbols implements Source.
func (s *SQLSource) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM price_history ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("Symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("Symbols: scan: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Symbols: %w", err)
	}
	return symbols, nil
}

// History implements Source.
func (s *SQLSource) History(ctx context.Context, symbol string) ([]PriceBar, error) {
	query := `SELECT symbol, date, close_price, turnover FROM price_history WHERE symbol = $1 ORDER BY date ASC`
	args := []interface{}{symbol}
	if s.historyLimit > 0 {
		query = `SELECT symbol, date, close_price, turnover FROM (
			SELECT symbol, date, close_price, turnover FROM price_history
			WHERE symbol = $1 ORDER BY date DESC LIMIT $2
		) recent ORDER BY date ASC`
		args = append(args, s.historyLimit)
	}

	bars, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("History(%s): %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, UnknownSymbol(symbol)
	}
	return bars, nil
}

// LatestSession implements Source.
func (s *SQLSource) LatestSession(ctx context.Context) ([]PriceBar, error) {
	bars, err := s.query(ctx, `SELECT symbol, date, close_price, turnover FROM price_history
		WHERE date = (SELECT MAX(date) FROM price_history)
		ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("LatestSession: %w", err)
	}
	return bars, nil
}

func (s *SQLSource) query(ctx context.Context, query string, args ...interface{}) ([]PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []PriceBar
	for rows.Next() {
		var (
			b        PriceBar
			date     time.Time
			turnover sql.NullFloat64
		)
		if err := rows.Scan(&b.Symbol, &date, &b.Close, &turnover); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		b.Date = NewDate(date)
		b.Turnover = turnover.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// rebind rewrites $n placeholders to ? for SQLite.
func (s *SQLSource) rebind(query string) string {
	if s.driver != "sqlite3" {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
				b.WriteByte('?')
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
