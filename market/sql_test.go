package market

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newSQLiteSource(t *testing.T, limit int) *SQLSource {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			date DATE NOT NULL,
			close_price REAL NOT NULL,
			turnover REAL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}

	rows := []struct {
		symbol   string
		date     string
		close    float64
		turnover interface{}
	}{
		{"NABIL", "2026-01-01", 100, 5000},
		{"NABIL", "2026-01-02", 101, 6000},
		{"NABIL", "2026-01-03", 102, 7000},
		{"ADBL", "2026-01-02", 300, nil},
		{"ADBL", "2026-01-03", 301, 9000},
		{"STALE", "2026-01-01", 50, 100},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO price_history (symbol, date, close_price, turnover) VALUES (?, ?, ?, ?)`,
			r.symbol, r.date, r.close, r.turnover); err != nil {
			t.Fatal(err)
		}
	}
	return NewSQLSource(db, "sqlite3", limit)
}

func TestSQLSource(t *testing.T) {
	ctx := context.Background()
	src := newSQLiteSource(t, 0)

	symbols, err := src.Symbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 3 || symbols[0] != "ADBL" {
		t.Errorf("Symbols() = %v", symbols)
	}

	bars, err := src.History(ctx, "NABIL")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 || bars[0].Date.String() != "2026-01-01" || bars[2].Close != 102 {
		t.Errorf("History() = %+v", bars)
	}

	adbl, _ := src.History(ctx, "ADBL")
	if adbl[0].Turnover != 0 {
		t.Errorf("NULL turnover should read as 0, got %v", adbl[0].Turnover)
	}

	if _, err := src.History(ctx, "NOPE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}

	session, err := src.LatestSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(session) != 2 || session[0].Symbol != "ADBL" || session[1].Symbol != "NABIL" {
		t.Errorf("LatestSession() = %+v", session)
	}
}

func TestSQLSource_HistoryLimit(t *testing.T) {
	src := newSQLiteSource(t, 2)
	bars, err := src.History(context.Background(), "NABIL")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[0].Date.String() != "2026-01-02" || bars[1].Date.String() != "2026-01-03" {
		t.Errorf("History() = %+v", bars)
	}
}

func TestRebind(t *testing.T) {
	s := &SQLSource{driver: "sqlite3"}
	if got := s.rebind("a = $1 AND b = $12 AND c = '$x'"); got != "a = ? AND b = ? AND c = '$x'" {
		t.Errorf("rebind = %q", got)
	}
	pg := &SQLSource{driver: "postgres"}
	if got := pg.rebind("a = $1"); got != "a = $1" {
		t.Errorf("postgres rebind = %q", got)
	}
}
