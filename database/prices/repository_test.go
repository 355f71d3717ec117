package prices

import (
	"context"
	"strings"
	"testing"

	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/market"
)

const csvInput = `Symbol,Date,Open,High,Low,Close,Turnover
NABIL,01/01/2026,500,510,495,505,"1,000,000"
NABIL,02/01/2026,505,520,500,515,"2,000,000"
ADBL,02/01/2026,300,305,298,302,"500,000"
`

func TestRepository_UpsertAndReadBack(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := database.NewSchemaRepository(db, nil).InitSchema(nil); err != nil {
		t.Fatal(err)
	}

	rows, err := market.ParseCSV(strings.NewReader(csvInput))
	if err != nil {
		t.Fatal(err)
	}
	repo := NewRepository(db.DB())
	if _, err := repo.Upsert(ctx, rows, 2); err != nil {
		t.Fatal(err)
	}

	// re-importing a corrected bar replaces it
	fix := rows[1]
	fix.Close = 517
	if _, err := repo.Upsert(ctx, []market.ImportRow{fix}, 0); err != nil {
		t.Fatal(err)
	}
	if n, _ := repo.Count(ctx); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	sqlDB, err := db.DB().DB()
	if err != nil {
		t.Fatal(err)
	}
	src := market.NewSQLSource(sqlDB, "sqlite3", 0)

	bars, err := src.History(ctx, "NABIL")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[0].Date.String() != "2026-01-01" || bars[1].Close != 517 || bars[1].Turnover != 2000000 {
		t.Errorf("History = %+v", bars)
	}

	session, err := src.LatestSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(session) != 2 || session[0].Symbol != "ADBL" {
		t.Errorf("LatestSession = %+v", session)
	}
}
