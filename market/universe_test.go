package market

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestUniverse(t *testing.T) {
	ctx := context.Background()
	d := mustDate(t, "2026-01-05")
	src := NewMemorySource()
	src.Add(
		PriceBar{Symbol: "NABIL", Date: d, Close: 500, Turnover: 10},
		PriceBar{Symbol: "NICA", Date: d, Close: 400, Turnover: 20},
		PriceBar{Symbol: "HDL", Date: d, Close: 900, Turnover: 30},
	)

	if got := NewUniverse(src, nil); got != Source(src) {
		t.Error("empty universe should return the source unchanged")
	}

	u := NewUniverse(src, []string{" nica", "NABIL", "MISSING"})
	symbols, err := u.Symbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(symbols, []string{"NABIL", "NICA"}) {
		t.Errorf("Symbols = %v", symbols)
	}

	if _, err := u.History(ctx, "HDL"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("History(HDL) = %v, want ErrUnknownSymbol", err)
	}
	if bars, err := u.History(ctx, "NICA"); err != nil || len(bars) != 1 {
		t.Errorf("History(NICA) = %v, %v", bars, err)
	}

	session, err := u.LatestSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(session) != 2 {
		t.Errorf("LatestSession kept %d bars, want 2", len(session))
	}
}
