package settings

import (
	"context"
	"testing"

	"rsi-cycle-tracker/database"
)

func newTestRepo(t *testing.T, defaults []database.GlobalSetting) *Repository {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewSchemaRepository(db, nil).InitSchema(defaults); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewRepository(db.DB())
}

var seed = []database.GlobalSetting{
	{Key: "default_rsi_period", Value: "14", Description: "RSI period"},
	{Key: "default_upper_threshold", Value: "70", Description: "Upper threshold"},
}

func TestRepository_Globals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, seed)

	rows, err := repo.Globals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Key != "default_rsi_period" || rows[0].UpdatedAt.IsZero() {
		t.Fatalf("Globals = %+v", rows)
	}

	updated, err := repo.SetGlobal(ctx, "default_rsi_period", "21")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Value != "21" || updated.UpdatedAt.Before(rows[0].UpdatedAt) {
		t.Errorf("SetGlobal = %+v", updated)
	}

	if _, err := repo.SetGlobal(ctx, "unknown", "1"); !database.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestRepository_SeedKeepsExistingValues(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	schema := database.NewSchemaRepository(db, nil)
	if err := schema.InitSchema(seed); err != nil {
		t.Fatal(err)
	}
	repo := NewRepository(db.DB())
	repo.SetGlobal(ctx, "default_rsi_period", "9")

	// running migrations again must not reset admin changes
	if err := schema.InitSchema(seed); err != nil {
		t.Fatal(err)
	}
	rows, _ := repo.Globals(ctx)
	if rows[0].Value != "9" {
		t.Errorf("seed overwrote value: %+v", rows[0])
	}
}

func TestRepository_UserOverrides(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, seed)

	if err := repo.SetUserOverrides(ctx, 1, map[string]string{"rsi_period": "10", "upper_threshold": "75"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetUserOverrides(ctx, 1, map[string]string{"rsi_period": "12"}); err != nil {
		t.Fatal(err)
	}

	rows, err := repo.UserOverrides(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]string{}
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	if len(values) != 2 || values["rsi_period"] != "12" || values["upper_threshold"] != "75" {
		t.Errorf("overrides = %v", values)
	}

	if others, _ := repo.UserOverrides(ctx, 2); len(others) != 0 {
		t.Errorf("user 2 overrides = %+v", others)
	}

	repo.ClearUserOverrides(ctx, 1)
	if rows, _ := repo.UserOverrides(ctx, 1); len(rows) != 0 {
		t.Errorf("overrides not cleared: %+v", rows)
	}
}
