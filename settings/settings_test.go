package settings

import (
	"context"
	"testing"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/database"
	settingsrepo "rsi-cycle-tracker/database/settings"
	"rsi-cycle-tracker/indicator"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewSchemaRepository(db, nil).InitSchema(DefaultRows()); err != nil {
		t.Fatal(err)
	}
	return NewService(settingsrepo.NewRepository(db.DB()), nil)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestService_Defaults(t *testing.T) {
	s := newTestService(t)
	got, err := s.Defaults(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != indicator.DefaultThresholds {
		t.Errorf("Defaults = %+v", got)
	}
}

func TestService_ResolveOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.UpdateDefault(ctx, KeyRSIPeriod, "10"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateUserOverride(ctx, 1, Override{UpperThreshold: floatPtr(80)}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		userID int64
		req    Override
		want   indicator.Thresholds
	}{
		{"defaults only", 2, Override{}, indicator.Thresholds{RSIPeriod: 10, UpperThreshold: 70, LowerThreshold: 30}},
		{"user override", 1, Override{}, indicator.Thresholds{RSIPeriod: 10, UpperThreshold: 80, LowerThreshold: 30}},
		{"request wins", 1, Override{UpperThreshold: floatPtr(60), RSIPeriod: intPtr(5)}, indicator.Thresholds{RSIPeriod: 5, UpperThreshold: 60, LowerThreshold: 30}},
	}
	for _, tt := range tests {
		got, err := s.Resolve(ctx, tt.userID, tt.req)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: Resolve = %+v, want %+v", tt.name, got, tt.want)
		}
	}

	if _, err := s.Resolve(ctx, 1, Override{LowerThreshold: floatPtr(55)}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError for invalid request, got %v", err)
	}
}

func TestService_UpdateDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{KeyUpperThreshold, "75", false},
		{KeyUpperThreshold, "75.5", true},
		{KeyUpperThreshold, "abc", true},
		{KeyUpperThreshold, "101", true},
		{KeyLowerThreshold, "60", true},
		{KeyRSIPeriod, "1", true},
		{"default_tsl_percent", "5", true},
	}
	for _, tt := range tests {
		_, err := s.UpdateDefault(ctx, tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("UpdateDefault(%s, %s) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
		if err != nil && !apperr.IsValidation(err) {
			t.Errorf("UpdateDefault(%s, %s): expected ValidationError, got %T", tt.key, tt.value, err)
		}
	}

	rows, err := s.ListDefaults(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rows[KeyUpperThreshold].Value != "75" || rows[KeyLowerThreshold].Value != "30" {
		t.Errorf("defaults = %+v", rows)
	}
}

func TestService_UserOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, err := s.UpdateUserOverride(ctx, 1, Override{LowerThreshold: floatPtr(80)}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	got, err := s.UpdateUserOverride(ctx, 1, Override{RSIPeriod: intPtr(7), LowerThreshold: floatPtr(25)})
	if err != nil {
		t.Fatal(err)
	}
	if got.RSIPeriod != 7 || got.LowerThreshold != 25 || got.UpperThreshold != 70 {
		t.Errorf("UpdateUserOverride = %+v", got)
	}

	o, _ := s.UserOverride(ctx, 1)
	if o.RSIPeriod == nil || *o.RSIPeriod != 7 || o.UpperThreshold != nil {
		t.Errorf("UserOverride = %+v", o)
	}

	got, err = s.UpdateUserOverride(ctx, 1, Override{})
	if err != nil {
		t.Fatal(err)
	}
	if got != indicator.DefaultThresholds {
		t.Errorf("clearing overrides = %+v", got)
	}
}
