package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadFile_OverlaysOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
database:
  driver: sqlite
  path: /tmp/tracker.db
scanner:
  top_n: 10
  symbols: [NABIL, NICA]
price_source:
  timeout: 2s
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "/tmp/tracker.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Scanner.TopN != 10 || cfg.Scanner.Workers != 8 || !cfg.Scanner.AutoClose {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
	if !reflect.DeepEqual(cfg.Scanner.Symbols, []string{"NABIL", "NICA"}) {
		t.Errorf("symbols = %v", cfg.Scanner.Symbols)
	}
	if cfg.PriceSource.Timeout != 2*time.Second || cfg.PriceSource.Retries != 3 {
		t.Errorf("price source = %+v", cfg.PriceSource)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_TIMEOUT", "750ms")
	t.Setenv("ADMIN_EMAILS", "a@x.io, b@x.io,,")
	t.Setenv("SCANNER_AUTO_CLOSE", "false")
	t.Setenv("MANUAL_SELL_CONFIRMATION", "CONFIRM")
	t.Setenv("SCANNER_WORKERS", "not-a-number")

	cfg := Defaults()
	cfg.applyEnv()

	if cfg.Database.Driver != "sqlite" || cfg.Server.Addr != ":9090" {
		t.Errorf("driver/addr = %s %s", cfg.Database.Driver, cfg.Server.Addr)
	}
	if cfg.PriceSource.Timeout != 750*time.Millisecond {
		t.Errorf("timeout = %v", cfg.PriceSource.Timeout)
	}
	if !reflect.DeepEqual(cfg.Auth.AdminEmails, []string{"a@x.io", "b@x.io"}) {
		t.Errorf("admin emails = %v", cfg.Auth.AdminEmails)
	}
	if cfg.Scanner.AutoClose || cfg.Scanner.Workers != 8 {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
	if cfg.Cycle.Confirmation != "CONFIRM" {
		t.Errorf("confirmation = %q", cfg.Cycle.Confirmation)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Auth.JWTSecret = "0123456789abcdef"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with secret", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"price db without dsn", func(c *Config) { c.PriceSource.Driver = "postgres" }, true},
		{"price db with dsn", func(c *Config) { c.PriceSource.Driver = "sqlite3"; c.PriceSource.DSN = "prices.db" }, false},
		{"blank confirmation", func(c *Config) { c.Cycle.Confirmation = "  " }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
