package cli

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"rsi-cycle-tracker/database/prices"
	"rsi-cycle-tracker/database/users"
)

const sampleCSV = `Symbol,Date,Open,High,Low,Close,Turnover
NABIL,2026-01-01,500,510,495,505,"1,000,000"
NABIL,2026-01-02,505,512,500,510,900000
HDL,01/01/2026,1200,1210,1190,1205,250000
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "tracker.db"))
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_ENABLED", "false")
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "rsi-tracker version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestImportPrices_DryRun(t *testing.T) {
	out, err := run(t, "import-prices", "--dry-run", writeCSV(t))
	if err != nil {
		t.Fatalf("import-prices: %v", err)
	}
	for _, want := range []string{"3 rows, 2 symbols", "NABIL", "HDL", "2026-01-02"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestImportPrices_WritesAndReplaces(t *testing.T) {
	useTempStore(t)
	path := writeCSV(t)

	for i := 0; i < 2; i++ {
		if out, err := run(t, "import-prices", "--batch-size", "2", path); err != nil {
			t.Fatalf("import-prices run %d: %v\n%s", i, err, out)
		}
	}

	_, db, log, err := openStore()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	defer log.Sync()

	n, err := prices.NewRepository(db.DB()).Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("stored bars = %d, want 3 after re-import", n)
	}
}

func TestImportPrices_InvalidatesPriceCache(t *testing.T) {
	useTempStore(t)
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", host)
	t.Setenv("REDIS_PORT", port)

	stale := []string{"prices:symbols", "prices:latest_session", "prices:history:NABIL", "prices:history:HDL"}
	for _, key := range stale {
		if err := mr.Set(key, "[]"); err != nil {
			t.Fatal(err)
		}
	}
	if err := mr.Set("prices:history:UPPER", "[]"); err != nil {
		t.Fatal(err)
	}

	if out, err := run(t, "import-prices", writeCSV(t)); err != nil {
		t.Fatalf("import-prices: %v\n%s", err, out)
	}

	for _, key := range stale {
		if mr.Exists(key) {
			t.Errorf("%s still cached after import", key)
		}
	}
	if !mr.Exists("prices:history:UPPER") {
		t.Error("history of a symbol outside the file was dropped")
	}
}

func TestImportPrices_MissingFile(t *testing.T) {
	if _, err := run(t, "import-prices", filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMigrate(t *testing.T) {
	useTempStore(t)
	out, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Schema is up to date") {
		t.Errorf("output = %q", out)
	}
	// idempotent
	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	useTempStore(t)
	t.Setenv("ADMIN_PASSWORD", "")

	if _, err := run(t, "create-admin", "root@example.com", "--password", "123"); err == nil {
		t.Fatal("expected short password to be rejected")
	}

	out, err := run(t, "create-admin", "Root@Example.com", "--password", "secret123")
	if err != nil {
		t.Fatalf("create-admin: %v", err)
	}
	if !strings.Contains(out, "Created admin root@example.com") {
		t.Errorf("output = %q", out)
	}

	_, db, log, err := openStore()
	if err != nil {
		t.Fatal(err)
	}
	defer log.Sync()
	repo := users.NewRepository(db.DB())
	ctx := context.Background()

	user, err := repo.FindByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !user.IsAdmin || !user.IsActive {
		t.Errorf("user = %+v, want active admin", user)
	}

	if err := repo.SetAdmin(ctx, user.ID, false); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// existing accounts are promoted without a password
	out, err = run(t, "create-admin", "root@example.com")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !strings.Contains(out, "is now an admin") {
		t.Errorf("output = %q", out)
	}
}
