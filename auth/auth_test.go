package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/database/users"
)

const testSecret = "test-secret-0123456789"

func newTokens(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := newTokens(t)
	token, expires, err := tm.Issue(42, "trader@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expiry in the past: %v", expires)
	}
	claims, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "trader@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := newTokens(t)
	token, _, _ := tm.Issue(42, "trader@example.com")

	other, _ := NewTokenManager("another-secret-0123456789", time.Hour)
	foreign, _, _ := other.Issue(42, "trader@example.com")

	expired := newTokens(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, _ := expired.Issue(42, "trader@example.com")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", stale},
		{"tampered", token + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.Parse(tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Parse = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestNewTokenManager_ShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", time.Hour); err == nil {
		t.Error("expected an error for a short secret")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"abc.def.ghi", "abc.def.ghi"},
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer  abc.def.ghi ", "abc.def.ghi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractToken(tt.header); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "s3cret!") || CheckPassword(hash, "wrong") {
		t.Error("CheckPassword mismatch")
	}
}

func newManager(t *testing.T, admins ...string) (*Manager, *users.Repository) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewSchemaRepository(db, nil).InitSchema(nil); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	repo := users.NewRepository(db.DB())
	return NewManager(repo, newTokens(t), admins, nil), repo
}

func TestManager_SignupLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	m, repo := newManager(t, "Boss@Example.com")

	sess, err := m.Signup(ctx, "trader@example.com", "password1")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if sess.Token == "" || sess.User.IsAdmin {
		t.Errorf("signup session = %+v", sess)
	}

	admin, err := m.Signup(ctx, "boss@example.com", "password1")
	if err != nil || !admin.User.IsAdmin {
		t.Fatalf("admin signup = %+v, %v", admin, err)
	}

	if _, err := m.Signup(ctx, "TRADER@example.com", "password1"); !apperr.IsValidation(err) {
		t.Errorf("duplicate signup: %v", err)
	}

	login, err := m.Login(ctx, "trader@example.com", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.LastLogin == nil {
		t.Error("last_login not stamped")
	}
	if _, err := m.Login(ctx, "trader@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := m.Login(ctx, "ghost@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", err)
	}

	user, err := m.Authenticate(ctx, login.Token)
	if err != nil || user.ID != sess.User.ID {
		t.Fatalf("Authenticate = %+v, %v", user, err)
	}

	// deactivation revokes existing tokens and blocks login
	if _, err := repo.ToggleActive(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Authenticate(ctx, login.Token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("deactivated Authenticate: %v", err)
	}
	if _, err := m.Login(ctx, "trader@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("deactivated Login: %v", err)
	}
}

func TestManager_SignupValidation(t *testing.T) {
	m, _ := newManager(t)
	tests := []struct {
		name, email, password string
	}{
		{"missing email", "", "password1"},
		{"missing password", "a@b.c", ""},
		{"bad format", "trader.example.com", "password1"},
		{"short password", "a@b.c", "123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Signup(context.Background(), tt.email, tt.password); !apperr.IsValidation(err) {
				t.Errorf("Signup = %v, want validation error", err)
			}
		})
	}
}
