package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/database"
	models "rsi-cycle-tracker/database/models_pkg"
	"rsi-cycle-tracker/database/users"
)

// ErrInvalidCredentials is returned by Login for an unknown email, a wrong
// password or a deactivated account alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore is the subset of the users repository the Manager needs.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string, isAdmin bool) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Session is the result of a signup or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// Manager handles signup, login and per-request authentication.
type Manager struct {
	users  UserStore
	tokens *TokenManager
	admins map[string]bool
	log    *zap.Logger
}

// NewManager creates a Manager. Signups from adminEmails become admins.
func NewManager(store UserStore, tokens *TokenManager, adminEmails []string, log *zap.Logger) *Manager {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = users.NormalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{users: store, tokens: tokens, admins: admins, log: log}
}

// Signup registers an account and logs it in.
func (m *Manager) Signup(ctx context.Context, email, password string) (*Session, error) {
	email = users.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.NewValidationError("email", "email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.NewValidationErrorWithValue("email", "invalid email format", email)
	}
	if len(password) < MinPasswordLength {
		return nil, apperr.NewValidationError("password", "must be at least 6 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := m.users.Create(ctx, email, hash, m.admins[email])
	if errors.Is(err, users.ErrEmailTaken) {
		return nil, apperr.NewValidationError("email", "email already registered")
	}
	if err != nil {
		return nil, apperr.Upstream("users.create", err)
	}

	m.log.Info("👤 User signed up", zap.Int64("user_id", user.ID), zap.Bool("is_admin", user.IsAdmin))
	return m.session(user)
}

// Login checks credentials and issues a token.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.NewValidationError("email", "email and password are required")
	}

	user, err := m.users.FindByEmail(ctx, email)
	if database.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Upstream("users.find", err)
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := m.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		m.log.Warn("⚠️ Failed to stamp last login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}
	return m.session(user)
}

// Authenticate resolves the user of a bearer token. Unknown, invalid,
// expired and deactivated credentials all yield ErrUnauthorized.
func (m *Manager) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := m.users.FindByID(ctx, claims.UserID)
	if database.IsNotFound(err) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, apperr.Upstream("users.find", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (m *Manager) session(user *models.User) (*Session, error) {
	token, expires, err := m.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}
