// Package users stores accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"rsi-cycle-tracker/database"
	models "rsi-cycle-tracker/database/models_pkg"
)

// ErrEmailTaken is returned when signing up with a registered email.
var ErrEmailTaken = errors.New("email is already registered")

// Repository handles database operations for users
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts an active user.
func (r *Repository) Create(ctx context.Context, email, passwordHash string, isAdmin bool) (*models.User, error) {
	user := models.User{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	err := r.db.WithContext(ctx).Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	return &user, nil
}

// FindByEmail returns the user with email or a NotFoundError.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NewNotFoundErrorWithID("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("FindByEmail: %w", err)
	}
	return &user, nil
}

// FindByID returns the user with id or a NotFoundError.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NewNotFoundErrorWithID("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return &user, nil
}

// List returns all users, oldest first.
func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return users, nil
}

// Count returns the number of users.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

// TouchLastLogin stamps a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	if err != nil {
		return fmt.Errorf("TouchLastLogin: %w", err)
	}
	return nil
}

// ToggleAdmin flips is_admin and returns the updated user.
func (r *Repository) ToggleAdmin(ctx context.Context, id int64) (*models.User, error) {
	return r.toggle(ctx, id, "is_admin")
}

// ToggleActive flips is_active and returns the updated user.
func (r *Repository) ToggleActive(ctx context.Context, id int64) (*models.User, error) {
	return r.toggle(ctx, id, "is_active")
}

func (r *Repository) toggle(ctx context.Context, id int64, column string) (*models.User, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update(column, gorm.Expr("NOT "+column))
	if result.Error != nil {
		return nil, fmt.Errorf("toggle %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, database.NewNotFoundErrorWithID("user", id)
	}
	return r.FindByID(ctx, id)
}

// SetAdmin sets is_admin, used by the create-admin command.
func (r *Repository) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_admin", isAdmin)
	if result.Error != nil {
		return fmt.Errorf("SetAdmin: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("user", id)
	}
	return nil
}
