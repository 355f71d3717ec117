// Package settings stores installation defaults and per-user overrides.
package settings

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rsi-cycle-tracker/database"
	models "rsi-cycle-tracker/database/models_pkg"
)

// Repository handles database operations for settings
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Globals returns every global setting ordered by key.
func (r *Repository) Globals(ctx context.Context) ([]models.GlobalSetting, error) {
	var rows []models.GlobalSetting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("Globals: %w", err)
	}
	return rows, nil
}

// SetGlobal updates an existing global setting and stamps updated_at.
// Unknown keys return a NotFoundError.
func (r *Repository) SetGlobal(ctx context.Context, key, value string) (*models.GlobalSetting, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.GlobalSetting{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{"value": value, "updated_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("SetGlobal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, database.NewNotFoundErrorWithID("setting", key)
	}

	var row models.GlobalSetting
	if err := r.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("SetGlobal: %w", err)
	}
	return &row, nil
}

// UserOverrides returns the overrides of a user.
func (r *Repository) UserOverrides(ctx context.Context, userID int64) ([]models.UserSetting, error) {
	var rows []models.UserSetting
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("UserOverrides: %w", err)
	}
	return rows, nil
}

// SetUserOverrides upserts several overrides of a user in one transaction.
func (r *Repository) SetUserOverrides(ctx context.Context, userID int64, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.UserSetting, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.UserSetting{UserID: userID, Key: k, Value: v, UpdatedAt: now})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("SetUserOverrides: %w", err)
	}
	return nil
}

// ClearUserOverrides removes all overrides of a user.
func (r *Repository) ClearUserOverrides(ctx context.Context, userID int64) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.UserSetting{}).Error; err != nil {
		return fmt.Errorf("ClearUserOverrides: %w", err)
	}
	return nil
}
