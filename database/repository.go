package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// SchemaRepository manages the schema and seed data.
type SchemaRepository struct {
	db  *Database
	log *zap.Logger
}

// NewSchemaRepository creates a new schema repository
func NewSchemaRepository(db *Database, log *zap.Logger) *SchemaRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &SchemaRepository{db: db, log: log}
}

// InitSchema performs auto-migration, creates the indexes GORM cannot
// express and seeds missing default settings. Existing setting values are
// left untouched.
func (r *SchemaRepository) InitSchema(defaults []GlobalSetting) error {
	r.log.Info("🔄 Starting database schema initialization...", zap.String("dialect", r.db.dialect))

	err := r.db.db.AutoMigrate(
		&User{},
		&TradeCycle{},
		&PriceTracking{},
		&GlobalSetting{},
		&UserSetting{},
		&PriceHistory{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// At most one OPEN cycle per (user, symbol). Both PostgreSQL and SQLite
	// support partial indexes with this syntax.
	if err := r.db.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_cycles_one_open
		ON trade_cycles (user_id, symbol)
		WHERE status = 'OPEN'
	`).Error; err != nil {
		return fmt.Errorf("failed to create idx_trade_cycles_one_open: %w", err)
	}

	if err := r.seedDefaults(defaults); err != nil {
		return err
	}

	r.log.Info("✅ Database schema initialization completed successfully")
	return nil
}

func (r *SchemaRepository) seedDefaults(defaults []GlobalSetting) error {
	if len(defaults) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]GlobalSetting, len(defaults))
	for i, d := range defaults {
		rows[i] = d
		if rows[i].UpdatedAt.IsZero() {
			rows[i].UpdatedAt = now
		}
	}

	result := r.db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("seedDefaults: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.log.Info("🌱 Seeded default settings", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}
