// Package database provides storage for the RSI cycle tracker.
//
// This package includes:
//   - Connection management using GORM (PostgreSQL in production, SQLite for
//     local runs and tests)
//   - Schema initialisation, including the partial unique index that keeps a
//     single OPEN cycle per (user, symbol)
//   - A raw database/sql pool for the read-only price history
//
// Data Models:
//
//	All data models are defined in the models_pkg package so the
//	sub-repositories (cycles, users, settings, prices) can share them without
//	import cycles.
package database

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "rsi-cycle-tracker/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db      *gorm.DB
	dialect string
}

// Config selects and addresses the store.
type Config struct {
	Driver   string // "postgres" (default) or "sqlite"
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	Path     string // SQLite file, or ":memory:"
}

// DSN renders the driver-specific data source name.
func (c Config) DSN() string {
	if c.Driver == "sqlite" {
		if c.Path == "" {
			return "rsi-tracker.db"
		}
		return c.Path
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, sslmode)
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Dialect returns "postgres" or "sqlite".
func (d *Database) Dialect() string {
	return d.dialect
}

// Connect establishes database connection using GORM
func Connect(cfg Config) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	}

	var (
		db      *gorm.DB
		err     error
		dialect = cfg.Driver
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN()), gormCfg)
	case "", "postgres":
		dialect = "postgres"
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if dialect == "sqlite" {
		// one connection keeps :memory: databases shared and serialises writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
	}

	return &Database{db: db, dialect: dialect}, nil
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Model aliases so callers outside the sub-repositories can import a single
// package.
type User = models.User
type TradeCycle = models.TradeCycle
type PriceTracking = models.PriceTracking
type GlobalSetting = models.GlobalSetting
type UserSetting = models.UserSetting
type PriceHistory = models.PriceHistory
