package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// DB wraps a raw database/sql pool. The price source reads through it so the
// ingestion tables can live in a different database than the cycle store.
type DB struct {
	conn   *sql.DB
	driver string
	log    *zap.Logger
}

// ConnConfig holds raw connection settings.
type ConnConfig struct {
	Driver       string // "postgres" or "sqlite3"
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// NewConnection opens and verifies a read pool.
func NewConnection(cfg ConnConfig, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	conn, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	if maxIdle <= 0 {
		maxIdle = maxOpen / 2
	}
	if driver == "sqlite3" {
		// SQLite serialises writers; a single connection also keeps
		// in-memory databases visible to every query.
		maxOpen, maxIdle = 1, 1
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ Price database connection established", zap.String("driver", driver))

	return &DB{conn: conn, driver: driver, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.log.Info("📡 Closing price database connection...")
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// GetConn returns the underlying sql.DB connection
func (db *DB) GetConn() *sql.DB {
	return db.conn
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string {
	return db.driver
}
