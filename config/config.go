package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	PriceSource PriceSourceConfig `yaml:"price_source"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Webhooks    WebhookConfig     `yaml:"webhooks"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds the cycle store connection
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

// PriceSourceConfig holds the read-only price history settings
type PriceSourceConfig struct {
	// Driver is empty to read price_history from the cycle store, or
	// "postgres"/"sqlite3" to read from a separate database at DSN.
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	HistoryLimit int           `yaml:"history_limit"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	BreakerTrips int           `yaml:"breaker_failures"`
	BreakerReset time.Duration `yaml:"breaker_reset"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// RedisConfig holds Redis settings. Redis is optional.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	EventChannel string        `yaml:"event_channel"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// AuthConfig holds token and signup settings
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	AdminEmails []string      `yaml:"admin_emails"`
	RatePerMin  int           `yaml:"rate_per_min"`
}

// ScannerConfig holds scanner knobs
type ScannerConfig struct {
	TopN      int      `yaml:"top_n"`
	Workers   int      `yaml:"workers"`
	AutoClose bool     `yaml:"auto_close"`
	Symbols   []string `yaml:"symbols"` // optional universe override
}

// CycleConfig holds cycle manager settings
type CycleConfig struct {
	Confirmation string        `yaml:"manual_sell_confirmation"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// WebhookConfig holds outbound cycle event webhooks
type WebhookConfig struct {
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		AppEnv:   "production",
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			Name:    "rsi_tracker",
			User:    "rsi",
			SSLMode: "disable",
			Path:    "rsi-tracker.db",
		},
		PriceSource: PriceSourceConfig{
			HistoryLimit: 500,
			Timeout:      5 * time.Second,
			Retries:      3,
			RetryDelay:   100 * time.Millisecond,
			BreakerTrips: 5,
			BreakerReset: 30 * time.Second,
			CacheTTL:     time.Minute,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         "6379",
			LockTTL:      10 * time.Second,
			EventChannel: "cycle_events",
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			RatePerMin: 20,
		},
		Scanner: ScannerConfig{
			TopN:      15,
			Workers:   8,
			AutoClose: true,
		},
		Cycle: CycleConfig{
			Confirmation: "SELL",
			StoreTimeout: 5 * time.Second,
		},
		Webhooks: WebhookConfig{
			Timeout: 5 * time.Second,
			Retries: 3,
		},
	}
}

// LoadFromEnv loads configuration: built-in defaults, then the YAML file
// named by CONFIG_FILE, then environment variables. The result is validated
// for serving.
func LoadFromEnv() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is LoadFromEnv without validation, for maintenance commands that do
// not need every setting.
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays a YAML file. Keys absent from the file keep their value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppEnv = getEnvOrDefault("APP_ENV", c.AppEnv)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	// Server configuration
	c.Server.Addr = getEnvOrDefault("SERVER_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.CORSOrigins = getEnvList("CORS_ORIGINS", c.Server.CORSOrigins)

	// Database configuration
	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnvOrDefault("DB_NAME", c.Database.Name)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Path = getEnvOrDefault("DB_PATH", c.Database.Path)

	// Price source configuration
	c.PriceSource.Driver = getEnvOrDefault("PRICE_DB_DRIVER", c.PriceSource.Driver)
	c.PriceSource.DSN = getEnvOrDefault("PRICE_DB_DSN", c.PriceSource.DSN)
	c.PriceSource.HistoryLimit = getEnvInt("PRICE_HISTORY_LIMIT", c.PriceSource.HistoryLimit)
	c.PriceSource.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", c.PriceSource.Timeout)
	c.PriceSource.Retries = getEnvInt("UPSTREAM_RETRIES", c.PriceSource.Retries)
	c.PriceSource.RetryDelay = getEnvDuration("UPSTREAM_RETRY_DELAY", c.PriceSource.RetryDelay)
	c.PriceSource.BreakerTrips = getEnvInt("UPSTREAM_BREAKER_FAILURES", c.PriceSource.BreakerTrips)
	c.PriceSource.BreakerReset = getEnvDuration("UPSTREAM_BREAKER_RESET", c.PriceSource.BreakerReset)
	c.PriceSource.CacheTTL = getEnvDuration("PRICE_CACHE_TTL", c.PriceSource.CacheTTL)

	// Redis configuration
	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = getEnvOrDefault("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvOrDefault("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.LockTTL = getEnvDuration("REDIS_LOCK_TTL", c.Redis.LockTTL)
	c.Redis.EventChannel = getEnvOrDefault("REDIS_EVENT_CHANNEL", c.Redis.EventChannel)

	// Auth configuration
	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvDuration("TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.AdminEmails = getEnvList("ADMIN_EMAILS", c.Auth.AdminEmails)
	c.Auth.RatePerMin = getEnvInt("AUTH_RATE_PER_MIN", c.Auth.RatePerMin)

	// Scanner configuration
	c.Scanner.TopN = getEnvInt("SCANNER_TOP_N", c.Scanner.TopN)
	c.Scanner.Workers = getEnvInt("SCANNER_WORKERS", c.Scanner.Workers)
	c.Scanner.AutoClose = getEnvBool("SCANNER_AUTO_CLOSE", c.Scanner.AutoClose)
	c.Scanner.Symbols = getEnvList("SCANNER_SYMBOLS", c.Scanner.Symbols)

	// Cycle configuration
	c.Cycle.Confirmation = getEnvOrDefault("MANUAL_SELL_CONFIRMATION", c.Cycle.Confirmation)
	c.Cycle.StoreTimeout = getEnvDuration("STORE_TIMEOUT", c.Cycle.StoreTimeout)

	// Webhook configuration
	c.Webhooks.URLs = getEnvList("WEBHOOK_URLS", c.Webhooks.URLs)
	c.Webhooks.Timeout = getEnvDuration("WEBHOOK_TIMEOUT", c.Webhooks.Timeout)
	c.Webhooks.Retries = getEnvInt("WEBHOOK_RETRIES", c.Webhooks.Retries)
}

// IsDevelopment reports whether APP_ENV selects development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.PriceSource.Driver {
	case "":
	case "postgres", "sqlite3":
		if c.PriceSource.DSN == "" {
			return fmt.Errorf("PRICE_DB_DSN is required when PRICE_DB_DRIVER is set")
		}
	default:
		return fmt.Errorf("PRICE_DB_DRIVER must be empty, postgres or sqlite3, got %q", c.PriceSource.Driver)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if strings.TrimSpace(c.Cycle.Confirmation) == "" {
		return fmt.Errorf("MANUAL_SELL_CONFIRMATION must not be empty")
	}
	if c.Scanner.TopN <= 0 || c.Scanner.Workers <= 0 {
		return fmt.Errorf("SCANNER_TOP_N and SCANNER_WORKERS must be positive")
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvBool gets environment variable as bool or returns default value
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvDuration gets environment variable as time.Duration or returns default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma separated variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
