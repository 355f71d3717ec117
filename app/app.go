package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rsi-cycle-tracker/api"
	"rsi-cycle-tracker/auth"
	"rsi-cycle-tracker/cache"
	"rsi-cycle-tracker/config"
	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/database/cycles"
	dbsettings "rsi-cycle-tracker/database/settings"
	"rsi-cycle-tracker/database/users"
	"rsi-cycle-tracker/market"
	"rsi-cycle-tracker/metrics"
	"rsi-cycle-tracker/notifications"
	"rsi-cycle-tracker/realtime"
	"rsi-cycle-tracker/scanner"
	"rsi-cycle-tracker/settings"
)

// App represents the main application
type App struct {
	config         *config.Config
	log            *zap.Logger
	db             *database.Database
	priceDB        *database.DB
	redis          *cache.RedisClient
	metrics        *metrics.Metrics
	broker         *realtime.Broker
	webhookManager *notifications.WebhookManager
	eventBus       *cache.EventBus
	server         *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{config: cfg, log: log}
}

// ConnectDatabase opens the cycle store described by cfg.
func ConnectDatabase(cfg config.DatabaseConfig) (*database.Database, error) {
	return database.Connect(database.Config{
		Driver:   cfg.Driver,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		SSLMode:  cfg.SSLMode,
		Path:     cfg.Path,
	})
}

// Migrate creates or updates the schema and seeds the default settings.
func Migrate(db *database.Database, log *zap.Logger) error {
	return database.NewSchemaRepository(db, log).InitSchema(settings.DefaultRows())
}

// Start runs the application until SIGINT or SIGTERM.
func (a *App) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

// Run wires every component, serves HTTP and shuts down when ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.setup(); err != nil {
		a.close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.broker.Run(ctx)
	if a.eventBus != nil {
		go a.eventBus.Run(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info("🛑 Shutdown signal received, initiating graceful shutdown...")
	case err = <-serverErr:
		if err != nil {
			err = fmt.Errorf("API server failed: %w", err)
		}
	}

	cancel()
	a.gracefulShutdown()
	return err
}

func (a *App) setup() error {
	cfg := a.config

	// 1. Database Connection
	a.log.Info("🗄️  Connecting to database...", zap.String("driver", cfg.Database.Driver))
	db, err := ConnectDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := Migrate(db, a.log); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis Connection
	if cfg.Redis.Enabled {
		a.log.Info("🧠 Connecting to Redis...", zap.String("addr", cfg.Redis.Addr()))
		a.redis = cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, a.log)
		if a.redis == nil {
			a.log.Warn("⚠️  Redis connection failed. Caching and shared locks disabled.")
		}
	}

	// 3. Metrics, stream broker and webhooks
	a.metrics = metrics.NewMetrics(nil)
	a.broker = realtime.NewBroker(a.metrics, a.log)
	a.webhookManager = notifications.NewWebhookManager(notifications.WebhookConfig{
		URLs:    cfg.Webhooks.URLs,
		Timeout: cfg.Webhooks.Timeout,
		Retries: cfg.Webhooks.Retries,
	}, a.metrics, a.log)

	// 4. Price source
	source, err := a.priceSource()
	if err != nil {
		return err
	}

	// 5. Cycle manager and scanner
	var locker cycle.Locker
	sinks := cycle.Sinks{a.metrics, a.webhookManager}
	if a.redis != nil {
		locker = cache.NewRedisLocker(a.redis, cfg.Redis.LockTTL)
		a.eventBus = cache.NewEventBus(a.redis, cfg.Redis.EventChannel, a.broker, a.log)
		sinks = append(sinks, a.eventBus)
	} else {
		sinks = append(sinks, a.broker)
	}

	cycleRepo := cycles.NewRepository(db.DB())
	manager := cycle.NewManager(cycleRepo, locker, sinks, cycle.ManagerConfig{
		Confirmation: cfg.Cycle.Confirmation,
		StoreTimeout: cfg.Cycle.StoreTimeout,
	}, a.log)
	scan := scanner.New(source, manager, a.metrics, scanner.Config{
		TopN:      cfg.Scanner.TopN,
		Workers:   cfg.Scanner.Workers,
		AutoClose: cfg.Scanner.AutoClose,
	}, a.log)

	// 6. Authentication
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}
	userRepo := users.NewRepository(db.DB())

	// 7. API Server
	a.server = api.NewServer(api.Deps{
		Scanner:  scan,
		Cycles:   manager,
		Auth:     auth.NewManager(userRepo, tokens, cfg.Auth.AdminEmails, a.log),
		Settings: settings.NewService(dbsettings.NewRepository(db.DB()), a.log),
		Users:    userRepo,
		Stats:    cycleRepo,
		Source:   source,
		Broker:   a.broker,
		Metrics:  a.metrics,
		Health:   db,
	}, api.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		AuthRatePerMin:  cfg.Auth.RatePerMin,
	}, a.log)
	return nil
}

// priceSource builds the read path: SQL, universe filter, retries behind a
// circuit breaker, then the shared bar cache.
func (a *App) priceSource() (market.Source, error) {
	cfg := a.config.PriceSource

	var base market.Source
	if cfg.Driver == "" {
		sqlDB, err := a.db.DB().DB()
		if err != nil {
			return nil, fmt.Errorf("price source: %w", err)
		}
		driver := "postgres"
		if a.db.Dialect() == "sqlite" {
			driver = "sqlite3"
		}
		base = market.NewSQLSource(sqlDB, driver, cfg.HistoryLimit)
	} else {
		conn, err := database.NewConnection(database.ConnConfig{Driver: cfg.Driver, DSN: cfg.DSN}, a.log)
		if err != nil {
			return nil, fmt.Errorf("price database connection failed: %w", err)
		}
		a.priceDB = conn
		base = market.NewSQLSource(conn.GetConn(), conn.Driver(), cfg.HistoryLimit)
	}
	base = market.NewUniverse(base, a.config.Scanner.Symbols)

	breaker := market.NewCircuitBreaker(cfg.BreakerTrips, cfg.BreakerReset)
	breaker.OnStateChange = func(from, to market.BreakerState) {
		a.metrics.SetBreakerState(int(to))
		a.log.Warn("⚡ Price source circuit breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	resilient := market.NewResilientSource(base, market.RetryPolicy{
		Attempts:    cfg.Retries,
		BaseDelay:   cfg.RetryDelay,
		MaxDelay:    time.Second,
		CallTimeout: cfg.Timeout,
	}, breaker, a.log)

	return cache.NewPriceCache(resilient, a.redis, cfg.CacheTTL, a.log), nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if a.server != nil {
		a.log.Info("🌐 Stopping API server...")
		if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("⚠️  API server shutdown error", zap.Error(err))
		}
	}

	shutdownComplete := make(chan struct{})
	go func() {
		if a.webhookManager != nil {
			a.log.Info("📨 Waiting for webhook deliveries...")
			a.webhookManager.Wait()
		}
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
	case <-shutdownCtx.Done():
		a.log.Warn("⚠️  Shutdown timeout exceeded, forcing exit")
	}

	a.close()
	a.log.Info("✅ Graceful shutdown completed")
}

func (a *App) close() {
	if a.redis != nil {
		a.log.Info("🧠 Closing Redis connection...")
		a.redis.Close()
	}
	if a.priceDB != nil {
		a.priceDB.Close()
	}
	if a.db != nil {
		a.log.Info("🗄️  Closing database connection...")
		a.db.Close()
	}
}
