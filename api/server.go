package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rsi-cycle-tracker/auth"
	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/database/cycles"
	models "rsi-cycle-tracker/database/models_pkg"
	"rsi-cycle-tracker/market"
	"rsi-cycle-tracker/metrics"
	"rsi-cycle-tracker/realtime"
	"rsi-cycle-tracker/scanner"
	"rsi-cycle-tracker/settings"
)

// UserDirectory is the admin view of accounts.
type UserDirectory interface {
	List(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	ToggleAdmin(ctx context.Context, id int64) (*models.User, error)
	ToggleActive(ctx context.Context, id int64) (*models.User, error)
}

// StatsReader reports cycle totals across all users.
type StatsReader interface {
	GetStats(ctx context.Context) (*cycles.Stats, error)
}

// Pinger reports backend health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the Server. Broker, Metrics and Health may
// be nil.
type Deps struct {
	Scanner  *scanner.Scanner
	Cycles   *cycle.Manager
	Auth     *auth.Manager
	Settings *settings.Service
	Users    UserDirectory
	Stats    StatsReader
	Source   market.Source
	Broker   *realtime.Broker
	Metrics  *metrics.Metrics
	Health   Pinger
}

// Config holds the HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// AuthRatePerMin bounds signup and login attempts per client address;
	// zero disables the limit.
	AuthRatePerMin int
}

// Server handles HTTP API requests
type Server struct {
	deps       Deps
	cfg        Config
	upgrader   websocket.Upgrader
	authLimit  *clientLimiter
	log        *zap.Logger
	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(deps Deps, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		deps:      deps,
		cfg:       cfg,
		upgrader:  realtime.NewUpgrader(cfg.CORSOrigins),
		authLimit: newClientLimiter(cfg.AuthRatePerMin),
		log:       log,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth Routes
	mux.Handle("POST /api/auth/signup", s.rateLimited(http.HandlerFunc(s.handleSignup)))
	mux.Handle("POST /api/auth/login", s.rateLimited(http.HandlerFunc(s.handleLogin)))
	mux.Handle("GET /api/auth/verify", s.requireAuth(s.handleVerify))

	// Market Routes
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.Handle("GET /api/scanner", s.requireAuth(s.handleScanner))
	mux.Handle("POST /api/analyze", s.requireAuth(s.handleAnalyze))

	// Cycle Routes
	mux.Handle("GET /api/cycles", s.requireAuth(s.handleCycles))
	mux.Handle("GET /api/cycles/{symbol}", s.requireAuth(s.handleCycles))
	mux.Handle("POST /api/trade", s.requireAuth(s.handleTrade))
	mux.Handle("POST /api/trade/manual-sell", s.requireAuth(s.handleManualSell))

	// User Settings Routes
	mux.Handle("GET /api/settings", s.requireAuth(s.handleGetSettings))
	mux.Handle("PUT /api/settings", s.requireAuth(s.handleUpdateSettings))

	// Admin Routes
	mux.Handle("GET /api/admin/settings", s.requireAdmin(s.handleAdminGetSettings))
	mux.Handle("PUT /api/admin/settings", s.requireAdmin(s.handleAdminUpdateSetting))
	mux.Handle("GET /api/admin/users", s.requireAdmin(s.handleAdminUsers))
	mux.Handle("POST /api/admin/users/{id}/toggle-admin", s.requireAdmin(s.handleToggleAdmin))
	mux.Handle("POST /api/admin/users/{id}/toggle-active", s.requireAdmin(s.handleToggleActive))
	mux.Handle("GET /api/admin/stats", s.requireAdmin(s.handleAdminStats))

	// Event Streams
	mux.Handle("GET /api/events", s.requireAuth(s.handleEvents))
	mux.Handle("GET /api/ws", s.requireAuth(s.handleWS))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	return s.requestIDMiddleware(s.corsMiddleware(s.loggingMiddleware(mux)))
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("🚀 API Server starting", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
