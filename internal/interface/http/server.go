// Package http implements the loopback REST API of the portal. UI shells
// pull session state from it, drive sign-in and sign-out, and read the
// student dashboard, the teacher's daily register and admin class
// statistics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/interface/http/handlers"
	"github.com/jkcollege/school-portal/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - address to bind. Loopback by default.
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// EnableMetrics - expose /metrics.
	EnableMetrics bool

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// OAuthTimeout - write deadline for the blocking OAuth endpoint. It has
	// to outlast the user finishing the consent page.
	OAuthTimeout time.Duration

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:               "127.0.0.1:8787",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		MaxBodyBytes:       64 << 10,
		EnableMetrics:      true,
		RateLimitPerMinute: 120,
		OAuthTimeout:       5 * time.Minute,
		Version:            "dev",
	}
}

// FromAppConfig maps the process configuration onto server settings.
func FromAppConfig(c config.HTTPConfig, metrics bool, version string) Config {
	cfg := DefaultConfig()
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.IdleTimeout > 0 {
		cfg.IdleTimeout = c.IdleTimeout
	}
	cfg.AllowedOrigins = c.CORSOrigins
	cfg.EnableMetrics = metrics
	if version != "" {
		cfg.Version = version
	}
	return cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SessionService is the part of the auth resolver the API drives.
type SessionService interface {
	Session() session.Session
	IsSigningIn() bool
	Restore(ctx context.Context) (session.Session, error)
	SignIn(ctx context.Context, cmd auth.SignInCommand) (session.Session, error)
	SignUp(ctx context.Context, cmd auth.SignUpCommand) (*auth.SignUpResult, error)
	SignInWithOAuth(ctx context.Context, cmd auth.OAuthCommand) (session.Session, error)
	SignOut(ctx context.Context) session.Session
	CompleteOnboarding(ctx context.Context) (session.Session, error)
}

var _ SessionService = (*auth.Resolver)(nil)

// Features gates optional endpoints.
type Features interface {
	IsEnabled(name string, ctx *config.FeatureContext) bool
}

// CallbackMounter registers the OAuth redirect route.
type CallbackMounter interface {
	Mount(r chi.Router)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Sessions SessionService

	// Query handlers
	Dashboard  *query.GetDashboardHandler
	Result     *query.GetResultHandler
	ClassStats *query.GetClassStatsHandler

	// Teacher register. Both are set together or not at all.
	Roster         *attendance.GetClassRosterHandler
	MarkAttendance *attendance.MarkAttendanceHandler

	// OAuthCallback is optional. Without it /auth/callback is not served.
	OAuthCallback CallbackMounter

	// Features is optional. Without it every gated endpoint is enabled.
	Features Features

	HealthChecker handlers.HealthChecker

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server. Sessions is required.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("http: sessions service is required")
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewCompositeHealthChecker(config.Version)
	}
	if s.deps.Gatherer == nil {
		s.deps.Gatherer = prometheus.DefaultGatherer
	}
	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the root handler. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router

	// Recovery wraps everything, including the logger.
	r.Use(s.recoveryMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(s.corsMiddleware)
	}
	if s.rateLimiter != nil {
		r.Use(s.rateLimitMiddleware)
	}
	r.Use(handlers.SecurityHeadersMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	if s.config.EnableMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.deps.OAuthCallback != nil {
		s.deps.OAuthCallback.Mount(r)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handlers.NoCacheMiddleware)
		if s.config.MaxBodyBytes > 0 {
			r.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
		}

		r.Get("/session", s.handleGetSession)
		r.Post("/session/restore", s.handleRestore)
		r.Post("/onboarding/complete", s.handleCompleteOnboarding)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", s.handleSignIn)
			r.With(s.requireFeature(config.FeatureAuthSignUp)).Post("/signup", s.handleSignUp)
			r.With(s.requireFeature(config.FeatureAuthGoogle)).Post("/oauth", s.handleOAuth)
			r.Post("/signout", s.handleSignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			if s.deps.Dashboard != nil {
				r.Get("/dashboard", s.handleDashboard)
			}
			if s.deps.Result != nil {
				r.Get("/results/{id}", s.handleGetResult)
			}
		})

		if s.deps.ClassStats != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Use(s.requireRole(session.RoleAdmin))
				r.Use(s.requireFeature(config.FeatureAdminClassStats))
				r.Get("/admin/classes", s.handleClassStats)
			})
		}

		if s.deps.Roster != nil && s.deps.MarkAttendance != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Use(s.requireRole(session.RoleTeacher))
				r.Use(s.requireFeature(config.FeatureTeacherAttendance))
				r.Get("/teacher/roster", s.handleRoster)
				r.Post("/teacher/attendance", s.handleMarkAttendance)
			})
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", ln.Addr().String()))

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
