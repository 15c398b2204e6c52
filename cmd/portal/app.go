package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/application/attendance"
	"github.com/jkcollege/school-portal/internal/application/auth"
	"github.com/jkcollege/school-portal/internal/application/eventhandler"
	"github.com/jkcollege/school-portal/internal/application/query"
	"github.com/jkcollege/school-portal/internal/domain/academics"
	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/infrastructure/external/oauth"
	"github.com/jkcollege/school-portal/internal/infrastructure/external/supabase"
	"github.com/jkcollege/school-portal/internal/infrastructure/messaging"
	"github.com/jkcollege/school-portal/internal/infrastructure/persistence/badger"
	"github.com/jkcollege/school-portal/internal/infrastructure/persistence/memory"
	"github.com/jkcollege/school-portal/internal/infrastructure/persistence/postgres"
	"github.com/jkcollege/school-portal/internal/infrastructure/persistence/redis"
	"github.com/jkcollege/school-portal/internal/interface/http/handlers"
	"github.com/jkcollege/school-portal/pkg/circuitbreaker"
	"github.com/jkcollege/school-portal/pkg/logger"
	"github.com/jkcollege/school-portal/pkg/sealer"
)

// tokenSealInfo must match the badger store so both drivers read the
// same secret the same way.
const tokenSealInfo = "school-portal/session-tokens/v1"

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// app holds every wired component of one process.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	slog   *slog.Logger
	health *handlers.CompositeHealthChecker

	registry *prometheus.Registry
	backend  *supabase.Client
	bus      *messaging.InMemoryEventBus
	browser  *oauth.LoopbackBrowser
	resolver *auth.Resolver
	cache    *query.StudentDataCache

	dashboard  *query.GetDashboardHandler
	result     *query.GetResultHandler
	classStats *query.GetClassStatsHandler
	roster     *attendance.GetClassRosterHandler
	mark       *attendance.MarkAttendanceHandler

	closers []func() error
}

// newApp wires the components. Failures close what was already opened.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *app, err error) {
	a = &app{
		cfg:      cfg,
		log:      log,
		slog:     log.Slog(),
		health:   handlers.NewCompositeHealthChecker(cfg.App.Version),
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Backend client
	// ─────────────────────────────────────────────────────────────────────────
	breakerState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portal",
		Subsystem: "backend",
		Name:      "circuit_open",
		Help:      "1 while the backend circuit breaker is open.",
	})
	a.registry.MustRegister(breakerState)

	clientCfg := supabase.DefaultClientConfig(cfg.Backend.URL, cfg.Backend.AnonKey)
	clientCfg.Timeout = cfg.Backend.RequestTimeout
	clientCfg.MaxRetries = cfg.Backend.MaxRetries
	clientCfg.RetryBaseDelay = cfg.Backend.RetryBaseDelay
	clientCfg.CircuitBreakerThreshold = cfg.Backend.CircuitBreakerThreshold
	clientCfg.CircuitBreakerTimeout = cfg.Backend.CircuitBreakerTimeout
	clientCfg.Logger = a.slog
	clientCfg.OnBreakerStateChange = func(_ string, _, to circuitbreaker.State) {
		if to == circuitbreaker.StateOpen {
			breakerState.Set(1)
			return
		}
		breakerState.Set(0)
	}
	a.backend = supabase.NewClient(clientCfg)
	a.health.AddCheck("backend", handlers.NewPingCheck(a.backend))

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var rdb *goredis.Client
	if !cfg.Redis.Disabled {
		rdb, err = redis.Connect(ctx, redisConfig(cfg.Redis))
		switch {
		case err == nil:
			a.onClose(rdb.Close)
			a.health.AddOptionalCheck("redis", handlers.NewPingCheck(redis.NewCache(rdb, cfg.Redis.KeyPrefix)))
		case cfg.Storage.Driver == config.StorageRedis:
			return a, fmt.Errorf("redis session store: %w", err)
		default:
			a.log.Warn("redis unavailable, continuing without shared cache", logger.Err(err))
			rdb = nil
			err = nil
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Data sources
	// ─────────────────────────────────────────────────────────────────────────
	var (
		profiles session.ProfileRepository    = a.backend.Profiles()
		source   academics.Repository         = a.backend.Academics()
		register academics.AttendanceRegister = a.backend.Attendance()
	)
	if cfg.Database.URL != "" {
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return a, err
		}
		a.onClose(func() error { conn.Close(); return nil })
		a.health.AddCheck("database", handlers.NewPingCheck(conn))

		profiles = postgres.NewProfileRepository(conn)
		source = postgres.NewAcademicsRepository(conn)
		register = postgres.NewAttendanceRegisterRepository(conn)
		a.log.Info("reading academics directly from postgres")
	}

	store, err := a.openStore(rdb)
	if err != nil {
		return a, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Events, cache, resolver
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.slog
	a.bus = messaging.NewInMemoryEventBus(busCfg)
	a.onClose(a.bus.Close)

	cacheCfg := query.StudentDataCacheConfig{
		TTL:    cfg.Redis.CacheTTL,
		Key:    redis.DashboardKey,
		Logger: a.slog,
	}
	if rdb != nil && cfg.Features.IsEnabled(config.FeatureRedisDataCache, nil) {
		cacheCfg.Remote = redis.NewCache(rdb, cfg.Redis.KeyPrefix)
	}
	a.cache = query.NewStudentDataCache(source, cacheCfg)

	if err := eventhandler.NewOnSessionChangedHandler(a.cache, a.slog).Register(a.bus); err != nil {
		return a, err
	}

	a.browser = oauth.NewLoopbackBrowser(oauth.SystemLauncher(), cfg.OAuth.Timeout, a.slog)

	resolverCfg := auth.DefaultConfig()
	resolverCfg.OAuthProvider = cfg.OAuth.Provider
	resolverCfg.OAuthRedirectURL = cfg.OAuth.RedirectURL
	resolverCfg.RefreshSkew = cfg.Scheduler.RefreshSkew
	resolverCfg.DemoShortcut = cfg.Features.IsEnabled(config.FeatureAuthDemoShortcut, nil)

	a.resolver, err = auth.NewResolver(auth.Dependencies{
		Gateway:       a.backend,
		Profiles:      profiles,
		Store:         store,
		Browser:       a.browser,
		ParseCallback: oauth.Tokens,
		Events:        a.bus,
		Metrics:       auth.NewMetrics(a.registry),
		Logger:        a.slog,
	}, resolverCfg)
	if err != nil {
		return a, err
	}
	a.onClose(a.resolver.Close)

	a.dashboard = query.NewGetDashboardHandler(a.cache)
	a.result = query.NewGetResultHandler(a.cache)
	a.classStats = query.NewGetClassStatsHandler(source)
	a.roster = attendance.NewGetClassRosterHandler(source, register)
	a.mark = attendance.NewMarkAttendanceHandler(source, register, a.slog)

	return a, nil
}

// openStore picks the local session store driver.
func (a *app) openStore(rdb *goredis.Client) (session.LocalStore, error) {
	switch a.cfg.Storage.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil

	case config.StorageRedis:
		if rdb == nil {
			return nil, errors.New("redis session store: redis is disabled")
		}
		var s *sealer.Sealer
		if a.cfg.Storage.SecretKey != "" {
			var err error
			if s, err = sealer.New([]byte(a.cfg.Storage.SecretKey), tokenSealInfo); err != nil {
				return nil, fmt.Errorf("redis session store: %w", err)
			}
		}
		return redis.NewStore(rdb, a.cfg.Redis.KeyPrefix, s), nil

	default:
		store, err := badger.Open(badger.Options{
			Path:      a.cfg.Storage.Path,
			SecretKey: a.cfg.Storage.SecretKey,
			Logger:    a.slog,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	}
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Config mapping
// ─────────────────────────────────────────────────────────────────────────────

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	if c.Host != "" {
		rc.Host = c.Host
	}
	if c.Port > 0 {
		rc.Port = c.Port
	}
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	rc.MinIdleConns = c.MinIdleConns
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	if c.KeyPrefix != "" {
		rc.KeyPrefix = c.KeyPrefix
	}
	return rc
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig(c.URL)
	if c.MaxOpenConns > 0 {
		pc.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MinConns > 0 {
		pc.MinConns = int32(c.MinConns)
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	if c.QueryTimeout > 0 {
		pc.QueryTimeout = c.QueryTimeout
	}
	return pc
}

// newLogger writes to stderr so command output on stdout stays clean.
func newLogger(c config.ObservabilityConfig, stderr io.Writer) *logger.Logger {
	return logger.New(logger.Options{
		Output: stderr,
		Level:  logger.ParseLevel(c.LogLevel),
		Text:   c.LogFormat != "json",
	})
}
