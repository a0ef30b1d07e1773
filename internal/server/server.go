// Package server is the composition root: it builds the store, cache,
// generator, services and handlers, mounts the routes and runs the HTTP
// server with graceful shutdown.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlstore.DB ─┬→ DailyService   → DailyHandler, UserHandler
//	                             ├→ AccountService → AuthHandler, RequireAdmin
//	                             └→ CatalogService → AdminHandler
//	cache (redis | memory) ──────┘   ↑ generator (openai)
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get small service interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/cache"
	"github.com/sakif/affirmations/internal/config"
	"github.com/sakif/affirmations/internal/generator/openai"
	"github.com/sakif/affirmations/internal/handler"
	"github.com/sakif/affirmations/internal/metrics"
	"github.com/sakif/affirmations/internal/middleware"
	"github.com/sakif/affirmations/internal/repository/sqlstore"
	"github.com/sakif/affirmations/internal/service"
)

// Option adjusts construction details that are not part of the runtime
// configuration.
type Option func(*options)

type options struct {
	passwordCost int
}

// WithPasswordCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(o *options) { o.passwordCost = cost }
}

// Server owns the router and every resource that must be released on
// shutdown (database pool, redis client).
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  *sqlstore.DB
	cache  service.DailyCache

	closers []func() error
}

// New wires the whole application. The store is opened (and migrated) once
// here and injected everywhere; nothing is global.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{passwordCost: auth.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == sqlstore.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	store, err := sqlstore.New(ctx, sqlstore.Options{
		Driver:      cfg.DBDriver,
		DSN:         dsn,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		closers: []func() error{store.Close},
	}
	if n := store.Backfilled(); n > 0 {
		logger.Warn("removed duplicate same-day interactions during migration", slog.Int64("rows", n))
	}

	s.cache = s.newCache(ctx)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	genCfg := openai.DefaultConfig()
	genCfg.APIKey = cfg.OpenAIAPIKey
	if cfg.OpenAIModel != "" {
		genCfg.Model = cfg.OpenAIModel
	}
	if cfg.OpenAIBaseURL != "" {
		genCfg.BaseURL = cfg.OpenAIBaseURL
	}
	gen := openai.New(genCfg, logger)
	if !gen.Enabled() {
		logger.Warn("OPENAI_API_KEY not set; generation endpoints return fallback drafts")
	}

	daily := service.NewDailyService(store, store, store, logger, service.DailyOptions{
		Policy: service.StreakPolicy{
			CountViews:        cfg.StreakCountViews,
			CountAffirmations: true,
			ResetOnSkip:       cfg.StreakResetOnSkip,
		},
		Location: cfg.Location,
		Cache:    s.cache,
	})
	accounts := service.NewAccountService(store, tokens, auth.NewPasswordService(o.passwordCost), cfg.AdminEmails, logger)
	catalog := service.NewCatalogService(store, store, gen, s.cache, logger)

	if cfg.SeedAffirmations {
		n, err := catalog.SeedIfEmpty(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("seeding affirmations: %w", err)
		}
		if n > 0 {
			logger.Info("seeded empty catalogue", slog.Int("count", n))
		}
	}

	s.setupRoutes(routeDeps{
		tokens:   tokens,
		daily:    daily,
		accounts: accounts,
		catalog:  catalog,
	})
	return s, nil
}

// newCache prefers Redis when configured and reachable. A Redis outage at
// startup degrades to the per-process cache instead of failing.
func (s *Server) newCache(ctx context.Context) service.DailyCache {
	if s.config.RedisAddr == "" {
		return cache.NewMemory(cache.DefaultTTL)
	}
	rc, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     s.config.RedisAddr,
		Password: s.config.RedisPassword,
		DB:       s.config.RedisDB,
		TTL:      cache.DefaultTTL,
	})
	if err != nil {
		s.logger.Warn("redis unavailable; using in-process daily cache",
			slog.String("addr", s.config.RedisAddr),
			slog.String("error", err.Error()),
		)
		return cache.NewMemory(cache.DefaultTTL)
	}
	s.closers = append(s.closers, rc.Close)
	return rc
}

type routeDeps struct {
	tokens   *auth.TokenService
	daily    *service.DailyService
	accounts *service.AccountService
	catalog  *service.CatalogService
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET   /healthz
//	GET   /metrics
//	GET   /api/daily-affirmation          (optional auth)
//	POST  /api/user/response              (optional auth)
//	GET   /api/user/stats                 (optional auth)
//	GET   /api/user/todays-response       (optional auth)
//	POST  /api/user/update-goals          (optional auth)
//	POST  /api/auth/signup|login          (rate limited)
//	POST  /api/auth/logout
//	GET   /api/me                         (auth)
//	*     /api/admin/...                  (auth + admin; generation rate limited)
//
// MIDDLEWARE ORDER: RequestID → RealIP → metrics → Logger → Recoverer → CORS.
// RealIP runs before the rate limiter so clients are keyed by their real
// address behind a proxy.
func (s *Server) setupRoutes(d routeDeps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(metrics.InstrumentHandler)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := middleware.NewRateLimiter(s.config.RateLimitPerMinute, s.logger)

	dailyHandler := handler.NewDailyHandler(d.daily, s.logger)
	userHandler := handler.NewUserHandler(d.daily, d.accounts, s.logger)
	authHandler := handler.NewAuthHandler(d.accounts, d.tokens.TTL(), s.logger)
	adminHandler := handler.NewAdminHandler(d.catalog, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(d.tokens))
			r.Get("/daily-affirmation", dailyHandler.HandleGet)
			r.Post("/user/response", userHandler.HandleRecordResponse)
			r.Get("/user/stats", userHandler.HandleStats)
			r.Get("/user/todays-response", userHandler.HandleTodaysResponse)
			r.Post("/user/update-goals", userHandler.HandleUpdateGoals)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.Handler).Post("/signup", authHandler.HandleSignup)
			r.With(limiter.Handler).Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
		})

		r.With(auth.RequireAuth(d.tokens)).Get("/me", authHandler.HandleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAuth(d.tokens))
			r.Use(auth.RequireAdmin(d.accounts))
			r.Get("/affirmations", adminHandler.HandleList)
			r.Post("/affirmations", adminHandler.HandleCreate)
			r.Patch("/affirmations/{id}", adminHandler.HandleUpdate)
			r.Get("/area-stats", adminHandler.HandleAreaStats)
			r.With(limiter.Handler).Post("/generate-affirmations", adminHandler.HandleGenerate)
			r.With(limiter.Handler).Post("/categorize", adminHandler.HandleCategorize)
		})
	})
}

// Handler exposes the router, for tests and for embedding behind another
// server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database pool and cache client. Errors from every
// closer are joined.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start runs the HTTP server until SIGINT/SIGTERM, then stops accepting
// connections, gives in-flight requests 30 seconds to finish and closes the
// store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // generation calls may take 30s upstream
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.store.Dialect()),
			slog.String("timezone", s.config.Location.String()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
