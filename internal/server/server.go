package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/handler"
	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/openapi"
	"github.com/tenantly/tenantly/internal/realtime"
	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
	"github.com/tenantly/tenantly/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	APIKeyHeader    string
	Production      bool
	Version         string

	RateLimit     bool
	RateRequests  int
	AuthRequests  int
	RateWindow    time.Duration
	DashboardTTL  time.Duration
	ReadyzTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		APIKeyHeader:    "X-API-Key",
		Version:         "dev",
		RateLimit:       true,
		RateRequests:    100,
		AuthRequests:    20,
		RateWindow:      time.Minute,
		DashboardTTL:    5 * time.Minute,
		ReadyzTimeout:   2 * time.Second,
	}
}

// Deps are the collaborators the server routes to. Cache, Hub and Metrics
// may be nil.
type Deps struct {
	Store    *config.Store
	Cache    *cache.Store
	Services *service.Services
	Hub      *realtime.Hub
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Server is the top-level HTTP server. It owns the Chi router and releases
// the hub, store and cache on shutdown.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	docOnce sync.Once
	doc     []byte
	docErr  error
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   d,
		logger: d.Logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	svc := s.deps.Services
	opts := handler.Options{Logger: s.logger, Production: s.cfg.Production}
	auth := middleware.NewAuth(svc.Auth, s.cfg.APIKeyHeader, s.deps.Metrics, s.logger)

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Metrics(s.deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.APIKeyHeader(), "X-Requested-With", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Probes, metrics and docs (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	r.Get("/openapi.json", s.handleOpenAPI)
	if s.deps.Hub != nil {
		s.registerRealtime(s.deps.Hub)
		r.Handle("/ws", s.deps.Hub)
	}

	authH := handler.NewAuthHandler(svc.Auth, opts)
	userH := handler.NewUserHandler(svc.Users, opts)
	adminH := handler.NewAdminHandler(svc.Admins, opts)
	roleH := handler.NewRoleHandler(svc.Roles, opts)
	dashH := handler.NewDashboardHandler(svc.Dashboard, opts)
	commentH := handler.NewCommentHandler(opts)
	sysH := handler.NewSystemHandler(s.deps.Cache, opts)

	requireAdmin := middleware.RequireType(model.PrincipalAdmin)
	requireUser := middleware.RequireType(model.PrincipalUser)
	requireSuper := middleware.RequireRole(model.AdminRoleSuper)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))
		if s.cfg.RateLimit {
			r.Use(middleware.RateLimit(s.cfg.RateRequests, s.cfg.RateWindow))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.cfg.RateLimit {
					r.Use(middleware.RateLimit(s.cfg.AuthRequests, s.cfg.RateWindow))
				}
				r.Post("/register", authH.Register)
				r.Post("/login", authH.Login)
				r.Post("/refresh", authH.Refresh)
				r.Post("/admin/login", authH.AdminLogin)
			})

			r.With(auth.Multi).Get("/me", authH.Me)

			r.Group(func(r chi.Router) {
				r.Use(auth.Bearer)
				r.Get("/api-keys", authH.ListKeys)
				r.Post("/api-keys", authH.CreateKey)
				r.Delete("/api-keys/{keyId}", authH.RevokeKey)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.Bearer)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/me", userH.GetMe)
				r.Put("/me", userH.UpdateMe)
				r.Put("/me/password", userH.ChangePassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", userH.List)
				r.Get("/{id}", userH.Get)
				r.Put("/{id}", userH.Update)
				r.Delete("/{id}", userH.Delete)
				r.Patch("/{id}/toggle", userH.Toggle)
			})
		})

		r.Route("/admins", func(r chi.Router) {
			r.Use(auth.Bearer, requireAdmin, requireSuper)
			r.Get("/", adminH.List)
			r.Post("/", adminH.Create)
			r.Get("/{id}", adminH.Get)
			r.Put("/{id}", adminH.Update)
			r.Delete("/{id}", adminH.Delete)
			r.Patch("/{id}/toggle", adminH.Toggle)
		})

		r.Route("/roles", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.Optional)
				r.Get("/", roleH.List)
				r.Get("/permissions", roleH.Permissions)
				r.Get("/{id}", roleH.Get)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.Bearer, requireAdmin)
				r.Post("/", roleH.Create)
				r.Put("/{id}", roleH.Update)
				r.Delete("/{id}", roleH.Delete)
				r.Patch("/{id}/default", roleH.SetDefault)
				r.Patch("/{id}/toggle", roleH.Toggle)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(auth.Multi, requireAdmin)
			r.Use(middleware.CacheResponse(s.deps.Cache, "dashboard", s.cfg.DashboardTTL))
			r.Get("/stats", dashH.Stats)
			r.Get("/role-distribution", dashH.RoleDistribution)
			r.Get("/recent-users", dashH.RecentUsers)
		})

		r.Route("/comments", func(r chi.Router) {
			r.Use(auth.Multi)
			r.With(middleware.RequirePermission(svc.Roles, s.logger, model.PermReadComments)).
				Get("/", commentH.List)
			r.With(middleware.RequirePermission(svc.Roles, s.logger, model.PermWriteComments)).
				Post("/check", commentH.Check)
		})

		r.Route("/system", func(r chi.Router) {
			r.Use(auth.Bearer, requireAdmin, requireSuper)
			r.Get("/cache", sysH.CacheStatus)
			r.Delete("/cache", sysH.ClearCache)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, model.Envelope{Success: false, Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusMethodNotAllowed, model.Envelope{Success: false, Message: "Method not allowed"})
	})

	s.router = r
}

// registerRealtime adds the request/reply events served over /ws.
func (s *Server) registerRealtime(hub *realtime.Hub) {
	dash := s.deps.Services.Dashboard
	hub.On("dashboard:stats", func(ctx context.Context, c *realtime.Client, _ json.RawMessage) (any, error) {
		if c.Principal().Type != model.PrincipalAdmin {
			return nil, errors.New("forbidden")
		}
		return dash.Stats(ctx)
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. The store must answer a ping; an
// unavailable cache only degrades the service since every cached read falls
// back to the store.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyzTimeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	switch {
	case s.deps.Cache == nil:
		checks["cache"] = "disabled"
	case s.deps.Cache.IsReady():
		checks["cache"] = "ok"
	default:
		checks["cache"] = "unavailable"
		if status == "ok" {
			status = "degraded"
		}
	}

	writeEnvelope(w, httpStatus, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// Document renders the OpenAPI document describing the API mounted by New.
func Document(version, apiKeyHeader string) ([]byte, error) {
	doc, err := openapi.Generate(openapi.Info{
		Title:        "Tenantly API",
		Version:      version,
		APIKeyHeader: apiKeyHeader,
	}, apiRoutes())
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// handleOpenAPI serves the generated API document. It is built once on first
// request.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.docOnce.Do(func() {
		s.doc, s.docErr = Document(s.cfg.Version, s.cfg.APIKeyHeader)
	})
	if s.docErr != nil {
		s.logger.Error("openapi generation failed", "error", s.docErr)
		writeEnvelope(w, http.StatusInternalServerError, model.Envelope{Success: false, Message: "Failed to generate API document"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.doc)
}

func writeEnvelope(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down: in-flight requests are
// drained, then realtime clients are disconnected, then the store and the
// cache are closed, in that order.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.release()
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.release()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// release closes the hub, store and cache.
func (s *Server) release() {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	if err := s.deps.Store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
	if err := s.deps.Cache.Disconnect(); err != nil {
		s.logger.Warn("cache disconnect failed", "error", err)
	}
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
