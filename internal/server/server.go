package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pullhook/internal/app"
	"pullhook/internal/deploy"
	"pullhook/internal/journal"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Minute // deploys run synchronously inside the handler
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware. Must cover both external actions.
	RequestTimeout = 10 * time.Minute

	// Drain window on shutdown. Matches RequestTimeout so an in-flight
	// deploy can finish before the listener is torn down.
	ShutdownTimeout = RequestTimeout

	// Rate limiting - requests per minute
	GlobalRateLimit  = 12
	WebhookRateLimit = 4
)

// Server represents the HTTP server
type Server struct {
	Registry     *app.Registry
	Journal      *journal.Journal
	LockManager  *deploy.LockManager
	Logger       *slog.Logger
	ExposeOutput bool
	TestMode     bool

	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(registry *app.Registry, jnl *journal.Journal, logger *slog.Logger, testMode bool) *Server {
	exposeOutput := false
	exposeEnv := os.Getenv("PULLHOOK_EXPOSE_OUTPUT")
	if exposeEnv == "1" || exposeEnv == "true" || exposeEnv == "yes" {
		exposeOutput = true
	}

	return &Server{
		Registry:     registry,
		Journal:      jnl,
		LockManager:  deploy.NewLockManager(),
		Logger:       logger,
		ExposeOutput: exposeOutput,
		TestMode:     testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)
	r.Get("/status/{appName}", s.HandleStatus)

	// Webhook route with stricter rate limit
	if !s.TestMode {
		r.With(NewWebhookRateLimitMiddleware(WebhookRateLimit, s.Logger)).Post("/hooks/{appName}", s.HandleWebhook)
	} else {
		r.Post("/hooks/{appName}", s.HandleWebhook)
	}

	return r
}

// Start starts the HTTP server and blocks until it fails or a SIGINT/SIGTERM
// triggers a graceful drain.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.Logger.Info("Received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown drains the listener. Deploys run synchronously inside request
// handlers, so once in-flight requests complete there is nothing left
// running. The journal is owned and closed by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.Logger.Info("Server stopped")
	return nil
}
