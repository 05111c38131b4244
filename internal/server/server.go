// Package server composes the HTTP surface of nest.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joescharf/nest/internal/admin"
	"github.com/joescharf/nest/internal/api"
	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/slack"
	"github.com/joescharf/nest/internal/static"
	"github.com/joescharf/nest/internal/store"
	"github.com/joescharf/nest/internal/telemetry"
)

// Mount points.
const (
	APIPath         = "/api/v1"
	AdminPath       = "/a"
	SlackEventsPath = "/integrations/slack/events/"
	HealthPath      = "/healthz"
)

// Config holds server-specific configuration.
type Config struct {
	Addr            string
	Debug           bool
	StaticURL       string
	StaticRoot      string
	AdminUsername   string
	AdminPassword   string
	Slack           slack.Config
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	Config   Config
	Store    store.Store
	Importer *importer.Importer
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	// Deduper overrides the Slack event deduper selected from Config.Slack.
	Deduper slack.Deduper
}

// Routes builds the full handler: the API and admin are always present, the
// Slack events endpoint only when Slack is configured and static assets only
// in debug mode.
func Routes(d Deps) (http.Handler, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount(APIPath, api.Router(
		api.GitHubRegistry(d.Store),
		api.OWASPRegistry(d.Store, d.Importer),
	))

	staticURL := static.NormalizeURL(cfg.StaticURL)
	adminHandler, err := admin.New(admin.Config{
		Username:  cfg.AdminUsername,
		Password:  cfg.AdminPassword,
		Prefix:    AdminPath,
		StaticURL: staticURL,
	}, d.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	r.Mount(AdminPath, adminHandler)

	if slack.Enabled(cfg.Slack) {
		dedup := d.Deduper
		if dedup == nil {
			dedup = slack.NewDeduper(cfg.Slack)
		}
		events := slack.NewHandler(cfg.Slack, d.Store, dedup, logger)
		r.Handle(SlackEventsPath, events)
		r.Handle(SlackEventsPath[:len(SlackEventsPath)-1], events)
		logger.Debug("slack events enabled", "path", SlackEventsPath)
	}

	if cfg.Debug {
		r.Handle(staticURL+"*", http.StripPrefix(staticURL, static.Handler(cfg.StaticRoot)))
		logger.Debug("serving static files", "url", staticURL, "root", cfg.StaticRoot)
	}

	return r, nil
}

// requestLogger logs each request with slog and records it in metrics.
func requestLogger(logger *slog.Logger, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						route = pattern
					}
				}
				metrics.RecordRequest(r.Context(), r.Method, route, status, elapsed)
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", elapsed,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// New returns an *http.Server serving handler on cfg.Addr.
func New(cfg Config, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8000"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves srv until ctx is cancelled, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
