// Package app is the application bootstrap and dependency injection root.
// It creates the Echo instance, the metrics registry and the auth
// components, and wires the plugins together on top of a credential store
// chosen by the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
	"github.com/keyxmakerx/gatekeeper/internal/config"
	"github.com/keyxmakerx/gatekeeper/internal/middleware"
	"github.com/keyxmakerx/gatekeeper/internal/plugins/auth"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup by the serve command and used to register routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Registry is the private Prometheus registry served on /metrics.
	Registry *prometheus.Registry

	// Auth is the account service, exposed for startup seeding.
	Auth auth.AuthService

	gate        *auth.Gate
	httpMetrics *middleware.HTTPMetrics
	checks      map[string]HealthCheck
}

// New creates a new App over store and configures the Echo server with
// global middleware and error handling. checks are run by /healthz; a nil
// map means the store needs no connectivity check.
func New(cfg *config.Config, store auth.CredentialStore, checks map[string]HealthCheck) (*App, error) {
	codec, err := auth.NewTokenCodec(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP.
	if err := middleware.TrustedProxies(e, cfg.TrustedProxies); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authMetrics := auth.NewMetrics(reg)
	hasher := auth.NewHasher(cfg.Auth)
	authService, err := auth.NewAuthService(store, hasher, codec, cfg.Auth.HashConcurrency, authMetrics)
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}

	app := &App{
		Config:      cfg,
		Echo:        e,
		Registry:    reg,
		Auth:        authService,
		gate:        auth.NewGate(codec, authMetrics),
		httpMetrics: middleware.NewHTTPMetrics(reg),
		checks:      checks,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the first registered runs outermost.
func (a *App) setupMiddleware() {
	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Request counters and latency by route.
	a.Echo.Use(middleware.Metrics(a.httpMetrics))

	// Panic recovery -- inside logging and metrics so a panicked request is
	// still logged with its request id and counted as a 500.
	a.Echo.Use(middleware.Recovery())

	// Security headers -- X-Content-Type-Options, X-Frame-Options, no-store, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- allow browser clients on BaseURL to call the API.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{a.Config.BaseURL},
	}))
}

// errorHandler is the custom Echo error handler. Every failure is answered
// with a JSON body of the form {"error": "<message>"}. AppErrors carry their
// own status and client-safe message; Echo's HTTP errors (unknown route,
// wrong method) keep their status; anything else becomes a generic 500.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		// Truly unexpected error -- log it.
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		if err := c.NoContent(code); err != nil {
			slog.Error("writing error response", slog.Any("error", err))
		}
		return
	}
	if err := c.JSON(code, apperror.Body(message)); err != nil {
		slog.Error("writing error response", slog.Any("error", err))
	}
}

// Start begins listening for HTTP requests on the configured port. It
// returns nil once the server was stopped through Shutdown.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting gatekeeper server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("store", a.Config.Store.Backend),
	)
	if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
