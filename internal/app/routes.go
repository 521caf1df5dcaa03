package app

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/gatekeeper/internal/plugins/auth"
	"github.com/keyxmakerx/gatekeeper/internal/plugins/resources"
)

// healthCheckTimeout bounds each dependency check run by /healthz.
const healthCheckTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. It registers the
// operational endpoints directly and delegates to each plugin's route
// registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Operational Routes (no auth required) ---

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", a.healthz)

	// Prometheus scrape endpoint over the private registry.
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	// --- Plugin Routes ---
	requireAuth := auth.RequireAuth(a.gate)

	// auth plugin (public: register, login; protected: refresh-token, profile)
	auth.RegisterRoutes(e, auth.NewHandler(a.Auth), requireAuth)

	// resources plugin (protected: data; public: names, empty, nothing)
	resources.RegisterRoutes(e, resources.NewHandler(), requireAuth)
}

// healthz runs every configured dependency check and reports 503 with the
// failing names if any fails. Check errors are logged, never returned.
func (a *App) healthz(c echo.Context) error {
	failed := []string{}
	for name, check := range a.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed",
				slog.String("check", name),
				slog.Any("error", err),
			)
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		slices.Sort(failed)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"failed": failed,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
