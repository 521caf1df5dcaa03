package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all auth routes under /api. Register and login are
// public; the rest run behind requireAuth, which other plugins also use on
// their own protected routes.
func RegisterRoutes(e *echo.Echo, h *Handler, requireAuth echo.MiddlewareFunc) {
	api := e.Group("/api")

	// Public routes -- no token required.
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	// Token-protected routes.
	api.POST("/refresh-token", h.RefreshToken, requireAuth)
	api.GET("/profile", h.GetProfile, requireAuth)
	api.PUT("/profile", h.UpdateProfile, requireAuth)
}
