package resources

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the data routes behind requireAuth and the names
// routes publicly.
func RegisterRoutes(e *echo.Echo, h *Handler, requireAuth echo.MiddlewareFunc) {
	data := e.Group("/api/data", requireAuth)
	data.POST("", h.CreateData)
	data.DELETE("/:id", h.DeleteData)

	e.GET("/names", h.ListNames)
	e.GET("/names/:id", h.GetName)
	e.GET("/empty", h.Empty)
	e.GET("/nothing", h.Nothing)
}
