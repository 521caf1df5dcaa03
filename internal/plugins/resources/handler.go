package resources

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
	"github.com/keyxmakerx/gatekeeper/internal/plugins/auth"
)

// Handler serves the resource endpoints.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a resources handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

// CreateData echoes a new item owned by the caller (POST /api/data).
func (h *Handler) CreateData(c echo.Context) error {
	id, ok := auth.GetIdentity(c)
	if !ok {
		return apperror.NewUnauthorized("Access token required")
	}

	var req CreateDataRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return apperror.NewBadRequest("Title and content are required")
	}

	now := h.now().UTC()
	return c.JSON(http.StatusCreated, createDataResponse{
		Message: "Data created successfully",
		Data: Data{
			ID:        now.UnixMilli(),
			Title:     req.Title,
			Content:   req.Content,
			UserID:    id.ID,
			CreatedAt: now,
		},
	})
}

// DeleteData acknowledges deletion of an item (DELETE /api/data/:id).
// There is no ownership check: nothing is stored to check against.
func (h *Handler) DeleteData(c echo.Context) error {
	id, ok := auth.GetIdentity(c)
	if !ok {
		return apperror.NewUnauthorized("Access token required")
	}

	dataID := c.Param("id")
	slog.Info("data deleted",
		slog.String("data_id", dataID),
		slog.Int64("user_id", id.ID),
	)

	return c.JSON(http.StatusOK, deleteDataResponse{
		Message:   fmt.Sprintf("Data with ID %s deleted successfully", dataID),
		DeletedID: dataID,
	})
}

// ListNames returns the static names listing (GET /names).
func (h *Handler) ListNames(c echo.Context) error {
	return c.JSON(http.StatusOK, staticNames)
}

// GetName returns a synthesized name for any id (GET /names/:id).
func (h *Handler) GetName(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, Name{ID: id, Name: "John " + id})
}

// Empty returns an empty JSON object (GET /empty).
func (h *Handler) Empty(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{})
}

// Nothing returns an empty body (GET /nothing).
func (h *Handler) Nothing(c echo.Context) error {
	return c.String(http.StatusOK, "")
}
