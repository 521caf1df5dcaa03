package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

// Handler handles HTTP requests for accounts and tokens. Handlers are thin:
// they bind the request, call the service, and write the JSON response. No
// business logic lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Register creates an account (POST /api/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	result, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, authResponse{
		Message: "User registered successfully",
		Token:   result.Token,
		User:    result.Account,
	})
}

// Login verifies credentials and returns a token (POST /api/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   result.Token,
		User:    result.Account,
	})
}

// RefreshToken issues a new token for the caller (POST /api/refresh-token).
func (h *Handler) RefreshToken(c echo.Context) error {
	id, ok := GetIdentity(c)
	if !ok {
		return apperror.NewUnauthorized("Access token required")
	}

	token, err := h.service.RefreshToken(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tokenResponse{
		Message: "Token refreshed successfully",
		Token:   token,
	})
}

// GetProfile returns the caller's account (GET /api/profile).
func (h *Handler) GetProfile(c echo.Context) error {
	id, ok := GetIdentity(c)
	if !ok {
		return apperror.NewUnauthorized("Access token required")
	}

	profile, err := h.service.GetProfile(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profile)
}

// UpdateProfile changes the caller's email and/or password (PUT /api/profile).
func (h *Handler) UpdateProfile(c echo.Context) error {
	id, ok := GetIdentity(c)
	if !ok {
		return apperror.NewUnauthorized("Access token required")
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	profile, err := h.service.UpdateProfile(c.Request().Context(), id, UpdateProfileInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profileUpdateResponse{
		Message: "Profile updated successfully",
		User:    profile,
	})
}
