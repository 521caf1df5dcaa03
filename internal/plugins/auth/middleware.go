package auth

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

// contextKeyIdentity is the Echo context key holding the caller's Identity.
// Other plugins read it through GetIdentity.
const contextKeyIdentity = "auth_identity"

// Gate turns a presented bearer credential into an Identity. It holds only
// the codec and is safe for concurrent use.
type Gate struct {
	codec   *TokenCodec
	metrics *Metrics
}

// NewGate creates a Gate over the given codec. metrics may be nil.
func NewGate(codec *TokenCodec, metrics *Metrics) *Gate {
	return &Gate{codec: codec, metrics: metrics}
}

// Authenticate validates an Authorization header value of the form
// "Bearer <token>". A missing token is 401; a present but invalid or
// expired token is 403. Which of the two failed is logged, not returned.
func (g *Gate) Authenticate(authorization string) (Identity, error) {
	token := bearerToken(authorization)
	if token == "" {
		g.metrics.record("token_verify", outcomeRejected)
		return Identity{}, apperror.NewUnauthorized("Access token required")
	}

	claims, err := g.codec.Verify(token)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrExpiredToken) {
			reason = "expired"
		}
		slog.Warn("token rejected",
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		g.metrics.record("token_verify", outcomeRejected)
		return Identity{}, apperror.NewForbidden("Invalid or expired token")
	}

	g.metrics.record("token_verify", outcomeSuccess)
	return Identity{ID: claims.UserID, Username: claims.Username}, nil
}

// RequireAuth returns middleware that runs the Gate on the Authorization
// header and stores the resulting Identity in the Echo context for
// downstream handlers.
func RequireAuth(gate *Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := gate.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			c.Set(contextKeyIdentity, id)
			return next(c)
		}
	}
}

// GetIdentity retrieves the authenticated caller from the Echo context.
// ok is false if RequireAuth did not run for this route.
func GetIdentity(c echo.Context) (Identity, bool) {
	id, ok := c.Get(contextKeyIdentity).(Identity)
	return id, ok
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// case-insensitive; any other scheme yields "".
func bearerToken(authorization string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
