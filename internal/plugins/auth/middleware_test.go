package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

func TestGate_Authenticate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := newTestCodec(t, time.Hour, &now)
	gate := NewGate(codec, nil)

	valid, err := codec.Issue(3, "carol")
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantMsg  string
	}{
		{"missing header", "", http.StatusUnauthorized, "Access token required"},
		{"scheme only", "Bearer", http.StatusUnauthorized, "Access token required"},
		{"blank token", "Bearer   ", http.StatusUnauthorized, "Access token required"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Access token required"},
		{"garbage token", "Bearer not-a-token", http.StatusForbidden, "Invalid or expired token"},
		{"corrupted token", "Bearer " + valid + "x", http.StatusForbidden, "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authenticate(tt.header)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperror.SafeCode(err))
			assert.Equal(t, tt.wantMsg, apperror.SafeMessage(err))
		})
	}

	t.Run("valid token", func(t *testing.T) {
		id, err := gate.Authenticate("Bearer " + valid)
		require.NoError(t, err)
		assert.Equal(t, Identity{ID: 3, Username: "carol"}, id)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		id, err := gate.Authenticate("bearer " + valid)
		require.NoError(t, err)
		assert.Equal(t, int64(3), id.ID)
	})
}

func TestGate_ExpiredTokenIsForbidden(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	clock := issued
	codec := newTestCodec(t, time.Minute, &clock)
	gate := NewGate(codec, nil)

	tok, err := codec.Issue(1, "alice")
	require.NoError(t, err)

	clock = issued.Add(time.Minute)
	_, err = gate.Authenticate("Bearer " + tok)
	assert.Equal(t, http.StatusForbidden, apperror.SafeCode(err))
	assert.Equal(t, "Invalid or expired token", apperror.SafeMessage(err))
}

func TestGate_RecordsMetrics(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := newTestCodec(t, time.Hour, &now)
	metrics := NewMetrics(prometheus.NewRegistry())
	gate := NewGate(codec, metrics)

	tok, err := codec.Issue(1, "alice")
	require.NoError(t, err)

	_, _ = gate.Authenticate("Bearer " + tok)
	_, _ = gate.Authenticate("")
	_, _ = gate.Authenticate("Bearer junk")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.events.WithLabelValues("token_verify", outcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.events.WithLabelValues("token_verify", outcomeRejected)))
}

func TestRequireAuth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := newTestCodec(t, time.Hour, &now)
	mw := RequireAuth(NewGate(codec, nil))

	var seen Identity
	var seenOK bool
	next := func(c echo.Context) error {
		seen, seenOK = GetIdentity(c)
		return c.NoContent(http.StatusNoContent)
	}

	t.Run("passes identity downstream", func(t *testing.T) {
		tok, err := codec.Issue(4, "dave")
		require.NoError(t, err)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, mw(next)(c))
		assert.True(t, seenOK)
		assert.Equal(t, Identity{ID: 4, Username: "dave"}, seen)
	})

	t.Run("stops without token", func(t *testing.T) {
		seenOK = false
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		c := e.NewContext(req, httptest.NewRecorder())

		err := mw(next)(c)
		assert.Equal(t, http.StatusUnauthorized, apperror.SafeCode(err))
		assert.False(t, seenOK, "handler must not run")
	})
}

func TestGetIdentity_Absent(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, ok := GetIdentity(c)
	assert.False(t, ok)
}
