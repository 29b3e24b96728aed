package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/user-auth-service/internal/config"
	"github.com/iliyamo/user-auth-service/internal/handler"
	"github.com/iliyamo/user-auth-service/internal/metrics"
	"github.com/iliyamo/user-auth-service/internal/middleware"
	"github.com/iliyamo/user-auth-service/internal/repository/repositorytest"
	"github.com/iliyamo/user-auth-service/internal/service"
)

const origin = "http://localhost:5173"

func newApp(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{AccessSecret: "a", RefreshSecret: "r", AccessTTLMin: 15, RefreshTTLDays: 10, UploadDir: t.TempDir()}
	users := repositorytest.NewUsers()
	m := metrics.New()
	auth := service.NewAuthService(users, nil, service.NewTokenService(cfg, users), nil, nil, m)

	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)), origin)
	RegisterRoutes(e, nil, m)
	RegisterAuth(e, handler.NewAuthHandler(cfg, auth),
		middleware.SessionGuard(auth, m),
		middleware.NewAuthLimits(config.RateLimitConfig{}, nil),
	)
	return e
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	app := newApp(t)

	rec := do(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	assert.Equal(t, http.StatusUnauthorized, do(app, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(app, httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(app, httptest.NewRequest(http.MethodPost, "/api/v1/refresh-token", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"username":"ann","password":"p1"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusNotFound, do(app, req).Code)
}

func TestMetricsExposeAuthCounters(t *testing.T) {
	app := newApp(t)
	_ = do(app, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	rec := do(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `userauth_session_guard_total{outcome="rejected"} 1`)
}

func TestCORSAllowsCredentials(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/login", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := do(app, req)

	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
