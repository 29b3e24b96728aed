package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"                    // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware" // stock echo middleware: recover, request id, CORS

	"github.com/iliyamo/user-auth-service/internal/handler"    // import the handlers that implement the auth flows
	"github.com/iliyamo/user-auth-service/internal/metrics"    // Prometheus registry served at /metrics
	"github.com/iliyamo/user-auth-service/internal/middleware" // session guard, rate limiter, request logging
)

// New creates the Echo instance with the middleware every route shares:
// panic recovery, request ids, per-request logging and credentialed CORS
// for the configured front-end origin.
func New(log *slog.Logger, corsOrigin string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	return e
}

// RegisterRoutes registers operational routes that do not require
// authentication: the health check and, when m is non-nil, the Prometheus
// scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health(db))
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// RegisterAuth registers the auth API under /api/v1.  register, login and
// refresh-token each sit behind their own rate limiter; logout and me
// behind the session guard.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, guard echo.MiddlewareFunc, limits middleware.AuthLimits) {
	g := e.Group("/api/v1")

	g.POST("/register", a.Register, limits.Register)
	g.POST("/login", a.Login, limits.Login)
	g.POST("/refresh-token", a.Refresh, limits.Refresh)

	g.POST("/logout", a.Logout, guard)
	g.GET("/me", a.Me, guard)
}
