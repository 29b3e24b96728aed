package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-auth-service/internal/logging"
	"github.com/iliyamo/user-auth-service/internal/metrics"
	"github.com/iliyamo/user-auth-service/internal/model"
	"github.com/iliyamo/user-auth-service/internal/service"
)

// AccessTokenCookie is the cookie carrying the access token.
const AccessTokenCookie = "accessToken"

// Authenticator resolves an access token to a user.  service.AuthService
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (model.PublicUser, error)
}

// SessionGuard admits requests carrying a valid access token, from the
// accessToken cookie or the Authorization header ("Bearer <t>" or the bare
// token).  The token signature, algorithm and expiry are all checked and
// the user must still exist.  On success the public user is available via
// CurrentUser and UserFromContext.
func SessionGuard(auth Authenticator, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessTokenFrom(c)
			if raw == "" {
				m.Guard(metrics.OutcomeRejected)
				return unauthorized(c)
			}

			req := c.Request()
			u, err := auth.Authenticate(req.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					m.Guard(metrics.OutcomeRejected)
					return unauthorized(c)
				}
				m.Guard(metrics.OutcomeError)
				logging.FromContext(req.Context()).Error("session_guard_failed", "error", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Something went wrong."})
			}

			m.Guard(metrics.OutcomeSuccess)
			c.Set(ContextUserKey, u)
			c.SetRequest(req.WithContext(WithUser(req.Context(), u)))
			return next(c)
		}
	}
}

func accessTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(ck.Value) != "" {
		return strings.TrimSpace(ck.Value)
	}
	h := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Unauthorized."})
}
