package middleware

// identity.go holds the accessors for the user the session guard attaches
// to a request.  Handlers read it through CurrentUser; non-echo code reads
// it from the request context through UserFromContext.

import (
    "context"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/user-auth-service/internal/model"
)

// ContextUserKey is the echo context key the session guard stores the
// authenticated model.PublicUser under.
const ContextUserKey = "user"

type userCtxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u model.PublicUser) context.Context {
    return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the user attached by the session guard.
func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
    u, ok := ctx.Value(userCtxKey{}).(model.PublicUser)
    return u, ok
}

// CurrentUser returns the authenticated user of an echo request.
func CurrentUser(c echo.Context) (model.PublicUser, bool) {
    u, ok := c.Get(ContextUserKey).(model.PublicUser)
    return u, ok && u.ID != 0
}
