package handler

import (
    "context"  // bounds store calls with a timeout
    "errors"   // maps service sentinels to HTTP status codes
    "io"       // copies multipart uploads to disk
    "net/http" // status codes and cookies
    "os"       // temp files for uploads
    "path/filepath"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/user-auth-service/internal/config"
    "github.com/iliyamo/user-auth-service/internal/logging"
    "github.com/iliyamo/user-auth-service/internal/middleware"
    "github.com/iliyamo/user-auth-service/internal/service"
)

// Cookie names used by login, refresh and logout.
const (
    AccessTokenCookie  = middleware.AccessTokenCookie
    RefreshTokenCookie = "refreshToken"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg  config.Config
    Auth *service.AuthService
}

func NewAuthHandler(cfg config.Config, auth *service.AuthService) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Auth: auth}
}

// ----- DTOs -----

type loginReq struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

// Register: multipart form with username, email, password and optional
// profile_photo / cover_photo files.
func (h *AuthHandler) Register(c echo.Context) error {
    ctx, cancel := h.requestContext(c)
    defer cancel()

    // Files are staged in UploadDir before validation; the service removes
    // them on every exit path.  Staging errors drop the image, not the request.
    profile := h.stageUpload(c, "profile_photo")
    cover := h.stageUpload(c, "cover_photo")

    u, err := h.Auth.Register(ctx, service.RegisterInput{
        Username:     c.FormValue("username"),
        Email:        c.FormValue("email"),
        Password:     c.FormValue("password"),
        ProfilePhoto: profile,
        CoverPhoto:   cover,
    })
    if err != nil {
        return h.fail(c, "register", err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "userInfo": u,
        "message":  "Registration is success.",
    })
}

// Login: JSON with username and/or email plus password; sets both cookies.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"message": "All fields are required."})
    }

    ctx, cancel := h.requestContext(c)
    defer cancel()

    res, err := h.Auth.Login(ctx, service.LoginInput{
        Username: req.Username,
        Email:    req.Email,
        Password: req.Password,
    })
    if err != nil {
        return h.fail(c, "login", err)
    }

    h.setTokenCookies(c, res.Tokens)
    return c.JSON(http.StatusOK, echo.Map{
        "user":    res.User,
        "message": "Login success.",
    })
}

// Refresh: rotates the refresh token taken from the refreshToken cookie or
// the refresh_token body field.
func (h *AuthHandler) Refresh(c echo.Context) error {
    raw := ""
    if ck, err := c.Cookie(RefreshTokenCookie); err == nil {
        raw = strings.TrimSpace(ck.Value)
    }
    if raw == "" {
        var req refreshReq
        _ = c.Bind(&req) // an unreadable body just means no token
        raw = strings.TrimSpace(req.RefreshToken)
    }

    ctx, cancel := h.requestContext(c)
    defer cancel()

    pair, err := h.Auth.Refresh(ctx, raw)
    if err != nil {
        return h.fail(c, "refresh", err)
    }

    h.setTokenCookies(c, pair)
    return c.JSON(http.StatusOK, echo.Map{"message": "Token updated."})
}

// Logout: protected by the session guard; clears the stored refresh token
// and both cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
    u, ok := middleware.CurrentUser(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Unauthorized."})
    }

    ctx, cancel := h.requestContext(c)
    defer cancel()

    if err := h.Auth.Logout(ctx, u); err != nil {
        return h.fail(c, "logout", err)
    }

    h.clearCookie(c, AccessTokenCookie)
    h.clearCookie(c, RefreshTokenCookie)
    return c.JSON(http.StatusOK, echo.Map{"message": u.Username + " logout successfully."})
}

// Me: returns the public projection of the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
    u, ok := middleware.CurrentUser(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Unauthorized."})
    }
    return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// ----- helpers -----

func (h *AuthHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
    ctx := service.WithRemoteIP(c.Request().Context(), c.RealIP())
    return context.WithTimeout(ctx, 5*time.Second)
}

// fail translates service errors into the JSON bodies clients expect.
func (h *AuthHandler) fail(c echo.Context, op string, err error) error {
    switch {
    case errors.Is(err, service.ErrTooLong):
        return c.JSON(http.StatusBadRequest, echo.Map{"message": "Username, email or password is too long."})
    case errors.Is(err, service.ErrValidation):
        return c.JSON(http.StatusBadRequest, echo.Map{"message": "All fields are required."})
    case errors.Is(err, service.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"message": "Email or username is already exists."})
    case errors.Is(err, service.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"message": "No user found."})
    case errors.Is(err, service.ErrInvalidCredentials):
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invaild Credentials."})
    case errors.Is(err, service.ErrMissingRefreshToken):
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "No refresh token provided."})
    case errors.Is(err, service.ErrInvalidRefreshToken):
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invaild refresh token."})
    case errors.Is(err, service.ErrUnauthenticated):
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Unauthorized."})
    }
    logging.FromContext(c.Request().Context()).Error("handler_failed", "handler", op, "error", err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Something went wrong."})
}

func (h *AuthHandler) setTokenCookies(c echo.Context, pair service.TokenPair) {
    c.SetCookie(h.cookie(AccessTokenCookie, pair.Access.Token, pair.Access.Exp))
    c.SetCookie(h.cookie(RefreshTokenCookie, pair.Refresh.Token, pair.Refresh.Exp))
}

func (h *AuthHandler) clearCookie(c echo.Context, name string) {
    ck := h.cookie(name, "", time.Unix(0, 0))
    ck.MaxAge = -1
    c.SetCookie(ck)
}

func (h *AuthHandler) cookie(name, value string, exp time.Time) *http.Cookie {
    return &http.Cookie{
        Name:     name,
        Value:    value,
        Path:     "/",
        Expires:  exp,
        HttpOnly: true,
        Secure:   h.Cfg.IsProduction(),
        SameSite: http.SameSiteLaxMode,
    }
}

// stageUpload copies the named multipart file into UploadDir and returns
// its path, or "" when the field is absent or cannot be written.
func (h *AuthHandler) stageUpload(c echo.Context, field string) string {
    fh, err := c.FormFile(field)
    if err != nil {
        return ""
    }
    log := logging.FromContext(c.Request().Context())

    src, err := fh.Open()
    if err != nil {
        log.Warn("upload_open_failed", "field", field, "error", err)
        return ""
    }
    defer src.Close()

    if err := os.MkdirAll(h.Cfg.UploadDir, 0o755); err != nil {
        log.Warn("upload_dir_failed", "dir", h.Cfg.UploadDir, "error", err)
        return ""
    }
    ext := strings.ToLower(filepath.Ext(fh.Filename))
    dst, err := os.CreateTemp(h.Cfg.UploadDir, field+"-*"+ext)
    if err != nil {
        log.Warn("upload_create_failed", "field", field, "error", err)
        return ""
    }
    if _, err := io.Copy(dst, src); err != nil {
        _ = dst.Close()
        _ = os.Remove(dst.Name())
        log.Warn("upload_copy_failed", "field", field, "error", err)
        return ""
    }
    if err := dst.Close(); err != nil {
        _ = os.Remove(dst.Name())
        return ""
    }
    return dst.Name()
}
