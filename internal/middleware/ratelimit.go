package middleware

import (
    "bytes"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "io"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/user-auth-service/internal/config"
    "github.com/iliyamo/user-auth-service/internal/logging"
)

// tokenBucket refills and takes one token from the bucket in KEYS[1].
// ARGV: now_ms, capacity, refill, interval_ms, ttl_ms.
// Returns {allowed (0|1), tokens left, retry after ms}.
var tokenBucket = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

local steps = math.floor(math.max(0, now - ts) / interval)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    ts = ts + steps * interval
end

local allowed, retry = 0, 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
else
    retry = math.max(0, interval - (now - ts))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[5]))
return {allowed, tokens, retry}
`)

// maxLoginPeek bounds how much of a login body is read to find the
// submitted identifier.
const maxLoginPeek = 16 << 10

// AuthLimits holds one limiter per unauthenticated auth route.
type AuthLimits struct {
    Register echo.MiddlewareFunc
    Login    echo.MiddlewareFunc
    Refresh  echo.MiddlewareFunc
}

// NewAuthLimits builds the auth route limiters.  register and refresh-token
// are limited per client address.  login is limited per client address and
// submitted identifier, and separately per identifier across all
// addresses, so guessing against one account is throttled even when it is
// spread over many clients and other accounts behind the same address keep
// working.  With limiting disabled or no Redis every limiter passes
// through; Redis errors fail open.
func NewAuthLimits(cfg config.RateLimitConfig, rdb *redis.Client) AuthLimits {
    if !cfg.Enabled || rdb == nil {
        pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
        return AuthLimits{Register: pass, Login: pass, Refresh: pass}
    }
    l := &limiter{rdb: rdb, prefix: cfg.Prefix}
    return AuthLimits{
        Register: l.middleware(rule{name: "register", bucket: cfg.Register, key: byClient}),
        Login: l.middleware(
            rule{name: "login", bucket: cfg.Login, key: byClientAndLogin},
            rule{name: "account", bucket: cfg.Account, key: byLogin},
        ),
        Refresh: l.middleware(rule{name: "refresh", bucket: cfg.Refresh, key: byClient}),
    }
}

// keyFunc returns the bucket key suffix for a request; ok=false skips the rule.
type keyFunc func(c echo.Context) (key string, ok bool)

type rule struct {
    name   string
    bucket config.Bucket
    key    keyFunc
}

type limiter struct {
    rdb    *redis.Client
    prefix string
}

type verdict struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

func (l *limiter) middleware(rules ...rule) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            for _, r := range rules {
                suffix, ok := r.key(c)
                if !ok {
                    continue
                }
                key := l.prefix + ":" + r.name + ":" + suffix
                v, err := l.take(c, key, r.bucket)
                if err != nil {
                    logging.FromContext(c.Request().Context()).Warn("ratelimit_unavailable", "key", key, "error", err)
                    continue
                }
                h := c.Response().Header()
                h.Set("X-RateLimit-Limit", strconv.Itoa(r.bucket.Capacity))
                h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
                if !v.allowed {
                    secs := int(math.Ceil(v.retry.Seconds()))
                    h.Set("Retry-After", strconv.Itoa(secs))
                    logging.FromContext(c.Request().Context()).Info("ratelimit_block", "rule", r.name, "retry_after", secs)
                    return c.JSON(http.StatusTooManyRequests, echo.Map{
                        "message":     "Too many requests.",
                        "retry_after": secs,
                    })
                }
            }
            return next(c)
        }
    }
}

func (l *limiter) take(c echo.Context, key string, b config.Bucket) (verdict, error) {
    res, err := tokenBucket.Run(c.Request().Context(), l.rdb, []string{key},
        time.Now().UnixMilli(), b.Capacity, b.Refill, b.Interval.Milliseconds(), b.TTL().Milliseconds(),
    ).Int64Slice()
    if err != nil {
        return verdict{}, err
    }
    if len(res) != 3 {
        return verdict{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
    }
    return verdict{allowed: res[0] == 1, remaining: res[1], retry: time.Duration(res[2]) * time.Millisecond}, nil
}

func clientIP(c echo.Context) string {
    if ip := c.RealIP(); ip != "" {
        return ip
    }
    return "unknown"
}

func byClient(c echo.Context) (string, bool) {
    return "ip:" + clientIP(c), true
}

func byClientAndLogin(c echo.Context) (string, bool) {
    id := loginIdentifier(c)
    if id == "" {
        id = "none"
    }
    return "ip:" + clientIP(c) + ":id:" + id, true
}

func byLogin(c echo.Context) (string, bool) {
    id := loginIdentifier(c)
    return "id:" + id, id != ""
}

// loginIdentifier returns a digest of the case-folded username (or, when
// absent, email) of a JSON login body, or "" when none is present.  The
// body is restored for the handler.  The result is cached on the context
// since several rules ask for it.
func loginIdentifier(c echo.Context) string {
    const ctxKey = "ratelimit.login_id"
    if v, ok := c.Get(ctxKey).(string); ok {
        return v
    }
    id := ""
    req := c.Request()
    if req.Body != nil && strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
        peek, err := io.ReadAll(io.LimitReader(req.Body, maxLoginPeek))
        req.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(peek), req.Body), Closer: req.Body}
        if err == nil {
            var body struct {
                Username string `json:"username"`
                Email    string `json:"email"`
            }
            if json.Unmarshal(peek, &body) == nil {
                id = identifierDigest(body.Username, body.Email)
            }
        }
    }
    c.Set(ctxKey, id)
    return id
}

func identifierDigest(username, email string) string {
    v := "u:" + strings.ToLower(strings.TrimSpace(username))
    if v == "u:" {
        v = "e:" + strings.ToLower(strings.TrimSpace(email))
        if v == "e:" {
            return ""
        }
    }
    sum := sha256.Sum256([]byte(v))
    return hex.EncodeToString(sum[:12])
}

type readCloser struct {
    io.Reader
    io.Closer
}
