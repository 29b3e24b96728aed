package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"  // sentinel for rejected tokens
    "fmt"     // error wrapping
    "strconv" // user ids travel as decimal strings in the sub claim
    "time"    // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
    "github.com/google/uuid"       // unique token ids
)

// ErrInvalidToken is returned for any token that fails parsing, signature,
// algorithm or expiry checks, or whose subject is not a user id.
var ErrInvalidToken = errors.New("invalid token")

// SignedToken is a serialized JWT along with its expiry.  Both access and
// refresh tokens use this shape; they differ only in secret and lifetime.
type SignedToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT whose subject is the user id.
// Access tokens are short-lived and authorize calls to protected endpoints.
func NewAccessToken(secret string, userID uint64, ttl time.Duration) (SignedToken, error) {
    return sign(secret, userID, ttl, "")
}

// NewRefreshToken builds and signs an HS256 JWT for the refresh flow.  Each
// token carries a random jti so two tokens minted for the same user in the
// same second still differ; rotation depends on that.
func NewRefreshToken(secret string, userID uint64, ttl time.Duration) (SignedToken, error) {
    return sign(secret, userID, ttl, uuid.NewString())
}

func sign(secret string, userID uint64, ttl time.Duration, jti string) (SignedToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.RegisteredClaims{
        Subject:   strconv.FormatUint(userID, 10),
        IssuedAt:  jwt.NewNumericDate(now),
        ExpiresAt: jwt.NewNumericDate(exp),
        ID:        jti,
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SignedToken{}, fmt.Errorf("sign token: %w", err)
    }
    return SignedToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies signature, algorithm and expiry of raw using secret
// and returns the user id from the sub claim.
func ParseToken(raw, secret string) (uint64, error) {
    var claims jwt.RegisteredClaims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
    )
    if err != nil || !tok.Valid {
        return 0, ErrInvalidToken
    }
    id, err := strconv.ParseUint(claims.Subject, 10, 64)
    if err != nil || id == 0 {
        return 0, ErrInvalidToken
    }
    return id, nil
}
