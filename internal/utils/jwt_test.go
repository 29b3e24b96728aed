package utils

import (
    "strconv"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const (
    accessSecret  = "test-access-secret"
    refreshSecret = "test-refresh-secret"
)

func TestNewAccessToken_RoundTrip(t *testing.T) {
    t.Parallel()

    tok, err := NewAccessToken(accessSecret, 42, 15*time.Minute)
    require.NoError(t, err)
    require.NotEmpty(t, tok.Token)
    assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 2*time.Second)

    id, err := ParseToken(tok.Token, accessSecret)
    require.NoError(t, err)
    assert.Equal(t, uint64(42), id)
}

func TestParseToken_WrongSecret(t *testing.T) {
    t.Parallel()

    tok, err := NewRefreshToken(refreshSecret, 42, time.Hour)
    require.NoError(t, err)

    _, err = ParseToken(tok.Token, accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
    t.Parallel()

    tok, err := NewAccessToken(accessSecret, 42, -time.Minute)
    require.NoError(t, err)

    _, err = ParseToken(tok.Token, accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_RejectsUnsignedToken(t *testing.T) {
    t.Parallel()

    claims := jwt.RegisteredClaims{
        Subject:   strconv.Itoa(42),
        ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
    }
    raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
    require.NoError(t, err)

    _, err = ParseToken(raw, accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_RejectsMissingExpiryAndBadSubject(t *testing.T) {
    t.Parallel()

    noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"}).
        SignedString([]byte(accessSecret))
    require.NoError(t, err)
    _, err = ParseToken(noExp, accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)

    badSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
        Subject:   "not-a-number",
        ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
    }).SignedString([]byte(accessSecret))
    require.NoError(t, err)
    _, err = ParseToken(badSub, accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)

    _, err = ParseToken("garbage", accessSecret)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshToken_UniquePerCall(t *testing.T) {
    t.Parallel()

    a, err := NewRefreshToken(refreshSecret, 7, time.Hour)
    require.NoError(t, err)
    b, err := NewRefreshToken(refreshSecret, 7, time.Hour)
    require.NoError(t, err)

    assert.NotEqual(t, a.Token, b.Token)
}
