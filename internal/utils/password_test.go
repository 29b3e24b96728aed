package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_SaltedAndVerifiable(t *testing.T) {
	t.Parallel()

	a, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "secret1", a)
	assert.NotEqual(t, a, b)
	assert.True(t, VerifyPassword(a, "secret1"))
	assert.False(t, VerifyPassword(a, "secret2"))
}
