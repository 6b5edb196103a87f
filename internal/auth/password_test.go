// internal/auth/password_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("whatever", "not-an-encoded-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestSessionRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	token, err := CreateSession("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.NoError(t, err)

	userID, err := VerifySession(token)
	require.NoError(t, err)
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", userID)

	_, err = VerifySession(token + "tampered")
	assert.Error(t, err)
}
