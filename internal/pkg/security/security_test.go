package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenRoundTrip(t *testing.T) {
	token, err := GenerateAuthToken(42, "admin", time.Hour, "s3cret")
	require.NoError(t, err)

	claims, err := VerifyAuthToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestAuthTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateAuthToken(7, "user", time.Hour, "right")
	require.NoError(t, err)

	_, err = VerifyAuthToken(token, "wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)

	fallback, err := GenerateAuthToken(7, "user", -time.Hour, "right")
	require.NoError(t, err)
	// A non-positive ttl falls back to the default lifetime.
	_, err = VerifyAuthToken(fallback, "right")
	assert.NoError(t, err)

	past := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := past.SignedString([]byte("right"))
	require.NoError(t, err)
	_, err = VerifyAuthToken(signed, "right")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthTokenRejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AuthClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = VerifyAuthToken(s, "right")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSecret(t *testing.T) {
	_, err := GenerateAuthToken(1, "user", time.Hour, "")
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = VerifyAuthToken("x", "")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestGenerateDigits(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateDigits(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.Equal(t, "", strings.Trim(code, AlphabetDigits))
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 150)
}

func TestGenerateSecureStringRejectsBadInput(t *testing.T) {
	_, err := GenerateSecureString(AlphabetBase62, 0)
	assert.Error(t, err)
	_, err = GenerateSecureString("a", 5)
	assert.Error(t, err)
}
