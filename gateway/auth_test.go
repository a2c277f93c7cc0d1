package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, jwt.MapClaims{
		"uid": "user-7",
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
}

func TestJWTVerifierFallsBackToSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-9",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID)
}

func TestJWTVerifierRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, jwt.MapClaims{
		"uid": "user-7",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	require.ErrorIs(t, err, ErrExpiredCredential)
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(other)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticateStage(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	t.Run("no header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		res := Authenticate(r, v)
		assert.False(t, res.Authenticated)
		assert.ErrorIs(t, res.Err, ErrMissingCredential)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		r.Header.Set("Authorization", "Basic abc")
		res := Authenticate(r, v)
		assert.False(t, res.Authenticated)
		assert.ErrorIs(t, res.Err, ErrInvalidCredential)
	})

	t.Run("valid bearer", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"uid": "user-7", "exp": time.Now().Add(time.Hour).Unix()})
		r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		res := Authenticate(r, v)
		assert.True(t, res.Authenticated)
		assert.Equal(t, "user-7", res.Claims.UserID)
	})
}
