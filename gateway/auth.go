package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrInvalidCredential = errors.New("invalid bearer credential")
	ErrExpiredCredential = errors.New("expired bearer credential")
)

// Claims is what a verified credential asserts about the caller.
type Claims struct {
	UserID  string
	Subject string
}

// Verifier checks a bearer token and extracts its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// JWTVerifier verifies HMAC-signed JWTs against a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredCredential
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidCredential
	}

	out := Claims{}
	if uid, ok := claims["uid"].(string); ok {
		out.UserID = uid
	}
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
		if out.UserID == "" {
			out.UserID = sub
		}
	}
	return out, nil
}

// AuthResult is the outcome of the authenticate stage. The stage always
// runs; whether a failed verification matters is decided against the
// matched route's policy.
type AuthResult struct {
	Claims        Claims
	Authenticated bool
	Err           error
}

// Authenticate extracts and verifies the bearer credential if present.
// It never writes to the response; absence or failure is recorded in the
// result for the driver to judge against the route policy.
func Authenticate(r *http.Request, verifier Verifier) AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" {
		return AuthResult{Err: ErrMissingCredential}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return AuthResult{Err: ErrInvalidCredential}
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		return AuthResult{Err: err}
	}
	return AuthResult{Claims: claims, Authenticated: true}
}
