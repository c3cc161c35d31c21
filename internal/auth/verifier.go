package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier resolves a bearer token to an authenticated user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (int, error)
}

type sessionClaims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens issued by the marketplace's auth
// service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for the shared signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// VerifyToken parses and validates the token and returns the user id.
func (v *JWTVerifier) VerifyToken(_ context.Context, token string) (int, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

var _ TokenVerifier = (*JWTVerifier)(nil)
