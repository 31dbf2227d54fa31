package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Authenticator is the identity collaborator: it resolves a bearer token
// to the (user, device) pair behind a connection.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (userID int, deviceID string, err error)
}

// Claims carried inside session tokens.
type Claims struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HMAC-signed session tokens locally.
type JWTAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTAuthenticator builds an authenticator for the given signing
// secret. ttl is used when issuing tokens; zero falls back to 24h.
func NewJWTAuthenticator(secret string, ttl time.Duration) *JWTAuthenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTAuthenticator{secret: []byte(secret), ttl: ttl}
}

// Authenticate parses and validates the token. The device id claim is
// optional; connections without one fall back to the handshake header.
func (a *JWTAuthenticator) Authenticate(_ context.Context, tokenString string) (int, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return 0, "", ErrInvalidToken
	}
	return claims.UserID, claims.DeviceID, nil
}

// IssueToken signs a session token for a user and device.
func (a *JWTAuthenticator) IssueToken(userID int, deviceID string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

var _ Authenticator = (*JWTAuthenticator)(nil)
