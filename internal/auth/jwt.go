// Package auth provides credential hashing and token utilities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carried in access tokens. SessionID is set only on browser
// session tokens and ties the token to a sessions row.
type Claims struct {
	UserID    string `json:"uid"`
	IsAdmin   bool   `json:"adm,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies signed access tokens for web and app
// clients. API keys remain the authentication mechanism for the JSON API;
// these tokens back browser sessions and the token endpoint.
type TokenManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokenManager creates a TokenManager.
// Returns an error if the signing secret is empty (fatal config error).
func NewTokenManager(secret string, accessTTL time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	return &TokenManager{
		secret:    []byte(secret),
		issuer:    "geollm",
		accessTTL: accessTTL,
	}, nil
}

// IssueAccessToken creates a signed access token for a user.
func (m *TokenManager) IssueAccessToken(userID string, isAdmin bool) (string, error) {
	return m.IssueSessionToken(userID, isAdmin, "")
}

// IssueSessionToken creates a signed token bound to a web session row.
func (m *TokenManager) IssueSessionToken(userID string, isAdmin bool, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		IsAdmin:   isAdmin,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates a signed access token.
func (m *TokenManager) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}
