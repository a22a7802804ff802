// Package auth issues and verifies the bearer tokens used by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nightlife/internal/models"
)

var (
	// ErrTokenEmpty is returned when no token was supplied.
	ErrTokenEmpty = errors.New("token is empty")
	// ErrTokenInvalid is returned for malformed, expired or badly signed tokens.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenUnexpectedSignature is returned when a token is not HMAC signed.
	ErrTokenUnexpectedSignature = errors.New("unexpected token signing method")
)

// Principal is the authenticated caller carried by a token.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   models.Role
}

// CanManage reports whether the principal may manage an event owned by hostID.
func (p Principal) CanManage(hostID string) bool {
	return p.Role == models.RoleAdmin || (p.Role.CanHost() && p.UserID == hostID)
}

// TokenManager signs HS256 tokens.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager returns a TokenManager using secret.
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Issue signs a token for user.
func (m *TokenManager) Issue(user *models.User) (string, time.Time, error) {
	issuedAt := m.now()
	expAt := issuedAt.Add(m.expiry)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  string(user.Role),
		"exp":   expAt.Unix(),
		"iat":   issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenStr, expAt, nil
}

// Parse verifies token and returns its principal.
func (m *TokenManager) Parse(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrTokenEmpty
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenUnexpectedSignature
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)

	return Principal{UserID: sub, Email: email, Name: name, Role: models.Role(role)}, nil
}
