package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightlife/internal/auth"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

func newService() (Service, *auth.TokenManager) {
	tokens := auth.NewTokenManager("0123456789abcdef", time.Hour)
	return New(store.NewMemory(), tokens), tokens
}

func TestSignupAndLogin(t *testing.T) {
	svc, tokens := newService()
	ctx := context.Background()

	session, err := svc.Signup(ctx, SignupRequest{Email: "Host@Example.com", Name: "Host", Password: "correct horse", Role: models.RoleHost})
	require.NoError(t, err)
	assert.Equal(t, "host@example.com", session.User.Email)
	assert.NotEqual(t, "correct horse", string(session.User.PasswordHash))

	principal, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleHost, principal.Role)

	login, err := svc.Login(ctx, "HOST@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "host@example.com", "wrong password")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	_, err = svc.Signup(ctx, SignupRequest{Email: "host@example.com", Password: "another one"})
	assert.ErrorIs(t, err, store.ErrUserExists)
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newService()

	tests := map[string]SignupRequest{
		"bad email":      {Email: "nope", Password: "long enough"},
		"short password": {Email: "a@example.com", Password: "short"},
		"admin role":     {Email: "a@example.com", Password: "long enough", Role: models.RoleAdmin},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), req)
			assert.ErrorIs(t, err, store.ErrValidation)
		})
	}
}
