package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nightlife/internal/models"
	"nightlife/internal/store"
)

const minPasswordLength = 8

// Store describes the persistence operations required by the user service.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Issuer signs session tokens.
type Issuer interface {
	Issue(user *models.User) (string, time.Time, error)
}

// SignupRequest registers an account.
type SignupRequest struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Session is returned after signup or login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Service exposes user-related workflows.
type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
}

type service struct {
	store  Store
	issuer Issuer
	now    func() time.Time
}

// New wires a Service backed by the provided Store.
func New(store Store, issuer Issuer) Service {
	return &service{store: store, issuer: issuer, now: time.Now}
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var problems []string
	if _, err := mail.ParseAddress(email); err != nil {
		problems = append(problems, "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	role := req.Role
	switch role {
	case "":
		role = models.RoleGuest
	case models.RoleGuest, models.RoleHost:
	default:
		problems = append(problems, "role must be guest or host")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(problems, "; "))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return s.session(user)
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, store.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, store.ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *service) session(user *models.User) (*Session, error) {
	token, expAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expAt, User: user}, nil
}
