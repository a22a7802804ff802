package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nightlife/internal/models"
)

const (
	insertUserSQL = `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	userByEmailSQL = `
		SELECT id, email, name, role, password_hash, created_at
		FROM users
		WHERE email = $1
	`
)

// CreateUser registers an account. The password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.db.ExecContext(ctx, insertUserSQL,
		user.ID, user.Email, user.Name, string(user.Role), user.PasswordHash, user.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByEmail looks up an account by its normalized email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.db.QueryRowContext(ctx, userByEmailSQL, email).Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}
