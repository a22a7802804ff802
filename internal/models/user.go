package models

import "time"

// Role gates what an authenticated user may do.
type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// CanHost reports whether the role may create and manage events.
func (r Role) CanHost() bool {
	return r == RoleHost || r == RoleAdmin
}

// User is an account able to sign in.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
