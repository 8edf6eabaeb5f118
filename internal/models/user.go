package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// User roles
const (
	RolePassenger = "passenger"
	RoleStaff     = "staff"
	RoleAdmin     = "admin"
)

// User is an account able to book or administer schedules
type User struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	Name         string         `json:"name" db:"name"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// HasRole checks if user has a specific role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user may administer schedules and bookings
func (u *User) IsStaff() bool {
	return u.HasRole(RoleStaff) || u.HasRole(RoleAdmin)
}

// LoginRequest is the credential check request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued access token
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	TokenType   string    `json:"token_type"`
	User        *User     `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}
