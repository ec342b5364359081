// Package auth provides bcrypt password handling and JWT bearer
// authentication for the API.
package auth

import (
	"errors"

	"github.com/runforge/runforge/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailTaken         = errors.New("email already registered")
)

// LoginRequest represents a login or signup request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}
