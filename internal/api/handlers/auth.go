package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/audit"
	"github.com/runforge/runforge/internal/auth"
	"gorm.io/gorm"
)

// Signup registers a new user account and returns a JWT session
func Signup(authenticator *auth.Authenticator, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		resp, err := authenticator.Signup(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				c.JSON(http.StatusConflict, ErrorResponse{Error: "email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		audit.LogAction(db, resp.User.ID, audit.ActionSignup, "user:"+resp.User.ID.String(), nil)
		c.JSON(http.StatusCreated, resp)
	}
}

// Login authenticates a user and returns a JWT token
func Login(authenticator *auth.Authenticator, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		resp, err := authenticator.Login(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		audit.LogAction(db, resp.User.ID, audit.ActionLogin, "user:"+resp.User.ID.String(), nil)
		c.JSON(http.StatusOK, resp)
	}
}

// Me returns the authenticated user's profile
func Me(c *gin.Context) {
	user := getUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, user)
}
