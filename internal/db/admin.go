package db

import (
	"fmt"
	"log/slog"

	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateDefaultAdmin creates a default admin user on an empty database when
// auth.admin_password is configured.
func CreateDefaultAdmin(db *gorm.DB, cfg config.AuthConfig) error {
	if cfg.AdminPassword == "" {
		slog.Info("No admin password configured, skipping default admin creation")
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		slog.Info("Users already exist, skipping default admin creation")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        cfg.AdminEmail,
		PasswordHash: string(hashedPassword),
		IsAdmin:      true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("Default admin user created", "email", cfg.AdminEmail)
	return nil
}
