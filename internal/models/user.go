package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account in the marketplace
type User struct {
	ID             uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	Email          string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string         `gorm:"not null" json:"-"`
	CreditsBalance int64          `gorm:"not null;default:0" json:"credits_balance"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	IsAdmin        bool           `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
