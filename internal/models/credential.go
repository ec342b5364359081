package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserCredential records a credential provisioned in the external engine on
// a user's behalf. Only the engine's credential id is stored; the secret
// itself never touches this database.
type UserCredential struct {
	ID                   uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	UserID               uuid.UUID `gorm:"type:text;index;not null" json:"user_id"`
	Name                 string    `gorm:"not null" json:"name"`
	CredentialType       string    `gorm:"not null" json:"credential_type"`
	ExternalCredentialID string    `gorm:"not null" json:"external_credential_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID
func (c *UserCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
