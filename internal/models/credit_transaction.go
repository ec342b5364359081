package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditTransaction is one row of the append-only credit ledger. Rows are
// never updated or deleted; the user's cached balance always equals the
// running sum of their transaction amounts.
type CreditTransaction struct {
	ID           uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:text;index;not null" json:"user_id"`
	Amount       int64     `gorm:"not null" json:"amount"` // positive for top-up, negative for usage
	ReferenceID  string    `json:"reference_id,omitempty"` // payment ID or execution ID
	Description  string    `json:"description"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
