// Package ledger is the credit economy's single source of truth: an
// append-only transaction log plus a cached per-user balance. Whether a run
// may proceed is decided here and nowhere else.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientCredits is returned when a debit would take the
	// balance negative. Nothing is written in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Service records credit transactions and reads balances.
type Service struct {
	db *gorm.DB
}

// New creates a ledger service.
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordTransaction appends a ledger row and mutates the user's cached
// balance in one atomic unit, returning the new balance. Amount is positive
// for top-ups and negative for usage. Concurrent transactions for the same
// user are serialized: on Postgres via a FOR UPDATE row lock, on SQLite via
// the single-writer connection setup.
func (s *Service) RecordTransaction(ctx context.Context, userID uuid.UUID, amount int64, description, referenceID string) (int64, error) {
	var newBalance int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var user models.User
		if err := q.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if amount < 0 && user.CreditsBalance+amount < 0 {
			return ErrInsufficientCredits
		}

		newBalance = user.CreditsBalance + amount
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("credits_balance", newBalance).Error; err != nil {
			return err
		}

		txn := models.CreditTransaction{
			UserID:       userID,
			Amount:       amount,
			ReferenceID:  referenceID,
			Description:  description,
			BalanceAfter: newBalance,
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return 0, err
	}

	slog.Debug("Credit transaction recorded",
		"user_id", userID,
		"amount", amount,
		"balance_after", newBalance,
		"reference_id", referenceID)
	return newBalance, nil
}

// DeductForRun debits the per-run price against a run reference.
func (s *Service) DeductForRun(ctx context.Context, userID uuid.UUID, cost int64, referenceID string) (int64, error) {
	return s.RecordTransaction(ctx, userID, -cost, "Workflow Execution", referenceID)
}

// GetBalance returns the user's cached balance. Pure read.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.CreditsBalance, nil
}

// ListTransactions returns the user's ledger rows, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txns []models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
