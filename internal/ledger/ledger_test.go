package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/db"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.New(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func createTestUser(t *testing.T, database *gorm.DB, balance int64) uuid.UUID {
	t.Helper()
	user := models.User{Email: uuid.New().String() + "@test.com", PasswordHash: "x", CreditsBalance: balance}
	if err := database.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

func TestRecordTransactionUpdatesBalanceAndLedger(t *testing.T) {
	database := setupTestDB(t)
	svc := New(database)
	userID := createTestUser(t, database, 0)
	ctx := context.Background()

	balance, err := svc.RecordTransaction(ctx, userID, 100, "Credit purchase", "pay-1")
	if err != nil {
		t.Fatalf("top-up failed: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance after top-up = %d, want 100", balance)
	}

	balance, err = svc.DeductForRun(ctx, userID, 30, "run-1")
	if err != nil {
		t.Fatalf("deduction failed: %v", err)
	}
	if balance != 70 {
		t.Errorf("balance after deduction = %d, want 70", balance)
	}

	got, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if got != 70 {
		t.Errorf("GetBalance = %d, want 70", got)
	}

	txns, err := svc.ListTransactions(ctx, userID, 10)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("transaction count = %d, want 2", len(txns))
	}

	// Cached balance must equal the running sum of amounts.
	var sum int64
	for _, txn := range txns {
		sum += txn.Amount
	}
	if sum != got {
		t.Errorf("ledger sum = %d, cached balance = %d", sum, got)
	}
}

func TestDeductForRunInsufficientCreditsWritesNothing(t *testing.T) {
	database := setupTestDB(t)
	svc := New(database)
	userID := createTestUser(t, database, 10)
	ctx := context.Background()

	_, err := svc.DeductForRun(ctx, userID, 25, "run-1")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 10 {
		t.Errorf("balance = %d, want 10 (unchanged)", balance)
	}

	var count int64
	database.Model(&models.CreditTransaction{}).Where("user_id = ?", userID).Count(&count)
	if count != 0 {
		t.Errorf("transaction count = %d, want 0 (rejected debit must not be recorded)", count)
	}
}

func TestRecordTransactionUnknownUser(t *testing.T) {
	database := setupTestDB(t)
	svc := New(database)

	_, err := svc.RecordTransaction(context.Background(), uuid.New(), 10, "x", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	database := setupTestDB(t)
	svc := New(database)
	userID := createTestUser(t, database, 50)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.DeductForRun(ctx, userID, 10, uuid.New().String())
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientCredits):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 5 || rejected != 5 {
		t.Errorf("succeeded = %d, rejected = %d, want 5/5", succeeded, rejected)
	}

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("final balance = %d, want 0", balance)
	}

	var count int64
	database.Model(&models.CreditTransaction{}).Where("user_id = ?", userID).Count(&count)
	if count != 5 {
		t.Errorf("transaction count = %d, want 5", count)
	}
}
