package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/blackcoin/backend/internal/audit"
	"github.com/blackcoin/backend/internal/models"
)

// LedgerService applies point transfers between accounts. Every mutation of
// an account's points balance goes through here (or through AdminAdjust,
// which reuses the same transactional path against the reserve account), so
// the paired-entry zero-sum invariant holds for the whole ledger.
type LedgerService struct {
	db               *sql.DB
	audit            *audit.Logger
	reserveAccountID int64
	storeTimeout     time.Duration
}

func NewLedgerService(db *sql.DB) *LedgerService {
	reserveAccountID := int64(1)
	if envAccount := os.Getenv("RESERVE_ACCOUNT_ID"); envAccount != "" {
		if val, err := strconv.ParseInt(envAccount, 10, 64); err == nil {
			reserveAccountID = val
		}
	}
	storeTimeout := 5 * time.Second
	if envTimeout := os.Getenv("LEDGER_STORE_TIMEOUT"); envTimeout != "" {
		if val, err := time.ParseDuration(envTimeout); err == nil {
			storeTimeout = val
		}
	}
	return &LedgerService{
		db:               db,
		audit:            audit.NewLogger(),
		reserveAccountID: reserveAccountID,
		storeTimeout:     storeTimeout,
	}
}

// Transfer moves amount points from sender to recipient atomically and
// appends the matching DEBIT/CREDIT ledger pair. Preconditions are checked
// in order: sender exists, recipient exists, distinct accounts, positive
// amount, sufficient balance. None of the failure modes leave partial state.
func (s *LedgerService) Transfer(ctx context.Context, senderID, recipientID, amount int64, description string) (*models.TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	transferRef := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := s.transferTx(ctx, tx, senderID, recipientID, amount, transferRef, description, false)
	if err != nil {
		// Expected refusals go back to the caller untouched; only
		// infrastructure faults are audited.
		if !isTransferRefusal(err) {
			s.audit.LogError(transferRef, senderID, err)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(transferRef, senderID, err)
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	s.audit.LogTransfer(transferRef, senderID, recipientID, amount, "SUCCESS")
	return result, nil
}

// AdminAdjust credits (delta > 0) or debits (delta < 0) a user's points by
// transferring against the system reserve account, which alone may overdraw.
// Administrative changes therefore leave the same audit trail as user
// transfers.
func (s *LedgerService) AdminAdjust(ctx context.Context, userID, delta int64, reason string) (*models.TransferResult, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	transferRef := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var result *models.TransferResult
	if delta > 0 {
		result, err = s.transferTx(ctx, tx, s.reserveAccountID, userID, delta, transferRef, reason, true)
	} else {
		result, err = s.transferTx(ctx, tx, userID, s.reserveAccountID, -delta, transferRef, reason, false)
	}
	if err != nil {
		if !isTransferRefusal(err) {
			s.audit.LogError(transferRef, userID, err)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(transferRef, userID, err)
		return nil, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	s.audit.LogAdjustment(transferRef, userID, delta, reason)
	return result, nil
}

func (s *LedgerService) transferTx(ctx context.Context, tx *sql.Tx, senderID, recipientID, amount int64, transferRef, description string, allowOverdraft bool) (*models.TransferResult, error) {
	if senderID == recipientID {
		// Single lock; existence still reported ahead of the same-account error.
		if _, err := s.lockAccount(ctx, tx, senderID); err != nil {
			return nil, err
		}
		return nil, ErrSameAccount
	}

	// Lock accounts in ascending ID order to prevent deadlocks between
	// concurrent transfers touching the same pair.
	firstLock, secondLock := senderID, recipientID
	if senderID > recipientID {
		firstLock, secondLock = recipientID, senderID
	}

	first, err := s.lockAccount(ctx, tx, firstLock)
	if err != nil {
		return nil, err
	}
	second, err := s.lockAccount(ctx, tx, secondLock)
	if err != nil {
		return nil, err
	}

	sender, recipient := first, second
	if firstLock != senderID {
		sender, recipient = second, first
	}

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if !allowOverdraft && sender.Points < amount {
		return nil, ErrInsufficientBalance
	}

	if err := s.createLedgerEntry(ctx, tx, transferRef, sender.UserID, -amount, models.EntryDebit, sender.Points-amount, description); err != nil {
		return nil, err
	}
	if err := s.createLedgerEntry(ctx, tx, transferRef, recipient.UserID, amount, models.EntryCredit, recipient.Points+amount, description); err != nil {
		return nil, err
	}

	if err := s.updatePoints(ctx, tx, sender.UserID, sender.Points-amount, sender.Version); err != nil {
		return nil, err
	}
	if err := s.updatePoints(ctx, tx, recipient.UserID, recipient.Points+amount, recipient.Version); err != nil {
		return nil, err
	}

	return &models.TransferResult{
		TransferRef:      transferRef,
		SenderID:         sender.UserID,
		RecipientID:      recipient.UserID,
		Amount:           amount,
		SenderBalance:    sender.Points - amount,
		RecipientBalance: recipient.Points + amount,
	}, nil
}

func isTransferRefusal(err error) bool {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrSameAccount),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientBalance):
		return true
	}
	return false
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, userID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, points, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&account.UserID, &account.Points, &account.Version, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %d: %w", userID, err)
	}
	return &account, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, transferRef string, userID, amount int64, entryType string, balance int64, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (transfer_ref, user_id, amount, entry_type, balance, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transferRef, userID, amount, entryType, balance, description, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerService) updatePoints(ctx context.Context, tx *sql.Tx, userID, newPoints int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET points = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		newPoints, time.Now(), userID, version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %d", userID)
	}
	return nil
}

// GetBalance reads the current points and wallet balances for a user.
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var account models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, points, wallet, version, updated_at
		FROM accounts
		WHERE user_id = $1`, userID).Scan(&account.UserID, &account.Points, &account.Wallet, &account.Version, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return &account, nil
}

// ListEntries returns a user's ledger history, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, userID int64, limit, offset int) ([]models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transfer_ref, user_id, amount, entry_type, balance, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		log.Printf("[LEDGER] ListEntries query failed for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransferRef, &e.UserID, &e.Amount, &e.EntryType, &e.Balance, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
