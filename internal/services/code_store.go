package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackcoin/backend/internal/models"
)

// PostgresCodeStore keeps verification codes in the verification_codes
// table. The primary key on identity plus upsert semantics guarantee a
// single live code per identity even under concurrent issues.
type PostgresCodeStore struct {
	db *sql.DB
}

func NewPostgresCodeStore(db *sql.DB) *PostgresCodeStore {
	return &PostgresCodeStore{db: db}
}

func (s *PostgresCodeStore) PutCode(ctx context.Context, identity, code string, createdAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_codes (identity, code, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE
		SET code = EXCLUDED.code, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		identity, code, createdAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert verification code: %w", err)
	}
	return nil
}

func (s *PostgresCodeStore) GetCode(ctx context.Context, identity string) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, code, created_at, expires_at
		FROM verification_codes
		WHERE identity = $1`, identity).Scan(&vc.Identity, &vc.Code, &vc.CreatedAt, &vc.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read verification code: %w", err)
	}
	return &vc, nil
}

func (s *PostgresCodeStore) DeleteCode(ctx context.Context, identity string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	// Two callers can race on the same code; only one delete wins.
	if affected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// PurgeExpired removes stale rows; matched codes delete themselves on
// consumption so this only collects codes nobody ever verified.
func (s *PostgresCodeStore) PurgeExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, time.Now())
	return err
}
