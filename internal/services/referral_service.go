package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

// ReferralService renders shareable referral links as QR images and resolves
// incoming referral codes back to the owning user.
type ReferralService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
}

func NewReferralService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService) *ReferralService {
	return &ReferralService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
	}
}

// GenerateReferralQR returns the user's referral link and a base64 PNG QR
// code encoding it.
func (s *ReferralService) GenerateReferralQR(ctx context.Context, userID int64) (string, string, error) {
	var referralCode string
	err := s.db.QueryRowContext(ctx, `SELECT referral_code FROM users WHERE id = $1`, userID).Scan(&referralCode)
	if err == sql.ErrNoRows {
		return "", "", ErrAccountNotFound
	}
	if err != nil {
		return "", "", err
	}

	link := fmt.Sprintf("%s?ref=%s", viper.GetString("frontend.url"), referralCode)

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return link, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveReferral maps a referral code to its owner, caching hits briefly so
// viral bursts don't hammer the users table.
func (s *ReferralService) ResolveReferral(ctx context.Context, code string) (int64, error) {
	key := fmt.Sprintf("referral:%s", code)

	if s.redis != nil {
		if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var userID int64
			if err := json.Unmarshal(data, &userID); err == nil {
				return userID, nil
			}
		}
	}

	var userID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE referral_code = $1`, code).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(userID); err == nil {
			s.redis.Set(ctx, key, data, 5*time.Minute)
		}
	}

	return userID, nil
}

// CreditSignup links a new user to the referrer behind the code and pays the
// referrer the signup bonus. Self-referral resolves to the new user's own id
// and is rejected. An unknown code is reported back so the caller can decide
// whether it matters.
func (s *ReferralService) CreditSignup(ctx context.Context, code string, newUserID int64) error {
	referrerID, err := s.ResolveReferral(ctx, code)
	if err != nil {
		return err
	}
	if referrerID == newUserID {
		return ErrSameAccount
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE users SET referred_by = $1 WHERE id = $2 AND referred_by IS NULL`, referrerID, newUserID); err != nil {
		return err
	}

	bonus := viper.GetInt64("referral.bonus_points")
	if bonus <= 0 {
		bonus = 50
	}

	_, err = s.ledger.AdminAdjust(ctx, referrerID, bonus, fmt.Sprintf("referral bonus for signup of user %d", newUserID))
	return err
}
