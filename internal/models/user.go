package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               int64      `json:"id" example:"1"`                            // User ID
	TelegramID       *int64     `json:"telegram_id,omitempty" example:"423187650"` // Telegram user ID, nil until linked
	TelegramUsername string     `json:"telegram_username" example:"johndoe"`       // Telegram @username
	Email            string     `json:"email" example:"user@example.com"`          // User email
	FirstName        string     `json:"first_name" example:"John"`                 // User first name
	LastName         string     `json:"last_name" example:"Doe"`                   // User last name
	AvatarURL        string     `json:"avatar_url,omitempty"`                      // Profile photo
	ReferralCode     string     `json:"referral_code" example:"BC-7F3K2Q"`         // Unique referral code
	IsVerified       bool       `json:"is_verified"`                               // Email/Telegram identity confirmed
	IsAdmin          bool       `json:"is_admin"`
	IsRestricted     bool       `json:"is_restricted"` // Soft restriction, accounts referenced by ledger rows are never hard-deleted
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Account struct {
	UserID    int64           `json:"user_id" db:"user_id"`
	Points    int64           `json:"points" db:"points"`   // whole points, never negative
	Wallet    decimal.Decimal `json:"wallet" db:"wallet"`   // mining balance, exact decimal
	Version   int             `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
