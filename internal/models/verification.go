package models

import "time"

// VerificationCode binds a short-lived numeric code to an identity
// (email address or Telegram chat id). At most one live code per identity;
// issuing a new one supersedes the previous row.
type VerificationCode struct {
	Identity  string    `json:"identity" db:"identity"`
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Activity is one line of the per-user audit feed shown in the admin panel.
type Activity struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
