package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/blackcoin/backend/internal/models"
)

// UserService serves profile reads and the admin user-management surface.
// Accounts referenced by ledger history are never deleted; restriction is a
// soft flag flipped through UpdateUser.
type UserService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewUserService(db *sql.DB, ledger *LedgerService) *UserService {
	return &UserService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// GetProfile returns the authenticated user's profile and balances
// @Summary Get profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /me [get]
func (s *UserService) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	// telegram_* columns are NULL for email signups; email and avatar_url
	// are NULL for Telegram signups.
	var telegramID sql.NullInt64
	var telegramUsername, email, avatarURL sql.NullString
	err := s.db.QueryRow(`
		SELECT id, telegram_id, telegram_username, email, first_name, last_name, avatar_url,
		       referral_code, is_verified, is_admin, is_restricted, created_at
		FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &telegramID, &telegramUsername, &email, &user.FirstName,
			&user.LastName, &avatarURL, &user.ReferralCode, &user.IsVerified,
			&user.IsAdmin, &user.IsRestricted, &user.CreatedAt)
	if err != nil {
		log.Printf("[USER] Profile lookup failed for %d: %v", userID, err)
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if telegramID.Valid {
		user.TelegramID = &telegramID.Int64
	}
	user.TelegramUsername = telegramUsername.String
	user.Email = email.String
	user.AvatarURL = avatarURL.String

	account, err := s.ledger.GetBalance(r.Context(), userID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		SendErrorResponse(w, "Failed to read balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user":    user,
		"account": account,
	})
}

// ListUsers returns every user with ledger history and activity feed
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} map[string]interface{}
// @Router /admin/users [get]
func (s *UserService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT u.id, u.telegram_username, u.email, u.first_name, u.last_name,
		       u.referral_code, u.is_verified, u.is_admin, u.is_restricted, u.created_at,
		       a.points, a.wallet
		FROM users u
		LEFT JOIN accounts a ON a.user_id = u.id
		ORDER BY u.id`)
	if err != nil {
		log.Printf("[ADMIN] User listing failed: %v", err)
		SendErrorResponse(w, "Failed to list users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type adminUser struct {
		models.User
		Points     int64                `json:"points"`
		Wallet     decimal.Decimal      `json:"wallet"`
		Entries    []models.LedgerEntry `json:"entries"`
		Activities []models.Activity    `json:"activities"`
	}

	var result []adminUser
	for rows.Next() {
		var u adminUser
		var telegramUsername, email sql.NullString
		var points sql.NullInt64
		var wallet decimal.NullDecimal
		if err := rows.Scan(&u.ID, &telegramUsername, &email, &u.FirstName, &u.LastName,
			&u.ReferralCode, &u.IsVerified, &u.IsAdmin, &u.IsRestricted, &u.CreatedAt,
			&points, &wallet); err != nil {
			SendErrorResponse(w, "Failed to list users", http.StatusInternalServerError, nil)
			return
		}
		u.TelegramUsername = telegramUsername.String
		u.Email = email.String
		u.Points = points.Int64
		if wallet.Valid {
			u.Wallet = wallet.Decimal
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list users", http.StatusInternalServerError, nil)
		return
	}

	// Query-by-key instead of an in-memory object graph.
	for i := range result {
		entries, err := s.ledger.ListEntries(r.Context(), result[i].ID, 20, 0)
		if err == nil {
			result[i].Entries = entries
		}
		activities, err := s.listActivities(result[i].ID, 20)
		if err == nil {
			result[i].Activities = activities
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// UpdateUser flips moderation flags on a user
// @Summary Update user flags
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /admin/users/{userId} [put]
func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		IsRestricted *bool `json:"is_restricted"`
		IsAdmin      *bool `json:"is_admin"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if req.IsRestricted == nil && req.IsAdmin == nil {
		SendErrorResponse(w, "No fields to update", http.StatusBadRequest, nil)
		return
	}

	if req.IsRestricted != nil {
		if _, err := s.db.Exec(`UPDATE users SET is_restricted = $1 WHERE id = $2`, *req.IsRestricted, userID); err != nil {
			SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
			return
		}
	}
	if req.IsAdmin != nil {
		if _, err := s.db.Exec(`UPDATE users SET is_admin = $1 WHERE id = $2`, *req.IsAdmin, userID); err != nil {
			SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
			return
		}
	}

	s.RecordActivity(userID, "moderation flags updated")
	log.Printf("[ADMIN] User %d flags updated", userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "User updated"})
}

// AdjustPoints applies an administrative point credit or debit
// @Summary Adjust user points
// @Description Credit (positive delta) or debit (negative delta) through the reserve account
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /admin/users/{userId}/points [post]
func (s *UserService) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Delta  int64  `json:"delta" validate:"required"`
		Reason string `json:"reason" validate:"required,max=255"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.ledger.AdminAdjust(r.Context(), userID, req.Delta, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInvalidAmount):
			SendErrorResponse(w, "Delta must be non-zero", http.StatusBadRequest, nil)
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, "User balance too low for debit", http.StatusConflict, nil)
		default:
			log.Printf("[ADMIN] Point adjustment failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Adjustment failed", http.StatusInternalServerError, nil)
		}
		return
	}

	s.RecordActivity(userID, req.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// AdjustWallet applies an administrative wallet (mining balance) change
// @Summary Adjust user wallet
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /admin/users/{userId}/wallet [post]
func (s *UserService) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Delta  decimal.Decimal `json:"delta"`
		Reason string          `json:"reason" validate:"required,max=255"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Delta.IsZero() {
		SendErrorResponse(w, "Delta must be non-zero", http.StatusBadRequest, nil)
		return
	}

	// Wallet may not go negative; the WHERE clause enforces it atomically.
	result, err := s.db.Exec(`
		UPDATE accounts
		SET wallet = wallet + $1, version = version + 1, updated_at = NOW()
		WHERE user_id = $2 AND wallet + $1 >= 0`, req.Delta, userID)
	if err != nil {
		log.Printf("[ADMIN] Wallet adjustment failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Adjustment failed", http.StatusInternalServerError, nil)
		return
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		SendErrorResponse(w, "Account not found or wallet balance too low", http.StatusConflict, nil)
		return
	}

	s.RecordActivity(userID, req.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Wallet updated"})
}

// RecordActivity appends a line to the user's audit feed. Failures are
// logged and swallowed; the feed is advisory.
func (s *UserService) RecordActivity(userID int64, description string) {
	if _, err := s.db.Exec(`INSERT INTO activities (user_id, description, created_at) VALUES ($1, $2, NOW())`, userID, description); err != nil {
		log.Printf("[USER] Failed to record activity for %d: %v", userID, err)
	}
}

func (s *UserService) listActivities(userID int64, limit int) ([]models.Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, description, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
