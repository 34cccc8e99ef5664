package services

import (
	"context"
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/blackcoin/backend/internal/models"
)

type AuthService struct {
	db           *sql.DB
	redis        *redis.Client
	validator    *validator.Validate
	verification *VerificationService
	referrals    *ReferralService
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email            string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password         string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	FirstName        string `json:"first_name" validate:"required,min=2" example:"John"`        // User first name
	LastName         string `json:"last_name" validate:"omitempty,min=2" example:"Doe"`         // User last name
	TelegramUsername string `json:"telegram_username" validate:"omitempty,min=3"`               // Telegram @username
	ReferralCode     string `json:"referral_code" validate:"omitempty,min=4"`                   // Inviter's referral code
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// VerifyAccountRequest carries the emailed code back to the backend.
type VerifyAccountRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric,len=6"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`                                                    // User information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, verification *VerificationService, referrals *ReferralService) *AuthService {
	return &AuthService{
		db:           db,
		redis:        redisClient,
		validator:    validator.New(),
		verification: verification,
		referrals:    referrals,
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user and email a verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} map[string]string "Registration accepted, verification pending"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	referralCode := generateReferralCode()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRow(`
		INSERT INTO users (email, password_hash, first_name, last_name, telegram_username, referral_code)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		strings.ToLower(req.Email), hashedPassword, req.FirstName, req.LastName, req.TelegramUsername, referralCode).Scan(&userID)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	_, err = tx.Exec(`INSERT INTO accounts (user_id, points, wallet, version, updated_at) VALUES ($1, 0, 0, 1, NOW())`, userID)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created - ID: %d, Email: %s, verification pending", userID, req.Email)

	if req.ReferralCode != "" {
		// A bad code should not fail the signup itself.
		if err := s.referrals.CreditSignup(r.Context(), req.ReferralCode, userID); err != nil {
			log.Printf("[AUTH] Referral credit skipped for user %d (code %s): %v", userID, req.ReferralCode, err)
		}
	}

	delivered := true
	if _, err := s.verification.Issue(r.Context(), strings.ToLower(req.Email)); err != nil {
		if !errors.Is(err, ErrNotificationFailed) {
			log.Printf("[AUTH] Code issue failed for %s: %v", req.Email, err)
			s.sendErrorResponse(w, "Failed to send verification code", http.StatusInternalServerError, nil)
			return
		}
		// Code is persisted; the client can request a resend.
		delivered = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":   "Account created. Check your email for the verification code.",
		"delivered": delivered,
	})
}

// VerifyAccount confirms the emailed code and activates the user
// @Summary Verify account
// @Description Consume the verification code and mark the user verified
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyAccountRequest true "Verification request"
// @Success 200 {object} map[string]string "Account verified"
// @Failure 400 {string} string "Invalid or expired code"
// @Router /auth/verify [post]
func (s *AuthService) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req VerifyAccountRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(req.Email)
	if err := s.verification.Verify(r.Context(), email, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrCodeExpired):
			s.sendErrorResponse(w, "Verification code expired", http.StatusBadRequest, nil)
		case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch):
			s.sendErrorResponse(w, "Invalid verification code", http.StatusBadRequest, nil)
		default:
			log.Printf("[AUTH] Verification failed for %s: %v", email, err)
			s.sendErrorResponse(w, "Verification unavailable, try again", http.StatusServiceUnavailable, nil)
		}
		return
	}

	if _, err := s.db.Exec(`UPDATE users SET is_verified = true WHERE email = $1`, email); err != nil {
		log.Printf("[AUTH] Failed to mark %s verified: %v", email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account verified: %s", email)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Account verified successfully"})
}

// ResendCode issues a fresh verification code for an unverified account
// @Summary Resend verification code
// @Tags auth
// @Accept json
// @Produce json
// @Router /auth/resend-code [post]
func (s *AuthService) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(req.Email)
	var verified bool
	err := s.db.QueryRow(`SELECT is_verified FROM users WHERE email = $1`, email).Scan(&verified)
	if err != nil || verified {
		// Do not reveal whether the address exists.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "If the account exists, a code was sent"})
		return
	}

	delivered := true
	if _, err := s.verification.Issue(r.Context(), email); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.sendErrorResponse(w, "Too many codes requested, try again later", http.StatusTooManyRequests, nil)
			return
		}
		if !errors.Is(err, ErrNotificationFailed) {
			s.sendErrorResponse(w, "Failed to send verification code", http.StatusInternalServerError, nil)
			return
		}
		delivered = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":   "If the account exists, a code was sent",
		"delivered": delivered,
	})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 403 {string} string "Account not verified or restricted"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, email, first_name, last_name, referral_code, is_verified, is_admin, is_restricted, password_hash
		FROM users WHERE email = $1`, strings.ToLower(req.Email)).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.ReferralCode,
			&user.IsVerified, &user.IsAdmin, &user.IsRestricted, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !user.IsVerified {
		s.sendErrorResponse(w, "Account not verified", http.StatusForbidden, nil)
		return
	}
	if user.IsRestricted {
		s.sendErrorResponse(w, "Account restricted", http.StatusForbidden, nil)
		return
	}

	if _, err := s.db.Exec(`UPDATE users SET last_login = NOW() WHERE id = $1`, user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for user %d: %v", user.ID, err)
	}

	token, err := generateJWT(user.ID, user.IsAdmin)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// TelegramLogin authenticates a Telegram login-widget payload
// @Summary Telegram login
// @Description Verify the signed Telegram payload and create the user on first login
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 403 {string} string "Invalid Telegram data"
// @Router /auth/telegram [post]
func (s *AuthService) TelegramLogin(w http.ResponseWriter, r *http.Request) {
	var payload map[string]string

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if !verifyTelegramAuth(payload, viper.GetString("telegram.bot_token")) {
		log.Printf("[AUTH] Telegram auth HMAC check failed from IP: %s", r.RemoteAddr)
		s.sendErrorResponse(w, "Invalid Telegram data", http.StatusForbidden, nil)
		return
	}

	telegramID, err := strconv.ParseInt(payload["id"], 10, 64)
	if err != nil {
		s.sendErrorResponse(w, "Invalid Telegram data", http.StatusForbidden, nil)
		return
	}

	user, err := s.findOrCreateTelegramUser(telegramID, payload)
	if err != nil {
		log.Printf("[AUTH] Telegram user upsert failed for %d: %v", telegramID, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	if user.IsRestricted {
		s.sendErrorResponse(w, "Account restricted", http.StatusForbidden, nil)
		return
	}

	token, err := generateJWT(user.ID, user.IsAdmin)
	if err != nil {
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Telegram login successful for user %d (telegram %d)", user.ID, telegramID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *user})
}

func (s *AuthService) findOrCreateTelegramUser(telegramID int64, payload map[string]string) (*models.User, error) {
	var user models.User
	// Accounts created through Telegram have no email row value.
	var email sql.NullString
	err := s.db.QueryRow(`
		SELECT id, email, first_name, last_name, referral_code, is_verified, is_admin, is_restricted
		FROM users WHERE telegram_id = $1`, telegramID).
		Scan(&user.ID, &email, &user.FirstName, &user.LastName, &user.ReferralCode,
			&user.IsVerified, &user.IsAdmin, &user.IsRestricted)
	if err == nil {
		user.Email = email.String
		user.TelegramID = &telegramID
		return &user, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	referralCode := generateReferralCode()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Telegram identity is proven by the HMAC check, so the user starts
	// verified even without an email on file.
	var userID int64
	err = tx.QueryRow(`
		INSERT INTO users (telegram_id, telegram_username, first_name, last_name, avatar_url, referral_code, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, true) RETURNING id`,
		telegramID, payload["username"], payload["first_name"], payload["last_name"], payload["photo_url"], referralCode).Scan(&userID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`INSERT INTO accounts (user_id, points, wallet, version, updated_at) VALUES ($1, 0, 0, 1, NOW())`, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.User{
		ID:               userID,
		TelegramID:       &telegramID,
		TelegramUsername: payload["username"],
		FirstName:        payload["first_name"],
		LastName:         payload["last_name"],
		AvatarURL:        payload["photo_url"],
		ReferralCode:     referralCode,
		IsVerified:       true,
	}, nil
}

// verifyTelegramAuth checks the login-widget signature: HMAC-SHA256 over the
// sorted key=value lines with SHA256(bot token) as the key, plus a 24h
// freshness window on auth_date.
func verifyTelegramAuth(data map[string]string, botToken string) bool {
	checkHash, ok := data["hash"]
	if !ok || botToken == "" {
		return false
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+data[k])
	}
	dataCheckString := strings.Join(pairs, "\n")

	secretKey := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secretKey[:])
	mac.Write([]byte(dataCheckString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(checkHash)) {
		return false
	}

	authDate, err := strconv.ParseInt(data["auth_date"], 10, 64)
	if err != nil {
		return false
	}
	return authDate+86400 > time.Now().Unix()
}

func generateJWT(userID int64, isAdmin bool) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"admin":   isAdmin,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return hmac.Equal(hash, computedHash)
}

func generateReferralCode() string {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 6)
	cryptorand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return "BC-" + string(b)
}
