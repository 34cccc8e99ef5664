package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/blackcoin/backend/internal/config"
	"github.com/blackcoin/backend/internal/models"
)

// CodeStore persists at most one live verification code per identity.
// PutCode supersedes any existing code for the identity. DeleteCode
// returns ErrCodeNotFound when no live code existed, so two racing
// consumers cannot both claim the delete.
type CodeStore interface {
	PutCode(ctx context.Context, identity, code string, createdAt, expiresAt time.Time) error
	GetCode(ctx context.Context, identity string) (*models.VerificationCode, error)
	DeleteCode(ctx context.Context, identity string) error
}

// NotificationSender delivers a verification message to an identity. The
// channel (email vs. Telegram chat) is picked by the caller wiring, not here.
type NotificationSender interface {
	Send(ctx context.Context, identity, message string) error
}

// VerificationService issues and checks short-lived numeric codes bound to
// an identity (email address or chat id). Per identity the lifecycle is
// NoCode -> Issued -> Consumed/Expired/Superseded, where every terminal
// state behaves like NoCode for the next issue.
type VerificationService struct {
	store  CodeStore
	sender NotificationSender
	redis  *redis.Client
	config *config.VerificationConfig
}

func NewVerificationService(store CodeStore, sender NotificationSender, redisClient *redis.Client) *VerificationService {
	return &VerificationService{
		store:  store,
		sender: sender,
		redis:  redisClient,
		config: config.LoadVerificationConfig(),
	}
}

// Issue generates a fresh code for identity, superseding any prior one, and
// dispatches it through the notification sender. The code is returned for
// logging and tests only; it must never reach a second party.
//
// Delivery failure is not fatal: the code is already persisted and valid, so
// Issue returns the code together with an error wrapping
// ErrNotificationFailed and the caller may offer a resend.
func (s *VerificationService) Issue(ctx context.Context, identity string) (string, error) {
	if err := s.checkRateLimit(ctx, identity); err != nil {
		return "", err
	}

	code, err := s.generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	now := time.Now()
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()
	if err := s.store.PutCode(storeCtx, identity, code, now, now.Add(s.config.CodeTTL)); err != nil {
		return "", fmt.Errorf("failed to store code: %w", err)
	}

	s.incrementRateLimit(ctx, identity)

	message := fmt.Sprintf("Your BlackCoin verification code is %s. It expires in %d minutes.",
		code, int(s.config.CodeTTL.Minutes()))

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.SendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, identity, message); err != nil {
		log.Printf("[VERIFY] Delivery failed for %s: %v", identity, err)
		return code, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	return code, nil
}

// Verify consumes the live code for identity. A matching code is deleted
// before success is reported, so it cannot be replayed; an expired code is
// deleted as a side effect of the Expired result.
func (s *VerificationService) Verify(ctx context.Context, identity, code string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	stored, err := s.store.GetCode(storeCtx, identity)
	if err != nil {
		return err
	}

	if time.Now().After(stored.ExpiresAt) {
		if err := s.store.DeleteCode(storeCtx, identity); err != nil && !errors.Is(err, ErrCodeNotFound) {
			log.Printf("[VERIFY] Failed to delete expired code for %s: %v", identity, err)
		}
		return ErrCodeExpired
	}

	if stored.Code != code {
		return ErrCodeMismatch
	}

	if err := s.store.DeleteCode(storeCtx, identity); err != nil {
		// A concurrent verify may have consumed the code between the
		// read and the delete; only one caller gets the success.
		if errors.Is(err, ErrCodeNotFound) {
			return ErrCodeNotFound
		}
		// Without the delete the code would be replayable, so the match
		// is not reported as a success.
		return fmt.Errorf("failed to consume code: %w", err)
	}
	return nil
}

// CodeTTL exposes the configured validity window for callers rendering
// expiry hints.
func (s *VerificationService) CodeTTL() time.Duration {
	return s.config.CodeTTL
}

func (s *VerificationService) generateCode() (string, error) {
	const charset = "0123456789"
	code := make([]byte, s.config.CodeLength)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range code {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

func (s *VerificationService) checkRateLimit(ctx context.Context, identity string) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("verify:ratelimit:%s", identity)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if count >= s.config.MaxIssuesPerIdentity {
		return ErrRateLimited
	}
	return nil
}

func (s *VerificationService) incrementRateLimit(ctx context.Context, identity string) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("verify:ratelimit:%s", identity)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.RateLimitWindow)
	pipe.Exec(ctx)
}
