package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/blackcoin/backend/internal/models"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, identity, message string) error {
	args := m.Called(ctx, identity, message)
	return args.Error(0)
}

// memoryCodeStore keeps codes in a map so verification flows can be tested
// without a database.
type memoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]models.VerificationCode
}

func newMemoryCodeStore() *memoryCodeStore {
	return &memoryCodeStore{codes: make(map[string]models.VerificationCode)}
}

func (s *memoryCodeStore) PutCode(ctx context.Context, identity, code string, createdAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[identity] = models.VerificationCode{
		Identity:  identity,
		Code:      code,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (s *memoryCodeStore) GetCode(ctx context.Context, identity string) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[identity]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return &stored, nil
}

func (s *memoryCodeStore) DeleteCode(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[identity]; !ok {
		return ErrCodeNotFound
	}
	delete(s.codes, identity)
	return nil
}

// racingCodeStore lets a stored code be read normally but has it vanish
// before the caller's own delete, as a concurrent consumer would cause.
type racingCodeStore struct {
	*memoryCodeStore
}

func (s racingCodeStore) DeleteCode(ctx context.Context, identity string) error {
	if err := s.memoryCodeStore.DeleteCode(ctx, identity); err != nil {
		return err
	}
	return s.memoryCodeStore.DeleteCode(ctx, identity)
}
