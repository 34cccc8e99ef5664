package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestPostgresCodeStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresCodeStore(db)

	t.Run("put upserts on identity", func(t *testing.T) {
		now := time.Now()
		mock.ExpectExec("INSERT INTO verification_codes").
			WithArgs("user@example.com", "123456", now, now.Add(10*time.Minute)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := store.PutCode(context.Background(), "user@example.com", "123456", now, now.Add(10*time.Minute))
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get existing code", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT identity, code, created_at, expires_at").
			WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"identity", "code", "created_at", "expires_at"}).
				AddRow("user@example.com", "123456", now, now.Add(10*time.Minute)))

		vc, err := store.GetCode(context.Background(), "user@example.com")
		assert.NoError(t, err)
		assert.Equal(t, "123456", vc.Code)
	})

	t.Run("get missing code", func(t *testing.T) {
		mock.ExpectQuery("SELECT identity, code, created_at, expires_at").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"identity", "code", "created_at", "expires_at"}))

		_, err := store.GetCode(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("delete code", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM verification_codes WHERE identity").
			WithArgs("user@example.com").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.DeleteCode(context.Background(), "user@example.com"))
	})

	t.Run("delete reports already-consumed code", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM verification_codes WHERE identity").
			WithArgs("user@example.com").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteCode(context.Background(), "user@example.com")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("purge expired", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM verification_codes WHERE expires_at").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		assert.NoError(t, store.PurgeExpired(context.Background()))
	})
}
