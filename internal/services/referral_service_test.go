package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestReferralService_GenerateReferralQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	viper.Set("frontend.url", "https://app.example.com")
	service := NewReferralService(db, nil, NewLedgerService(db))

	t.Run("renders link and image", func(t *testing.T) {
		mock.ExpectQuery("SELECT referral_code FROM users").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"referral_code"}).AddRow("BC-ABC234"))

		link, image, err := service.GenerateReferralQR(context.Background(), 5)
		assert.NoError(t, err)
		assert.Equal(t, "https://app.example.com?ref=BC-ABC234", link)
		assert.NotEmpty(t, image)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT referral_code FROM users").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"referral_code"}))

		_, _, err := service.GenerateReferralQR(context.Background(), 99)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestReferralService_ResolveReferral(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("uncached code hits the database", func(t *testing.T) {
		service := NewReferralService(db, nil, NewLedgerService(db))

		mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
			WithArgs("BC-ABC234").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		userID, err := service.ResolveReferral(context.Background(), "BC-ABC234")
		assert.NoError(t, err)
		assert.Equal(t, int64(5), userID)
	})

	t.Run("cached code skips the database", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectGet("referral:BC-ABC234").SetVal("5")

		service := NewReferralService(db, redisClient, NewLedgerService(db))

		userID, err := service.ResolveReferral(context.Background(), "BC-ABC234")
		assert.NoError(t, err)
		assert.Equal(t, int64(5), userID)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		service := NewReferralService(db, nil, NewLedgerService(db))

		mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
			WithArgs("BC-XXXXXX").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := service.ResolveReferral(context.Background(), "BC-XXXXXX")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestReferralService_CreditSignup(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	viper.Set("referral.bonus_points", 50)
	service := NewReferralService(db, nil, NewLedgerService(db))

	t.Run("credits the referrer", func(t *testing.T) {
		referrerID := int64(5)
		newUserID := int64(8)

		mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
			WithArgs("BC-ABC234").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(referrerID))

		mock.ExpectExec("UPDATE users SET referred_by").
			WithArgs(referrerID, newUserID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// Reserve-funded bonus transfer
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, points, version, updated_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "points", "version", "updated_at"}).
				AddRow(1, 0, 1, time.Now()))
		mock.ExpectQuery("SELECT user_id, points, version, updated_at").
			WithArgs(referrerID).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "points", "version", "updated_at"}).
				AddRow(referrerID, 10, 1, time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.CreditSignup(context.Background(), "BC-ABC234", newUserID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self referral rejected", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
			WithArgs("BC-ABC234").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

		err := service.CreditSignup(context.Background(), "BC-ABC234", 8)
		assert.ErrorIs(t, err, ErrSameAccount)
	})

	t.Run("unknown code reported", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
			WithArgs("BC-XXXXXX").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := service.CreditSignup(context.Background(), "BC-XXXXXX", 8)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
