package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/blackcoin/backend/internal/services"
)

func TestTransferErrorMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.ErrAccountNotFound, "Recipient not found."},
		{services.ErrSameAccount, "You cannot send points to yourself."},
		{services.ErrInvalidAmount, "Amount must be a positive number."},
		{services.ErrInsufficientBalance, "Insufficient balance."},
		{errors.New("connection reset"), "Transfer failed, try again later."},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, transferErrorMessage(c.err))
	}
}

func TestBot_resolveUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bot := NewBot(nil, db, services.NewLedgerService(db))

	t.Run("linked telegram user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM users WHERE telegram_id").
			WithArgs(int64(987654321)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		userID, err := bot.resolveUser(context.Background(), 987654321)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), userID)
	})

	t.Run("unlinked telegram user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM users WHERE telegram_id").
			WithArgs(int64(111)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := bot.resolveUser(context.Background(), 111)
		assert.Error(t, err)
	})
}
