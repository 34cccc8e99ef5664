package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var profileColumns = []string{"id", "telegram_id", "telegram_username", "email", "first_name",
	"last_name", "avatar_url", "referral_code", "is_verified", "is_admin", "is_restricted", "created_at"}

func profileRequest(userID int64) *http.Request {
	r := httptest.NewRequest("GET", "/api/v1/me", nil)
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestUserService_GetProfile(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewUserService(db, NewLedgerService(db))

	t.Run("telegram user with no email on record", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT id, telegram_id, telegram_username, email").
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow(4, 777000111, "adalovelace", nil, "Ada", "", "https://t.me/i/userpic/a.jpg",
					"BC-QRS234", true, false, false, time.Now()))
		dbMock.ExpectQuery("SELECT user_id, points, wallet, version, updated_at").
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "points", "wallet", "version", "updated_at"}).
				AddRow(4, 120, "0", 3, time.Now()))

		w := httptest.NewRecorder()
		service.GetProfile(w, profileRequest(4))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			User struct {
				ID    int64  `json:"id"`
				Email string `json:"email"`
			} `json:"user"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(4), resp.User.ID)
		assert.Empty(t, resp.User.Email)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("email user with no telegram link or avatar", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT id, telegram_id, telegram_username, email").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow(7, nil, nil, "grace@example.com", "Grace", "Hopper", nil,
					"BC-HJK567", true, false, false, time.Now()))
		dbMock.ExpectQuery("SELECT user_id, points, wallet, version, updated_at").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "points", "wallet", "version", "updated_at"}).
				AddRow(7, 0, "0", 1, time.Now()))

		w := httptest.NewRecorder()
		service.GetProfile(w, profileRequest(7))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			User struct {
				Email     string `json:"email"`
				AvatarURL string `json:"avatar_url"`
			} `json:"user"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "grace@example.com", resp.User.Email)
		assert.Empty(t, resp.User.AvatarURL)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT id, telegram_id, telegram_username, email").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		w := httptest.NewRecorder()
		service.GetProfile(w, profileRequest(99))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUserService_ListUsers(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewUserService(db, NewLedgerService(db))

	listColumns := []string{"id", "telegram_username", "email", "first_name", "last_name",
		"referral_code", "is_verified", "is_admin", "is_restricted", "created_at", "points", "wallet"}

	t.Run("mixes telegram and email signups", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT u.id, u.telegram_username, u.email").
			WillReturnRows(sqlmock.NewRows(listColumns).
				AddRow(4, "adalovelace", nil, "Ada", "", "BC-QRS234", true, false, false, time.Now(), 120, "0").
				AddRow(7, nil, "grace@example.com", "Grace", "Hopper", "BC-HJK567", true, false, false, time.Now(), 0, "2.50"))

		w := httptest.NewRecorder()
		service.ListUsers(w, httptest.NewRequest("GET", "/api/v1/admin/users", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp []struct {
			ID       int64  `json:"id"`
			Email    string `json:"email"`
			Username string `json:"telegram_username"`
			Points   int64  `json:"points"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
		assert.Empty(t, resp[0].Email)
		assert.Equal(t, "adalovelace", resp[0].Username)
		assert.Equal(t, int64(120), resp[0].Points)
		assert.Equal(t, "grace@example.com", resp[1].Email)
		assert.Empty(t, resp[1].Username)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
