package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
)

var userCols = []string{"id", "name", "user_name", "password_hash", "avatar", "bio", "sub_level"}

func newMockStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserStore(Wrap(db)), mock
}

func TestUserStore_Create(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Ada", "ada", "hash", "", "", "FREE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	u, err := s.Create(context.Background(), models.User{Name: "Ada", UserName: "ada", Password: "hash", SubLevel: models.SubLevelFree})
	require.NoError(t, err)
	assert.Equal(t, "7", u.ID)
	assert.Equal(t, "ada", u.UserName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_CreateFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").WillReturnError(errors.New("connection refused"))

	_, err := s.Create(context.Background(), models.User{UserName: "ada"})
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindAll(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users ORDER BY id").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(1, "Kyle Zimmer", "kzimms", "h1", "", "Creator of Crypto Book", "GOLD").
			AddRow(2, "Ada", "ada", "h2", "", "", "FREE"))

	users, err := s.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "1", users[0].ID)
	assert.Equal(t, models.SubLevelGold, users[0].SubLevel)
	assert.Equal(t, "ada", users[1].UserName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindAllEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnRows(sqlmock.NewRows(userCols))

	users, err := s.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserStore_FindAllFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnError(errors.New("timeout"))

	_, err := s.FindAll(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestUserStore_FindByID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(2, "Justin", "justin", "", "", "", "SILVER"))

	u, err := s.FindByID(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "2", u.ID)
	assert.Equal(t, "justin", u.UserName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.FindByID(context.Background(), "9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Ids that only parse to a row id never reach the database
	for _, id := range []string{"abc", "01", "+1", " 1", "1.0"} {
		_, err = s.FindByID(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_UnknownTierReadsAsFree(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "Cy", "cy", "", "", "", "PLATINUM"))

	u, err := s.FindByID(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, models.SubLevelFree, u.SubLevel)
}
