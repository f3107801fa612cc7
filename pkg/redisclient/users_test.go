package redisclient

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
)

func TestUserStore_Create(t *testing.T) {
	c, mock := newMockClient()
	s := NewUserStore(c)

	mock.ExpectIncr("users:seq").SetVal(1)
	mock.ExpectHSet("user:1",
		"name", "Ada",
		"user_name", "ada",
		"password_hash", "hash",
		"avatar", "",
		"bio", "",
		"sub_level", "FREE",
	).SetVal(6)
	mock.ExpectZAdd("users:index", &redis.Z{Score: 1, Member: "1"}).SetVal(1)

	u, err := s.Create(context.Background(), models.User{Name: "Ada", UserName: "ada", Password: "hash", SubLevel: models.SubLevelFree})
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A write whose reply times out may already have been applied; the retry must
// not index the user a second time.
func TestUserStore_CreateRetriedWritesIndexOnce(t *testing.T) {
	c, mock := newMockClient()
	s := NewUserStore(c)

	mock.ExpectIncr("users:seq").SetVal(4)
	mock.ExpectHSet("user:4",
		"name", "",
		"user_name", "ada",
		"password_hash", "",
		"avatar", "",
		"bio", "",
		"sub_level", "FREE",
	).SetErr(context.DeadlineExceeded)
	mock.ExpectHSet("user:4",
		"name", "",
		"user_name", "ada",
		"password_hash", "",
		"avatar", "",
		"bio", "",
		"sub_level", "FREE",
	).SetVal(0)
	mock.ExpectZAdd("users:index", &redis.Z{Score: 4, Member: "4"}).SetErr(context.DeadlineExceeded)
	// the first ZADD landed, so the retry adds nothing
	mock.ExpectZAdd("users:index", &redis.Z{Score: 4, Member: "4"}).SetVal(0)

	u, err := s.Create(context.Background(), models.User{UserName: "ada", SubLevel: models.SubLevelFree})
	require.NoError(t, err)
	assert.Equal(t, "4", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectZRange("users:index", 0, -1).SetVal([]string{"4"})
	mock.ExpectHGetAll("user:4").SetVal(map[string]string{"user_name": "ada", "sub_level": "FREE"})

	users, err := s.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "4", users[0].ID)
}

func TestUserStore_CreateFailsWhenSequenceUnavailable(t *testing.T) {
	c, mock := newMockClient()
	s := NewUserStore(c)
	for i := 0; i <= maxRetries; i++ {
		mock.ExpectIncr("users:seq").SetErr(errors.New("connection refused"))
	}

	_, err := s.Create(context.Background(), models.User{UserName: "ada"})
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindAll(t *testing.T) {
	c, mock := newMockClient()
	s := NewUserStore(c)

	mock.ExpectZRange("users:index", 0, -1).SetVal([]string{"1", "2"})
	mock.ExpectHGetAll("user:1").SetVal(map[string]string{"name": "Ada", "user_name": "ada", "sub_level": "GOLD"})
	mock.ExpectHGetAll("user:2").SetVal(map[string]string{"name": "Bob", "user_name": "bob", "sub_level": "silver"})

	users, err := s.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "1", users[0].ID)
	assert.Equal(t, models.SubLevelGold, users[0].SubLevel)
	assert.Equal(t, "bob", users[1].UserName)
	assert.Equal(t, models.SubLevelSilver, users[1].SubLevel)
}

func TestUserStore_FindAllEmpty(t *testing.T) {
	c, mock := newMockClient()
	mock.ExpectZRange("users:index", 0, -1).SetVal([]string{})

	users, err := NewUserStore(c).FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserStore_FindByID(t *testing.T) {
	c, mock := newMockClient()
	s := NewUserStore(c)

	mock.ExpectHGetAll("user:2").SetVal(map[string]string{"name": "Justin", "user_name": "justin", "sub_level": "GOLD"})
	mock.ExpectHGetAll("user:9").SetVal(map[string]string{})
	mock.ExpectHGetAll("user:3").SetErr(errors.New("timeout"))

	u, err := s.FindByID(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "justin", u.UserName)

	_, err = s.FindByID(context.Background(), "9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindByID(context.Background(), "3")
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}
