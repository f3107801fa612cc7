package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/cryptobook/pkg/models"
)

func seeds() []*models.User {
	return []*models.User{
		{ID: "1", Name: "Kyle Zimmer", UserName: "kzimms", SubLevel: models.SubLevelGold},
		{ID: "2", Name: "Justin", UserName: "justin", SubLevel: models.SubLevelGold},
	}
}

func TestSeed_EmptyStore(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	n, err := Seed(ctx, s, seeds())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, err := s.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "kzimms", u.UserName)

	// later users continue after the seeds
	ada, err := s.Create(ctx, models.User{UserName: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "3", ada.ID)
}

func TestSeed_IsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := Seed(ctx, s, seeds())
	require.NoError(t, err)
	n, err := Seed(ctx, s, seeds())
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSeed_Conflict(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.Create(ctx, models.User{UserName: "ada"})
	require.NoError(t, err)

	_, err = Seed(ctx, s, seeds())
	assert.ErrorIs(t, err, ErrSeedConflict)
}

func TestSeed_StoreUnavailable(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := Seed(context.Background(), s, seeds())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
