package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alim08/cryptobook/pkg/models"
)

// ErrSeedConflict means a seed identifier is held by a different user, or a
// fresh store assigned a seed user some other identifier.
var ErrSeedConflict = errors.New("seed user conflict")

// Seed makes every user in seeds present in s under its own identifier and
// returns how many it created. Seeds missing from the store are created in
// order, so on an empty store they must carry the identifiers the store
// hands out first ("1", "2", ...). A seed already stored under its id is
// left alone.
func Seed(ctx context.Context, s RecordStore, seeds []*models.User) (int, error) {
	created := 0
	for _, want := range seeds {
		got, err := s.FindByID(ctx, want.ID)
		switch {
		case err == nil:
			if got.UserName != want.UserName {
				return created, fmt.Errorf("%w: id %s belongs to %q, not %q", ErrSeedConflict, want.ID, got.UserName, want.UserName)
			}
			continue
		case !errors.Is(err, ErrNotFound):
			return created, err
		}

		u, err := s.Create(ctx, *want)
		if err != nil {
			return created, err
		}
		if u.ID != want.ID {
			return created, fmt.Errorf("%w: %q was stored as %s, want %s", ErrSeedConflict, want.UserName, u.ID, want.ID)
		}
		created++
	}
	return created, nil
}
