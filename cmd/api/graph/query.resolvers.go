package graph

import (
	"context"
	"errors"

	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
)

func (r *Resolver) Users(ctx context.Context) ([]*models.User, error) {
	return r.store.FindAll(ctx)
}

// User returns the user whose identifier equals id, or nil when there is
// none.
func (r *Resolver) User(ctx context.Context, id string) (*models.User, error) {
	u, err := r.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Resolver) Coins(ctx context.Context) ([]*models.Coin, error) {
	return r.catalog.ListCoins(), nil
}

func (r *Resolver) Trades(ctx context.Context) ([]*models.Trade, error) {
	return r.catalog.ListTrades(), nil
}
