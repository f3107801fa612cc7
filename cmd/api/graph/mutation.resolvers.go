package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AddUser persists a user, announces it on TopicUserAdded and returns the
// whole collection. Nothing is written or published unless the caller holds
// auth.CapUserWrite and the input validates. If the collection cannot be
// read back after the write, the STORE_UNAVAILABLE error carries createdId.
func (r *Resolver) AddUser(ctx context.Context, input models.UserInput) ([]*models.User, error) {
	if err := auth.Require(ctx, auth.CapUserWrite); err != nil {
		return nil, err
	}

	input.Sanitize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var hash string
	if input.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(input.Password), r.bcryptCost)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validation.ValidationErrors{{Field: "password", Message: "password must be at most 72 bytes"}}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = string(b)
	}

	created, err := r.store.Create(ctx, input.ToUser(hash))
	if err != nil {
		return nil, err
	}

	delivered := r.registry.Publish(TopicUserAdded, created.Clone())
	logger.Log.Info("user added",
		zap.String("id", created.ID),
		zap.String("user_name", created.UserName),
		zap.Int("subscribers", delivered))

	users, err := r.store.FindAll(ctx)
	if err != nil {
		return nil, &Error{
			Code:      CodeStoreUnavailable,
			Message:   "user created but the collection could not be read",
			CreatedID: created.ID,
			cause:     err,
		}
	}
	return users, nil
}

// AddTrade validates its input but does not record trades yet; it always
// resolves to null.
// TODO: persist trades once the record store has a trades table.
func (r *Resolver) AddTrade(ctx context.Context, input models.TradeInput) (*models.Trade, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	logger.Log.Debug("addTrade is not implemented", zap.String("user_id", input.UserID), zap.String("coin_id", input.CoinID))
	return nil, nil
}
