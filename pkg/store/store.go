// Package store defines the record store contract for users and the errors
// every backend reports through it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alim08/cryptobook/pkg/models"
)

var (
	// ErrNotFound is returned by FindByID when no user has the identifier.
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable wraps any failure of the backing engine.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrInvalidInput is returned for records the store refuses to write.
	ErrInvalidInput = errors.New("invalid record")

	errClosed = errors.New("store closed")
)

// RecordStore persists users. Identifiers are assigned on Create and are
// unique within the store. FindAll returns users in creation order.
type RecordStore interface {
	Create(ctx context.Context, u models.User) (*models.User, error)
	FindAll(ctx context.Context) ([]*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Ping(ctx context.Context) error
	Close() error
}

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
