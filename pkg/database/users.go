package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
	"go.uber.org/zap"
)

const backendLabel = "postgres"

// UserStore is the Postgres implementation of store.RecordStore.
type UserStore struct {
	db *DB
}

// NewUserStore creates a user store on top of a migrated database.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, name, user_name, password_hash, avatar, bio, sub_level`

// Create inserts u and returns it with the assigned identifier.
func (s *UserStore) Create(ctx context.Context, u models.User) (_ *models.User, err error) {
	defer observe("create", time.Now(), &err)

	if u.UserName == "" {
		return nil, store.ErrInvalidInput
	}

	query := `
		INSERT INTO users (name, user_name, password_hash, avatar, bio, sub_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	if err := s.db.QueryRowContext(ctx, query,
		u.Name, u.UserName, u.Password, u.Avatar, u.Bio, string(u.SubLevel),
	).Scan(&id); err != nil {
		return nil, store.Unavailable("create", err)
	}

	u.ID = strconv.FormatInt(id, 10)
	return &u, nil
}

// FindAll returns every user ordered by identifier, which is creation order.
func (s *UserStore) FindAll(ctx context.Context) (_ []*models.User, err error) {
	defer observe("find_all", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, store.Unavailable("find_all", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, store.Unavailable("find_all", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("find_all", err)
	}
	return users, nil
}

// FindByID returns store.ErrNotFound when no row has the identifier. Ids
// that are not the canonical decimal form of a row id ("abc", "01", "+1")
// cannot match exactly and are reported the same way without a round trip.
func (s *UserStore) FindByID(ctx context.Context, id string) (_ *models.User, err error) {
	defer observe("find_by_id", time.Now(), &err)

	key, convErr := strconv.ParseInt(id, 10, 64)
	if convErr != nil || strconv.FormatInt(key, 10) != id {
		return nil, store.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, key)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable("find_by_id", err)
	}
	return u, nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.db.HealthCheck(ctx); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u     models.User
		id    int64
		level string
	)
	if err := row.Scan(&id, &u.Name, &u.UserName, &u.Password, &u.Avatar, &u.Bio, &level); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	u.SubLevel = storedLevel(u.ID, level)
	return &u, nil
}

// storedLevel reads a tier column; rows written outside the API with an
// unknown tier fall back to FREE.
func storedLevel(id, raw string) models.SubLevel {
	level, ok := models.ParseSubLevel(raw)
	if !ok {
		logger.Log.Warn("unknown sub_level in users row", zap.String("id", id), zap.String("sub_level", raw))
		return models.SubLevelFree
	}
	return level
}

// observe records duration and failures for one store operation. Not-found
// is a normal outcome and is not counted as an error.
func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, store.ErrNotFound) {
		err = nil
	}
	metrics.StoreOperationDuration.WithLabelValues(backendLabel, op, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendLabel, op).Inc()
		logger.Log.Error("postgres user store failure", zap.String("operation", op), zap.Error(err))
	}
}

var _ store.RecordStore = (*UserStore)(nil)
