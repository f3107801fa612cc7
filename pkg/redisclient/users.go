package redisclient

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	userSeqKey   = "users:seq"
	userIndexKey = "users:index"
	backendLabel = "redis"
)

func userKey(id string) string { return "user:" + id }

// UserStore keeps users as hashes. users:seq hands out identifiers and the
// users:index sorted set, scored by identifier, records creation order. The
// index entry is written last so a half-written user is never listed. Both
// writes are idempotent, so a retry after a slow but applied reply leaves
// one entry per user.
type UserStore struct {
	c *Client
}

func NewUserStore(c *Client) *UserStore {
	return &UserStore{c: c}
}

func (s *UserStore) Create(ctx context.Context, u models.User) (_ *models.User, err error) {
	defer observe("create", time.Now(), &err)

	if u.UserName == "" {
		return nil, store.ErrInvalidInput
	}

	var id int64
	err = s.c.Write(ctx, "incr", func(ctx context.Context, rdb *redis.Client) error {
		var err error
		id, err = rdb.Incr(ctx, userSeqKey).Result()
		return err
	})
	if err != nil {
		return nil, store.Unavailable("create", err)
	}
	u.ID = strconv.FormatInt(id, 10)

	err = s.c.Write(ctx, "hset", func(ctx context.Context, rdb *redis.Client) error {
		return rdb.HSet(ctx, userKey(u.ID),
			"name", u.Name,
			"user_name", u.UserName,
			"password_hash", u.Password,
			"avatar", u.Avatar,
			"bio", u.Bio,
			"sub_level", string(u.SubLevel),
		).Err()
	})
	if err != nil {
		return nil, store.Unavailable("create", err)
	}

	err = s.c.Write(ctx, "zadd", func(ctx context.Context, rdb *redis.Client) error {
		return rdb.ZAdd(ctx, userIndexKey, &redis.Z{Score: float64(id), Member: u.ID}).Err()
	})
	if err != nil {
		return nil, store.Unavailable("create", err)
	}
	return &u, nil
}

func (s *UserStore) FindAll(ctx context.Context) (_ []*models.User, err error) {
	defer observe("find_all", time.Now(), &err)

	var ids []string
	err = s.c.Read(ctx, "zrange", func(ctx context.Context, rdb *redis.Client) error {
		var err error
		ids, err = rdb.ZRange(ctx, userIndexKey, 0, -1).Result()
		return err
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, store.Unavailable("find_all", err)
	}

	users := make([]*models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var cmds []*redis.StringStringMapCmd
	err = s.c.Read(ctx, "hgetall", func(ctx context.Context, rdb *redis.Client) error {
		cmds = cmds[:0]
		_, err := rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				cmds = append(cmds, pipe.HGetAll(ctx, userKey(id)))
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, store.Unavailable("find_all", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// index entry without a hash; skip rather than fail the listing
			logger.Log.Warn("dangling user index entry", zap.String("id", ids[i]))
			continue
		}
		users = append(users, userFromHash(ids[i], fields))
	}
	return users, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (_ *models.User, err error) {
	defer observe("find_by_id", time.Now(), &err)

	var fields map[string]string
	err = s.c.Read(ctx, "hgetall", func(ctx context.Context, rdb *redis.Client) error {
		var err error
		fields, err = rdb.HGetAll(ctx, userKey(id)).Result()
		return err
	})
	if err != nil {
		return nil, store.Unavailable("find_by_id", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return userFromHash(id, fields), nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

func (s *UserStore) Close() error {
	return s.c.Close()
}

func userFromHash(id string, h map[string]string) *models.User {
	level, ok := models.ParseSubLevel(h["sub_level"])
	if !ok {
		logger.Log.Warn("unknown sub_level in user hash", zap.String("id", id), zap.String("sub_level", h["sub_level"]))
		level = models.SubLevelFree
	}
	return &models.User{
		ID:       id,
		Name:     h["name"],
		UserName: h["user_name"],
		Password: h["password_hash"],
		Avatar:   h["avatar"],
		Bio:      h["bio"],
		SubLevel: level,
	}
}

func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, store.ErrNotFound) {
		err = nil
	}
	metrics.StoreOperationDuration.WithLabelValues(backendLabel, op, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendLabel, op).Inc()
		logger.Log.Error("redis user store failure", zap.String("operation", op), zap.Error(err))
	}
}

var _ store.RecordStore = (*UserStore)(nil)
