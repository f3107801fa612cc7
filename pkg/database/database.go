package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// DB is the pooled Postgres handle behind the user store and migrations.
type DB struct {
	*sql.DB
	target string
}

// Pool bounds the database/sql connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)
	db.SetConnMaxIdleTime(p.MaxIdleTime)
}

// Config says where the user store lives. URL (DATABASE_URL) takes
// precedence over the discrete DB_* settings.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	Pool Pool
	// ConnectTimeout bounds how long New keeps retrying the first ping, so
	// the API can start alongside a database that is still booting.
	ConnectTimeout time.Duration
}

// NewConfig reads DATABASE_URL or the DB_* variables.
func NewConfig() *Config {
	return &Config{
		URL:      os.Getenv("DATABASE_URL"),
		Host:     envString("DB_HOST", "localhost"),
		Port:     envInt("DB_PORT", 5432),
		User:     envString("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: envString("DB_NAME", "cryptobook"),
		SSLMode:  envString("DB_SSLMODE", "disable"),
		Pool: Pool{
			MaxOpen:     envInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdle:     envInt("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: envDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		ConnectTimeout: envDuration("DB_CONNECT_TIMEOUT", 30*time.Second),
	}
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() (string, error) {
	if c.URL != "" {
		dsn, err := pq.ParseURL(c.URL)
		if err != nil {
			return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		return dsn, nil
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode), nil
}

// target names the database in logs without credentials.
func (c *Config) target() string {
	if c.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
}

// New opens the pool and waits, with exponential backoff, until Postgres
// answers a ping or cfg.ConnectTimeout passes.
func New(ctx context.Context, cfg *Config) (*DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	cfg.Pool.apply(sqlDB)

	db := &DB{DB: sqlDB, target: cfg.target()}
	log := logger.Named("database").With(zap.String("target", db.target))

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout
	err = backoff.RetryNotify(func() error {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.HealthCheck(pctx)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		log.Warn("database not ready, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	log.Info("database connected", zap.Int("max_open_conns", cfg.Pool.MaxOpen))
	return db, nil
}

// Wrap adopts an already opened handle, such as a sqlmock connection.
func Wrap(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB, target: "wrapped"}
}

func (db *DB) Close() error {
	logger.Named("database").Info("closing database pool", zap.String("target", db.target))
	return db.DB.Close()
}

// HealthCheck pings the database and records the probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := db.PingContext(ctx)
	metrics.DatabaseHealthCheckDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatabaseHealthCheckErrors.Inc()
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Transaction commits when fn returns nil and rolls back otherwise,
// including when fn panics.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
