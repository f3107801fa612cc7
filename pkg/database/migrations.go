package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"go.uber.org/zap"
)

// Migration is one forward/backward schema step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations is the ordered schema history of the user store.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "create users table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(100) NOT NULL DEFAULT '',
				user_name VARCHAR(32) NOT NULL,
				password_hash TEXT NOT NULL DEFAULT '',
				avatar TEXT NOT NULL DEFAULT '',
				bio TEXT NOT NULL DEFAULT '',
				sub_level VARCHAR(10) NOT NULL DEFAULT 'FREE'
					CHECK (sub_level IN ('FREE', 'BRONZE', 'SILVER', 'GOLD')),
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);`,
		DownSQL: `DROP TABLE IF EXISTS users;`,
	},
	{
		Version:     2,
		Description: "index users by handle",
		UpSQL:       `CREATE INDEX IF NOT EXISTS idx_users_user_name ON users(user_name);`,
		DownSQL:     `DROP INDEX IF EXISTS idx_users_user_name;`,
	},
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`

// RunMigrations applies every pending migration in version order, each in
// its own transaction.
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logger.Named("migrations")

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range Migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		log.Info("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
				m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// appliedMigrations maps applied versions to their apply time.
func (db *DB) appliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// GetMigrationStatus returns the status of all known migrations.
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(Migrations))
	for _, m := range Migrations {
		at, ok := applied[m.Version]
		status = append(status, MigrationStatus{
			Version:     m.Version,
			Applied:     ok,
			AppliedAt:   at,
			Description: m.Description,
		})
	}
	return status, nil
}

// RollbackMigration reverts the most recently applied migration.
func (db *DB) RollbackMigration(ctx context.Context) error {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no migrations to rollback")
	}
	if err != nil {
		return fmt.Errorf("failed to read last migration: %w", err)
	}

	var target *Migration
	for i := range Migrations {
		if Migrations[i].Version == version {
			target = &Migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	logger.Named("migrations").Info("rolling back migration",
		zap.Int("version", version),
		zap.String("description", target.Description))

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if target.DownSQL != "" {
			if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
		return err
	})
}
