package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/crudkit/internal/crud/storage/sqlstore"
)

var schemas = map[string][]string{
	sqlstore.SQLite.Name: {
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			team TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS users_team_idx ON users (team)`,
	},
	sqlstore.Postgres.Name: {
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			team TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS users_team_idx ON users (team)`,
	},
}

// Migrate creates the users table when it does not exist
func Migrate(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect) error {
	stmts, ok := schemas[dialect.Name]
	if !ok {
		return fmt.Errorf("%w: %s", sqlstore.ErrUnsupportedDriver, dialect.Name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate users: %w", err)
		}
	}
	return tx.Commit()
}
