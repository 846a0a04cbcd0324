package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/arklim/realm-auth-service/internal/repository/postgres/migrations"
)

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations through a database/sql
// handle borrowed from pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// ErrInvalidTableName is returned for realm table names that are not plain lower-case identifiers.
var ErrInvalidTableName = errors.New("postgres: invalid realm table name")

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

const realmTableDDL = `CREATE TABLE IF NOT EXISTS %s (
    id             VARCHAR(16) PRIMARY KEY,
    first_name     TEXT        NOT NULL,
    last_name      TEXT        NOT NULL,
    email          TEXT        NOT NULL,
    phone          TEXT        NOT NULL DEFAULT '',
    country_code   TEXT        NOT NULL DEFAULT '',
    country        TEXT        NOT NULL DEFAULT '',
    password_hash  TEXT        NOT NULL,
    email_verified BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const realmEmailIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (lower(email))`

// EnsureRealmTables creates the user table and email index of every realm
// that the embedded migrations do not already cover. It is idempotent.
func EnsureRealmTables(ctx context.Context, exec pgExecutor, tables ...string) error {
	for _, table := range tables {
		if !tableNamePattern.MatchString(table) {
			return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
		}
	}

	for _, table := range tables {
		ident := pgx.Identifier{table}.Sanitize()
		index := pgx.Identifier{table + "_email_key"}.Sanitize()
		if _, err := exec.Exec(ctx, fmt.Sprintf(realmTableDDL, ident)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		if _, err := exec.Exec(ctx, fmt.Sprintf(realmEmailIndexDDL, index, ident)); err != nil {
			return fmt.Errorf("create email index on %s: %w", table, err)
		}
	}
	return nil
}
