// Package sqlstore persists connections and conversations in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed migrations
var dbMigrations embed.FS

// DB wraps the sqlx handle shared by the stores.
type DB struct {
	db *sqlx.DB
}

// Open connects to the database and migrates it to the latest schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite serializes writers anyway; one connection keeps pragmas and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(2 * time.Hour)
	}

	if err := migrateDB(db.DB, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &DB{db: db}, nil
}

func migrateDB(db *sql.DB, driver string) error {
	src, err := iofs.New(dbMigrations, "migrations")
	if err != nil {
		return err
	}

	var dst database.Driver
	switch driver {
	case DriverPostgres:
		dst, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		dst, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return err
	}

	migrator, err := migrate.NewWithInstance("iofs", src, driver, dst)
	if err != nil {
		return err
	}

	err = migrator.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		// db already up to date
		break
	case err != nil:
		return err
	}
	return nil
}

// Connections returns the connection store.
func (d *DB) Connections() *ConnectionStore {
	return &ConnectionStore{db: d.db}
}

// Conversations returns the conversation store.
func (d *DB) Conversations() *ConversationStore {
	return &ConversationStore{db: d.db}
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// inTx runs fn in a transaction, committing on success.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
