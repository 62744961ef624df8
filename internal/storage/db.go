// Package storage persists projects, apps and their files.
//
// Two file stores share one database: Records keeps one row per file keyed by
// (project_id, path), Blobs keeps an app's whole file map in a single column.
// Both implement Backend and neither serializes writers itself; callers must hold
// a per-target lock around mutations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB is the shared SQL connection used by every store.
type DB struct {
	conn   *sql.DB
	driver string
}

// Open connects with the given driver ("sqlite3" or "mysql") and runs migrations.
func Open(driver, dsn string) (*DB, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	case "mysql":
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn must be provided", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database file with the default pragmas.
func OpenSQLite(path string) (*DB, error) {
	return Open("sqlite3", "file:"+path+"?"+sqlitePragmas)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) migrate() error {
	stmts := sqliteSchema
	if db.driver == "mysql" {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.driver, err)
		}
	}
	return nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
