// Package store persists the ledger, statement lines, market data and symbol
// metadata in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Config configures a database connection.
type Config struct {
	// Path is a file path, or a "file:" URI used as is (in-memory databases).
	Path string
	// Name labels log lines.
	Name string
}

// DB is a SQLite backed store of a Book.
type DB struct {
	conn *sql.DB
	path string
	name string
	log  zerolog.Logger
}

// New opens the database, creating the parent directory when needed, and
// applies the schema.
func New(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Name == "" {
		cfg.Name = "trading"
	}
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = abs
	}

	conn, err := sql.Open("sqlite", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configureConnectionPool(conn, path)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
		name: cfg.Name,
		log:  zerolog.Ctx(ctx).With().Str("database", cfg.Name).Logger(),
	}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	db.log.Debug().Str("path", path).Msg("database opened")
	return db, nil
}

func buildConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=wal_autocheckpoint(1000)",
		"_pragma=cache_size(-64000)",
	}
	return path + sep + strings.Join(pragmas, "&")
}

func configureConnectionPool(conn *sql.DB, path string) {
	// An in-memory database lives as long as its one connection.
	if strings.Contains(path, "mode=memory") || strings.Contains(path, ":memory:") {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		return
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the resolved database path.
func (db *DB) Path() string { return db.path }

// Conn returns the underlying connection.
func (db *DB) Conn() *sql.DB { return db.conn }

// WithTransaction runs fn in a transaction: it commits when fn succeeds and
// rolls back when fn fails or panics.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()
	return fn(tx)
}
