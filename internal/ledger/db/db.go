// Package db provides the embedded SQLite ledger store for a production site.
//
// The store runs in WAL mode so request handlers keep writing while a sync
// pass reads. Every connection in the pool carries the same pragmas (busy
// timeout, foreign keys, WAL) and opens write transactions with BEGIN
// IMMEDIATE, which serializes the lookup-before-insert singletons (one
// general document per day, one load per carga and quantity).
//
// Architecture:
//   - Ledger tables: remisiones_general, remisiones_cabecera,
//     remisiones_cuerpo, remisiones_retallados, camaras_frigorifico
//   - Change queue: cola_sincronizacion (receiving records only)
//   - Catalogs: catalogo_de_tina, catalogo_de_talla, catalogo_de_barcos
//   - Triggers keep peso_neto and merma consistent on cuerpo and retallados
//
// All timestamps are site-local (see package sitetime).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/procesa/pesaje/internal/sitetime"
)

// Config holds store options.
type Config struct {
	// Clock stamps every write and defines "today". Defaults to the site zone.
	Clock *sitetime.Clock

	// BusyTimeout is how long a connection waits for a competing writer.
	BusyTimeout time.Duration

	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// DB wraps the SQLite connection pool with ledger operations.
type DB struct {
	conn  *sql.DB
	path  string
	clock *sitetime.Clock
}

// Open opens (creating if needed) the ledger at path with default settings.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	ledger, err := db.Open("data/pesaje.db")
//	if err != nil {
//	    return err
//	}
//	defer ledger.Close()
//	if err := ledger.EnsureSchema(ctx); err != nil {
//	    return err
//	}
func Open(path string) (*DB, error) {
	return OpenWithConfig(path, DefaultConfig())
}

// OpenWithConfig opens the ledger with custom configuration.
func OpenWithConfig(path string, config *Config) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	clock := config.Clock
	if clock == nil {
		c, err := sitetime.New(sitetime.DefaultZone)
		if err != nil {
			return nil, err
		}
		clock = c
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path, config.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(config.MaxOpenConns)
	}
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path, clock: clock}, nil
}

// dsn builds a connection string whose pragmas apply to every pooled
// connection, not only the first.
func dsn(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)"+
		"&_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_txlock=immediate",
		filepath.ToSlash(path), busy.Milliseconds())
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Clock returns the site clock used to stamp writes.
func (db *DB) Clock() *sitetime.Clock {
	return db.clock
}

// Today returns the current site-local day.
func (db *DB) Today() sitetime.Day {
	return db.clock.Today()
}

// Close checkpoints the WAL and closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside one immediate transaction. The transaction is rolled
// back if fn returns an error or panics.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// stampFor returns the creation timestamp for a row written on day. Writes
// for today use the current instant; writes for another day keep the
// current time of day on that date.
func (db *DB) stampFor(day sitetime.Day) string {
	now := db.clock.Now()
	if day == "" || sitetime.Day(now.Format(sitetime.DayLayout)) == day {
		return now.Format(sitetime.StampLayout)
	}
	return string(day) + " " + now.Format("15:04:05")
}
