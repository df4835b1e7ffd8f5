package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Connection is the run history database. Every connection in the pool is
// opened with foreign keys on, so deleting a run also deletes its positions.
type Connection struct {
	db *sql.DB
}

// Open opens or creates the run history database at dbPath and applies the
// schema. Parent directories are created as needed.
func Open(dbPath string) (*Connection, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("run history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open run history %s: %w", dbPath, err)
	}

	conn := &Connection{db: db}
	if err := InitializeSchema(conn); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize run history schema: %w", err)
	}
	return conn, nil
}

// dsn sets the pragmas through the driver so each pooled connection gets them.
// WAL and a busy timeout let the API server read history while a run is
// being recorded.
func dsn(dbPath string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	return "file:" + dbPath + "?" + params.Encode()
}

// Close closes the database.
func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Connection) query(query string, args ...any) (*sql.Rows, error) {
	return c.db.Query(query, args...)
}

func (c *Connection) queryRow(query string, args ...any) *sql.Row {
	return c.db.QueryRow(query, args...)
}

func (c *Connection) exec(query string, args ...any) (sql.Result, error) {
	return c.db.Exec(query, args...)
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (c *Connection) inTx(fn func(*sql.Tx) error) (err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
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
