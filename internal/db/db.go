package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type DB struct {
	*sql.DB
}

// New opens (or creates) the SQLite store at dsn and migrates it to the
// current schema version. The store must not be used if New returns an
// error: a partially migrated schema risks corrupting every component
// that touches it.
func New(dsn string) (*DB, error) {
	// SQLite DSN: file path (e.g., data/hondana.db, /path/to/db.sqlite, :memory:)
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Add SQLite pragmas via DSN to ensure they apply to all connections
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}

	// Configure WAL, Foreign Keys, Busy Timeout via DSN
	// modernc.org/sqlite uses _pragma query parameters
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(30000)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=cache_size(-20000)",
		"_pragma=temp_store(MEMORY)",
	}
	dsn += strings.Join(pragmas, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite needs more connections to handle nested queries (N+1) in the
	// snapshot builder and concurrent requests, preventing deadlock
	// (e.g. reader holds Conn1, needs Conn2).
	db.SetMaxOpenConns(25)

	d := &DB{db}
	if err := d.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return d, nil
}

// WithTx runs fn inside one transaction. A rollback happens on error or
// panic; the restore and migration engines rely on this as their atomic
// unit.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// Tx wraps one store transaction and carries the repository write methods.
type Tx struct {
	tx *sql.Tx
}

// querier is satisfied by both *sql.DB and *sql.Tx so repository queries
// can be shared between transactional and plain paths.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execSplit(q querier, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := q.ExecContext(context.Background(), stmt); err != nil {
			return err
		}
	}

	return nil
}
