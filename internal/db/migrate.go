package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Schema versions this build can open. Stores below the minimum predate the
// versioned schema and cannot be upgraded in place.
const (
	minSchemaVersion     = 15
	currentSchemaVersion = 20
)

// MigrationError is fatal: the store must not be considered open when one is
// returned, since an inconsistent schema risks silent data corruption in
// every other component.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration to version %d: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Migration steps are strictly additive: each may create tables, indices or
// columns (guarded by existence checks so re-applying a partially completed
// step is safe) but never drops or renames a table and never deletes user
// rows. user_version advances only after the step it belongs to.
var migrations = []struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}{
	{16, migrateTo16},
	{17, migrateTo17},
	{18, migrateTo18},
	{19, migrateTo19},
	{20, migrateTo20},
}

// Migrate brings the store from any supported historical schema version up
// to the current one, then (re)creates the dependent views. It runs once at
// store-open time; the snapshot builder and the restore engine assume it has
// already completed.
func (db *DB) Migrate(ctx context.Context) error {
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return &MigrationError{Version: version, Err: err}
	}

	switch {
	case version == currentSchemaVersion:
		// Schema is current; views are still refreshed below so a build
		// with changed view definitions takes effect.

	case version == 0:
		// Either a fresh store or a pre-versioning one. A pre-versioning
		// store has user tables but never stamped user_version.
		populated, err := tableExists(ctx, db, "books")
		if err != nil {
			return &MigrationError{Version: version, Err: err}
		}
		if populated {
			return &MigrationError{Version: version, Err: errors.New("store predates schema version 15 and cannot be upgraded")}
		}
		if err := db.initFreshSchema(ctx); err != nil {
			return &MigrationError{Version: currentSchemaVersion, Err: err}
		}

	case version < minSchemaVersion:
		return &MigrationError{Version: version, Err: fmt.Errorf("schema version %d is older than the oldest supported version %d", version, minSchemaVersion)}

	case version > currentSchemaVersion:
		return &MigrationError{Version: version, Err: fmt.Errorf("schema version %d was written by a newer build (current is %d)", version, currentSchemaVersion)}

	default:
		for _, m := range migrations {
			if m.version <= version {
				continue
			}
			err := db.WithTx(ctx, func(t *Tx) error {
				if err := m.apply(ctx, t.tx); err != nil {
					return err
				}
				_, err := t.tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version))
				return err
			})
			if err != nil {
				return &MigrationError{Version: m.version, Err: err}
			}
		}
	}

	if err := db.createViews(ctx); err != nil {
		return &MigrationError{Version: currentSchemaVersion, Err: err}
	}

	return nil
}

// SchemaVersion reads the store's PRAGMA user_version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (db *DB) initFreshSchema(ctx context.Context) error {
	return db.WithTx(ctx, func(t *Tx) error {
		if err := execSplit(t.tx, schemaSQL); err != nil {
			return err
		}
		_, err := t.tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
		return err
	})
}

// Views are derived data and are rebuilt on every migration run.
func (db *DB) createViews(ctx context.Context) error {
	stmts := []string{
		`DROP VIEW IF EXISTS view_recent_updates`,
		`CREATE VIEW view_recent_updates AS
			SELECT b.id AS book_id, b.title AS title, b.last_update AS last_update
			FROM books b
			WHERE b.favorite = 1
			ORDER BY b.last_update DESC`,
		`DROP VIEW IF EXISTS view_reading_stats`,
		`CREATE VIEW view_reading_stats AS
			SELECT b.id AS book_id, b.title AS title,
			       COUNT(c.id) AS total_chapters,
			       COALESCE(SUM(c.read), 0) AS read_chapters
			FROM books b
			LEFT JOIN chapters c ON c.book_id = b.id
			GROUP BY b.id`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// 15 -> 16: category support.
func migrateTo16(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			flags INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS book_categories (
			book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			PRIMARY KEY (book_id, category_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// 16 -> 17: reading history; chapter keys become unique per book.
func migrateTo17(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			chapter_key TEXT NOT NULL,
			read_at INTEGER NOT NULL DEFAULT 0,
			progress REAL NOT NULL DEFAULT 0,
			UNIQUE(book_id, chapter_key)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chapters_book_key ON chapters(book_id, "key")`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// 17 -> 18: custom covers and the date-added sort key.
func migrateTo18(ctx context.Context, tx *sql.Tx) error {
	if err := addColumn(ctx, tx, "books", "custom_cover", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return addColumn(ctx, tx, "books", "date_added", "INTEGER NOT NULL DEFAULT 0")
}

// 18 -> 19: per-book viewer and chapter flags; history read durations.
func migrateTo19(ctx context.Context, tx *sql.Tx) error {
	if err := addColumn(ctx, tx, "books", "viewer", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := addColumn(ctx, tx, "books", "chapter_flags", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := addColumn(ctx, tx, "history", "read_duration", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_history_book ON history(book_id)`)
	return err
}

// 19 -> 20: no structural change. The version was consumed by a released
// build that only rebuilt the dependent views.
func migrateTo20(ctx context.Context, tx *sql.Tx) error {
	return nil
}

// SQLite has no ADD COLUMN IF NOT EXISTS, so the guard is explicit.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil || exists {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name).Scan(&n)
	return n > 0, err
}

func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return n > 0, err
}
