package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"loglens/internal/logindex"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// DB persists built line indexes in SQLite so an unchanged log file can
// skip its linear scan on the next process start. It implements
// logindex.Store. The database is a cache: rows whose fingerprint (size,
// mtime) no longer matches the file are ignored and replaced.
//
// Thread-safe within one process; WAL mode + busy timeout make concurrent
// access from multiple processes safe as well.
type DB struct {
	db *sql.DB
}

// Open creates or opens the index database at dbPath.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("indexdb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("indexdb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: busy timeout: %w", err)
	}

	return &DB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (d *DB) Close() error {
	_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return d.db.Close()
}

// Migrate creates tables if they don't exist.
func (d *DB) Migrate() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("indexdb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("indexdb: create metadata: %w", err)
	}

	// One row per indexed file; fingerprint = (size, mtime_ns).
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path       TEXT PRIMARY KEY,
			size       INTEGER NOT NULL,
			mtime_ns   INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("indexdb: create files: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			path        TEXT NOT NULL,
			line_number INTEGER NOT NULL,
			byte_offset INTEGER NOT NULL,
			byte_length INTEGER NOT NULL,
			ts_ns       INTEGER NOT NULL DEFAULT 0,
			record_kind TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (path, line_number)
		)
	`); err != nil {
		return fmt.Errorf("indexdb: create entries: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("indexdb: set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indexdb: commit migrate: %w", err)
	}
	return nil
}

// Load returns the persisted entries for path if the stored fingerprint
// matches. ok is false on any mismatch or absence.
func (d *DB) Load(path string, size int64, mtime time.Time) ([]logindex.Entry, bool, error) {
	var storedSize, storedMtime int64
	err := d.db.QueryRow(
		`SELECT size, mtime_ns FROM files WHERE path = ?`, path,
	).Scan(&storedSize, &storedMtime)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("indexdb: load file row: %w", err)
	}
	if storedSize != size || storedMtime != mtime.UnixNano() {
		return nil, false, nil
	}

	rows, err := d.db.Query(`
		SELECT line_number, byte_offset, byte_length, ts_ns, record_kind
		FROM entries WHERE path = ? ORDER BY line_number
	`, path)
	if err != nil {
		return nil, false, fmt.Errorf("indexdb: load entries: %w", err)
	}
	defer rows.Close()

	var entries []logindex.Entry
	for rows.Next() {
		var e logindex.Entry
		var tsNs int64
		if err := rows.Scan(&e.LineNumber, &e.ByteOffset, &e.ByteLength, &tsNs, &e.RecordKind); err != nil {
			return nil, false, fmt.Errorf("indexdb: scan entry: %w", err)
		}
		if tsNs != 0 {
			e.Timestamp = time.Unix(0, tsNs).UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("indexdb: iterate entries: %w", err)
	}
	return entries, true, nil
}

// Save replaces the persisted entries for path in one transaction.
func (d *DB) Save(path string, size int64, mtime time.Time, entries []logindex.Entry) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("indexdb: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE path = ?`, path); err != nil {
		return fmt.Errorf("indexdb: clear entries: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO entries (path, line_number, byte_offset, byte_length, ts_ns, record_kind)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("indexdb: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var tsNs int64
		if !e.Timestamp.IsZero() {
			tsNs = e.Timestamp.UnixNano()
		}
		if _, err := stmt.Exec(path, e.LineNumber, e.ByteOffset, e.ByteLength, tsNs, e.RecordKind); err != nil {
			return fmt.Errorf("indexdb: insert entry %d: %w", e.LineNumber, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO files (path, size, mtime_ns, indexed_at)
		VALUES (?, ?, ?, ?)
	`, path, size, mtime.UnixNano(), time.Now().Unix()); err != nil {
		return fmt.Errorf("indexdb: upsert file row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indexdb: commit save: %w", err)
	}
	return nil
}

// Invalidate drops any persisted entries for path.
func (d *DB) Invalidate(path string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("indexdb: begin invalidate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE path = ?`, path); err != nil {
		return fmt.Errorf("indexdb: delete entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("indexdb: delete file row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indexdb: commit invalidate: %w", err)
	}
	return nil
}
