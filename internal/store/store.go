package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite registry of indexed translation units. The symbol
// records themselves live in the PDOM file; the registry remembers which
// units went into it, their content hashes and the bindings each touched.
type Store struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewReadOnlyStore opens an existing registry at dbPath for queries. Writes
// fail and the schema is not migrated.
func NewReadOnlyStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the registry tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  pdom_file       INTEGER NOT NULL DEFAULT 0,
  binding_count   INTEGER NOT NULL DEFAULT 0,
  name_count      INTEGER NOT NULL DEFAULT 0,
  last_indexed    TIMESTAMP
);

-- One roaring64 bitmap of PDOM binding records per unit.
CREATE TABLE IF NOT EXISTS file_bindings (
  file_id         INTEGER PRIMARY KEY REFERENCES files(id),
  bitmap          BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS unit_errors (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  message         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
CREATE INDEX IF NOT EXISTS idx_unit_errors_file ON unit_errors(file_id);
`

// DeleteFile transactionally removes a unit and everything recorded for it.
// Dependent rows go first to respect FK constraints.
func (s *Store) DeleteFile(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileTx(tx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteFileTx(q querier, fileID int64) error {
	for _, stmt := range []string{
		"DELETE FROM unit_errors WHERE file_id = ?",
		"DELETE FROM file_bindings WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	} {
		if _, err := q.Exec(stmt, fileID); err != nil {
			return fmt.Errorf("delete file %d: %w", fileID, err)
		}
	}
	return nil
}
