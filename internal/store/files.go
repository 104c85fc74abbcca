package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const fileCols = "id, path, hash, pdom_file, binding_count, name_count, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var last sql.NullTime
	err := scanner.Scan(&f.ID, &f.Path, &hash, &f.PDOMFile, &f.BindingCount, &f.NameCount, &last)
	if err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LastIndexed = last.Time
	return f, nil
}

func (s *Store) InsertFile(f *File) (int64, error) {
	return insertFileTx(s.db, f)
}

func insertFileTx(q querier, f *File) (int64, error) {
	res, err := q.Exec(
		"INSERT INTO files (path, hash, pdom_file, binding_count, name_count, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Hash, f.PDOMFile, f.BindingCount, f.NameCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

// UpdateFile rewrites every column of the row with f.ID.
func (s *Store) UpdateFile(f *File) error {
	return updateFileTx(s.db, f)
}

func updateFileTx(q querier, f *File) error {
	res, err := q.Exec(
		"UPDATE files SET path = ?, hash = ?, pdom_file = ?, binding_count = ?, name_count = ?, last_indexed = ? WHERE id = ?",
		f.Path, f.Hash, f.PDOMFile, f.BindingCount, f.NameCount, f.LastIndexed, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update file %d: %w", f.ID, sql.ErrNoRows)
	}
	return nil
}

// FileByPath returns the unit registered for path, or nil.
func (s *Store) FileByPath(path string) (*File, error) {
	return fileByPathTx(s.db, path)
}

func fileByPathTx(q querier, path string) (*File, error) {
	f, err := scanFile(q.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FileByID returns the unit with the given ID, or nil.
func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

// Files returns every registered unit ordered by path.
func (s *Store) Files() ([]*File, error) {
	return s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
}

// FilesByIDs returns the units with the given IDs ordered by path.
func (s *Store) FilesByIDs(ids []int64) ([]*File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryFiles("SELECT "+fileCols+" FROM files WHERE id IN ("+placeholderList(len(ids))+") ORDER BY path",
		int64sToArgs(ids)...)
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UnitErrors returns the binding failures recorded at the last indexing of
// the unit.
func (s *Store) UnitErrors(fileID int64) ([]string, error) {
	rows, err := s.db.Query("SELECT message FROM unit_errors WHERE file_id = ? ORDER BY id", fileID)
	if err != nil {
		return nil, fmt.Errorf("unit errors: %w", err)
	}
	defer rows.Close()
	var msgs []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan unit error: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PutUnit records u immediately in its own transaction.
func (s *Store) PutUnit(u *Unit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put unit: begin: %w", err)
	}
	defer tx.Rollback()
	if err := putUnitTx(tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

// putUnitTx upserts the file row by path, then replaces its binding set and
// error list.
func putUnitTx(q querier, u *Unit) error {
	existing, err := fileByPathTx(q, u.File.Path)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := insertFileTx(q, &u.File); err != nil {
			return fmt.Errorf("put unit %s: %w", u.File.Path, err)
		}
	} else {
		u.File.ID = existing.ID
		if err := updateFileTx(q, &u.File); err != nil {
			return fmt.Errorf("put unit %s: %w", u.File.Path, err)
		}
	}
	if u.Bindings != nil {
		if err := setFileBindingsTx(q, u.File.ID, u.Bindings); err != nil {
			return err
		}
	}
	if _, err := q.Exec("DELETE FROM unit_errors WHERE file_id = ?", u.File.ID); err != nil {
		return fmt.Errorf("clear unit errors: %w", err)
	}
	for _, msg := range u.Errors {
		if _, err := q.Exec("INSERT INTO unit_errors (file_id, message) VALUES (?, ?)", u.File.ID, msg); err != nil {
			return fmt.Errorf("insert unit error: %w", err)
		}
	}
	return nil
}
