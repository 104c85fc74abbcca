package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

func encodeBitmap(bm *roaring64.Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	bm.RunOptimize()
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode bitmap: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBitmap(data []byte) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode bitmap: %w", err)
	}
	return bm, nil
}

func setFileBindingsTx(q querier, fileID int64, bindings *roaring64.Bitmap) error {
	data, err := encodeBitmap(bindings)
	if err != nil {
		return err
	}
	_, err = q.Exec(
		"INSERT INTO file_bindings (file_id, bitmap) VALUES (?, ?) ON CONFLICT(file_id) DO UPDATE SET bitmap = excluded.bitmap",
		fileID, data,
	)
	if err != nil {
		return fmt.Errorf("set file bindings: %w", err)
	}
	return nil
}

// FileBindings returns the binding records touched by a unit. A unit with
// no recorded set yields an empty bitmap.
func (s *Store) FileBindings(fileID int64) (*roaring64.Bitmap, error) {
	var data []byte
	err := s.db.QueryRow("SELECT bitmap FROM file_bindings WHERE file_id = ?", fileID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return roaring64.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file bindings: %w", err)
	}
	return decodeBitmap(data)
}

// eachFileBindings calls fn with every unit's binding set until fn returns
// false.
func (s *Store) eachFileBindings(fn func(fileID int64, bm *roaring64.Bitmap) bool) error {
	rows, err := s.db.Query("SELECT file_id, bitmap FROM file_bindings ORDER BY file_id")
	if err != nil {
		return fmt.Errorf("scan file bindings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scan file bindings: %w", err)
		}
		bm, err := decodeBitmap(data)
		if err != nil {
			return fmt.Errorf("file %d: %w", id, err)
		}
		if !fn(id, bm) {
			break
		}
	}
	return rows.Err()
}

// FilesContainingAny returns the IDs of units that touched any record in
// recs.
func (s *Store) FilesContainingAny(recs *roaring64.Bitmap) ([]int64, error) {
	if recs == nil || recs.IsEmpty() {
		return nil, nil
	}
	var ids []int64
	err := s.eachFileBindings(func(id int64, bm *roaring64.Bitmap) bool {
		if bm.Intersects(recs) {
			ids = append(ids, id)
		}
		return true
	})
	return ids, err
}

// AllBindings returns the union of every unit's binding set.
func (s *Store) AllBindings() (*roaring64.Bitmap, error) {
	all := roaring64.New()
	err := s.eachFileBindings(func(_ int64, bm *roaring64.Bitmap) bool {
		all.Or(bm)
		return true
	})
	return all, err
}
