package store

import (
	"fmt"
	"sync"
)

// UnitWriter records indexed units. Store writes through immediately;
// BatchedStore buffers until CommitBatch.
type UnitWriter interface {
	PutUnit(u *Unit) error
}

// Compile-time checks.
var (
	_ UnitWriter = (*Store)(nil)
	_ UnitWriter = (*BatchedStore)(nil)
)

// BatchedStore buffers unit records in memory so an indexing run commits
// its registry changes in one transaction. Safe for concurrent PutUnit.
type BatchedStore struct {
	mu    sync.Mutex
	units []*Unit
	index map[string]int // path -> position in units
}

// NewBatchedStore returns an empty batch.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{index: make(map[string]int)}
}

// PutUnit buffers u. A later unit for the same path replaces the earlier
// one.
func (b *BatchedStore) PutUnit(u *Unit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.index[u.File.Path]; ok {
		b.units[i] = u
		return nil
	}
	b.index[u.File.Path] = len(b.units)
	b.units = append(b.units, u)
	return nil
}

// Len returns the number of buffered units.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.units)
}

// CommitBatch writes every buffered unit within a single transaction and
// empties the batch. On error nothing is written and the batch is kept.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()
	if len(batch.units) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, u := range batch.units {
		if err := putUnitTx(tx, u); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	batch.units = nil
	clear(batch.index)
	return nil
}
