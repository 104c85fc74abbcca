package database

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptOffset is returned when a record address or offset falls outside
	// the allocated area of the store.
	ErrCorruptOffset = errors.New("database: corrupt offset")
	// ErrDoubleFree is returned when a block that is already free is freed again.
	ErrDoubleFree = errors.New("database: block already free")
	// ErrTooLarge is returned when an allocation exceeds MaxMallocSize.
	ErrTooLarge = errors.New("database: allocation too large")
	// ErrReadOnly is returned for mutations on a store opened read-only.
	ErrReadOnly = errors.New("database: store is read-only")
	// ErrBadMagic is returned when a file does not start with the store magic.
	ErrBadMagic = errors.New("database: not a pdom store")
	// ErrVersionMismatch is returned when the store format version is not supported.
	ErrVersionMismatch = errors.New("database: unsupported format version")
	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("database: store is closed")
)

// StorageError describes a failed store operation. Callers abort the current
// unit of work (a single binding) and keep going with the next one.
//
// The underlying sentinel can be matched with errors.Is.
type StorageError struct {
	Op     string
	Record Ptr
	Err    error
}

func (e *StorageError) Error() string {
	if e.Record != 0 {
		return fmt.Sprintf("%s @%d: %v", e.Op, e.Record, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, rec Ptr, err error) error {
	return &StorageError{Op: op, Record: rec, Err: err}
}

// IsStorageError reports whether err is (or wraps) a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
