package database

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Ptr is a record address inside a store. 0 is the null record.
type Ptr int64

// Format versions understood by this package.
const (
	// VersionLegacy stores annotation bits in the six-bit layout.
	VersionLegacy uint32 = 1
	// CurrentVersion stores annotation bits in the seven-bit layout.
	CurrentVersion uint32 = 2
)

const (
	// PtrSize is the on-disk width of a record pointer.
	PtrSize = 8
	// BlockSize is the allocation granule.
	BlockSize = 8
	// BlockHeaderSize precedes every allocated payload.
	BlockHeaderSize = 8
	// MaxBlockBytes is the largest block (header included).
	MaxBlockBytes = 4096
	// MaxMallocSize is the largest payload Malloc accepts.
	MaxMallocSize = MaxBlockBytes - BlockHeaderSize
	// RootSlots is the number of root pointers kept in the header.
	RootSlots = 16
)

const (
	offMagic     = 0
	offVersion   = 4
	offEnd       = 8
	offRoots     = 16
	offFreeLists = offRoots + RootSlots*PtrSize
	maxBlocks    = MaxBlockBytes / BlockSize

	// HeaderSize is where the first block starts.
	HeaderSize = offFreeLists + (maxBlocks+1)*PtrSize

	blockUsed int32 = 1
	blockFree int32 = 2

	minGrow = 64 << 10
)

var magic = []byte("PDOM")

// Database is a growable record store.
type Database struct {
	mu       sync.RWMutex
	path     string
	data     []byte
	readOnly bool
	closed   bool
	dirty    bool // mutated since the last load or Flush
	unmap    func() error
}

// New creates an empty in-memory store with the given format version.
func New(version uint32) (*Database, error) {
	if !supportedVersion(version) {
		return nil, storageErr("new", 0, fmt.Errorf("%w: %d", ErrVersionMismatch, version))
	}
	data := make([]byte, HeaderSize, HeaderSize+minGrow)
	copy(data[offMagic:], magic)
	binary.LittleEndian.PutUint32(data[offVersion:], version)
	binary.LittleEndian.PutUint64(data[offEnd:], uint64(HeaderSize))
	return &Database{data: data}, nil
}

// Create creates a new store that will be written to path on Flush.
// An existing file at path is replaced on the first Flush.
func Create(path string, version uint32) (*Database, error) {
	db, err := New(version)
	if err != nil {
		return nil, err
	}
	db.path = path
	db.dirty = true
	return db, nil
}

// Open loads the store at path for reading and writing.
func Open(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := validateHeader(data); err != nil {
		return nil, err
	}
	return &Database{path: path, data: data}, nil
}

// OpenReadOnly maps the store at path for concurrent readers. Mutations fail
// with ErrReadOnly.
func OpenReadOnly(path string) (*Database, error) {
	data, unmap, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("open store read-only: %w", err)
	}
	if err := validateHeader(data); err != nil {
		if unmap != nil {
			unmap()
		}
		return nil, err
	}
	return &Database{path: path, data: data, readOnly: true, unmap: unmap}, nil
}

func supportedVersion(v uint32) bool {
	return v == VersionLegacy || v == CurrentVersion
}

func validateHeader(data []byte) error {
	if len(data) < HeaderSize || !bytes.Equal(data[offMagic:offMagic+4], magic) {
		return storageErr("open", 0, ErrBadMagic)
	}
	if v := binary.LittleEndian.Uint32(data[offVersion:]); !supportedVersion(v) {
		return storageErr("open", 0, fmt.Errorf("%w: %d", ErrVersionMismatch, v))
	}
	end := binary.LittleEndian.Uint64(data[offEnd:])
	if end < HeaderSize || end > uint64(len(data)) {
		return storageErr("open", 0, ErrCorruptOffset)
	}
	return nil
}

// Path returns the file backing the store, or "" for in-memory stores.
func (db *Database) Path() string { return db.path }

// ReadOnly reports whether the store rejects mutations.
func (db *Database) ReadOnly() bool { return db.readOnly }

// Version returns the format version from the header.
func (db *Database) Version() uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return binary.LittleEndian.Uint32(db.data[offVersion:])
}

// Size returns the high-water mark in bytes.
func (db *Database) Size() int64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return int64(db.end())
}

func (db *Database) end() Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[offEnd:]))
}

// Dirty reports whether the store changed since it was loaded or last
// flushed.
func (db *Database) Dirty() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.dirty
}

// Flush writes the store to its path when it changed. The file is replaced
// atomically. A clean store leaves the file alone, so a handle that only
// read never overwrites what another writer flushed.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return storageErr("flush", 0, ErrClosed)
	}
	if db.readOnly || db.path == "" || !db.dirty {
		return nil
	}
	dir := filepath.Dir(db.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(db.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	if _, err := tmp.Write(db.data[:db.end()]); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store: rename: %w", err)
	}
	db.dirty = false
	return nil
}

// Close releases the store. It does not flush.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	var err error
	if db.unmap != nil {
		err = db.unmap()
		db.unmap = nil
	}
	db.data = nil
	return err
}

// RootSlot returns the address of root pointer slot i. Slots hold the entry
// points of higher-level structures (linkage list, file index).
func RootSlot(i int) Ptr {
	if i < 0 || i >= RootSlots {
		panic(fmt.Sprintf("database: root slot %d out of range", i))
	}
	return Ptr(offRoots + i*PtrSize)
}

// --- allocation ---

// Malloc allocates size bytes and returns the payload address. The payload of
// a reused block keeps stale contents.
func (db *Database) Malloc(size int) (Ptr, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.writable("malloc"); err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, storageErr("malloc", 0, fmt.Errorf("%w: size %d", ErrCorruptOffset, size))
	}
	if size > MaxMallocSize {
		return 0, storageErr("malloc", 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, size))
	}
	need := (size + BlockHeaderSize + BlockSize - 1) &^ (BlockSize - 1)
	if need < 2*BlockSize {
		need = 2 * BlockSize
	}
	blocks := need / BlockSize
	headOff := offFreeLists + blocks*PtrSize

	if head := Ptr(binary.LittleEndian.Uint64(db.data[headOff:])); head != 0 {
		if head < HeaderSize || head+Ptr(need) > db.end() {
			return 0, storageErr("malloc", head, ErrCorruptOffset)
		}
		next := binary.LittleEndian.Uint64(db.data[head+BlockHeaderSize:])
		binary.LittleEndian.PutUint64(db.data[headOff:], next)
		binary.LittleEndian.PutUint32(db.data[head+4:], uint32(blockUsed))
		return head + BlockHeaderSize, nil
	}

	block := db.end()
	db.grow(int(block) + need)
	binary.LittleEndian.PutUint64(db.data[offEnd:], uint64(int(block)+need))
	binary.LittleEndian.PutUint32(db.data[block:], uint32(blocks))
	binary.LittleEndian.PutUint32(db.data[block+4:], uint32(blockUsed))
	return block + BlockHeaderSize, nil
}

func (db *Database) grow(n int) {
	if n <= len(db.data) {
		return
	}
	if n <= cap(db.data) {
		db.data = db.data[:n]
		return
	}
	newCap := 2 * cap(db.data)
	if newCap < n+minGrow {
		newCap = n + minGrow
	}
	data := make([]byte, n, newCap)
	copy(data, db.data)
	db.data = data
}

// Free returns the block at p to its free list.
func (db *Database) Free(p Ptr) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.writable("free"); err != nil {
		return err
	}
	block := p - BlockHeaderSize
	if block < HeaderSize || p+BlockSize > db.end() {
		return storageErr("free", p, ErrCorruptOffset)
	}
	blocks := int(int32(binary.LittleEndian.Uint32(db.data[block:])))
	state := int32(binary.LittleEndian.Uint32(db.data[block+4:]))
	switch {
	case state == blockFree:
		return storageErr("free", p, ErrDoubleFree)
	case state != blockUsed || blocks < 2 || blocks > maxBlocks:
		return storageErr("free", p, ErrCorruptOffset)
	}
	headOff := offFreeLists + blocks*PtrSize
	head := binary.LittleEndian.Uint64(db.data[headOff:])
	binary.LittleEndian.PutUint32(db.data[block+4:], uint32(blockFree))
	binary.LittleEndian.PutUint64(db.data[p:], head)
	binary.LittleEndian.PutUint64(db.data[headOff:], uint64(block))
	return nil
}

// BlockPayload returns the usable payload size of the block at p.
func (db *Database) BlockPayload(p Ptr) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.open("block size"); err != nil {
		return 0, err
	}
	block := p - BlockHeaderSize
	if block < HeaderSize || p > db.end() {
		return 0, storageErr("block size", p, ErrCorruptOffset)
	}
	blocks := int(int32(binary.LittleEndian.Uint32(db.data[block:])))
	return blocks*BlockSize - BlockHeaderSize, nil
}

// Clear zeroes n bytes at p.
func (db *Database) Clear(p Ptr, n int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("clear", p, n)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}

// --- access checks ---

func (db *Database) open(op string) error {
	if db.closed {
		return storageErr(op, 0, ErrClosed)
	}
	return nil
}

func (db *Database) writable(op string) error {
	if err := db.open(op); err != nil {
		return err
	}
	if db.readOnly {
		return storageErr(op, 0, ErrReadOnly)
	}
	db.dirty = true
	return nil
}

func (db *Database) readSlice(op string, p Ptr, n int) ([]byte, error) {
	if err := db.open(op); err != nil {
		return nil, err
	}
	if p < offRoots || n < 0 || p+Ptr(n) > db.end() {
		return nil, storageErr(op, p, ErrCorruptOffset)
	}
	return db.data[p : p+Ptr(n)], nil
}

func (db *Database) writeSlice(op string, p Ptr, n int) ([]byte, error) {
	if err := db.writable(op); err != nil {
		return nil, err
	}
	if p < offRoots || n < 0 || p+Ptr(n) > db.end() {
		return nil, storageErr(op, p, ErrCorruptOffset)
	}
	return db.data[p : p+Ptr(n)], nil
}

// --- typed accessors ---

func (db *Database) GetByte(p Ptr) (byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	b, err := db.readSlice("get byte", p, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (db *Database) PutByte(p Ptr, v byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("put byte", p, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// GetChar reads a 2-byte character.
func (db *Database) GetChar(p Ptr) (uint16, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	b, err := db.readSlice("get char", p, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// PutChar writes a 2-byte character.
func (db *Database) PutChar(p Ptr, v uint16) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("put char", p, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// GetShort reads a signed 2-byte value.
func (db *Database) GetShort(p Ptr) (int16, error) {
	v, err := db.GetChar(p)
	return int16(v), err
}

// PutShort writes a signed 2-byte value.
func (db *Database) PutShort(p Ptr, v int16) error {
	return db.PutChar(p, uint16(v))
}

func (db *Database) GetInt(p Ptr) (int32, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	b, err := db.readSlice("get int", p, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (db *Database) PutInt(p Ptr, v int32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("put int", p, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
	return nil
}

func (db *Database) GetLong(p Ptr) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	b, err := db.readSlice("get long", p, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (db *Database) PutLong(p Ptr, v int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("put long", p, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, uint64(v))
	return nil
}

// GetRecPtr reads a record pointer.
func (db *Database) GetRecPtr(p Ptr) (Ptr, error) {
	v, err := db.GetLong(p)
	return Ptr(v), err
}

// PutRecPtr writes a record pointer.
func (db *Database) PutRecPtr(p Ptr, v Ptr) error {
	return db.PutLong(p, int64(v))
}

// GetBytes copies n bytes starting at p.
func (db *Database) GetBytes(p Ptr, n int) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	b, err := db.readSlice("get bytes", p, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// PutBytes writes v starting at p.
func (db *Database) PutBytes(p Ptr, v []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, err := db.writeSlice("put bytes", p, len(v))
	if err != nil {
		return err
	}
	copy(b, v)
	return nil
}
