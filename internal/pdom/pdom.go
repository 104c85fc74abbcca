package pdom

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/jward/pdom/internal/cache"
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// DefaultCacheSize is the default number of result cache entries.
const DefaultCacheSize = 4096

// PDOM is a persistent C symbol database: a record store holding the C
// linkage, the files B-tree and the name occurrences.
type PDOM struct {
	mu sync.RWMutex

	db      *database.Database
	linkage *CLinkage
	cache   *cache.LRU[cacheKey, any]
	logger  *slog.Logger

	cacheSize int
	version   uint32
}

// Option configures a PDOM.
type Option func(*PDOM)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *PDOM) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCacheSize bounds the result cache. Zero disables it.
func WithCacheSize(n int) Option {
	return func(p *PDOM) { p.cacheSize = n }
}

// WithVersion sets the format version of newly created stores. Existing
// stores keep the version in their header.
func WithVersion(v uint32) Option {
	return func(p *PDOM) { p.version = v }
}

func newPDOM(opts []Option) *PDOM {
	p := &PDOM{
		logger:    slog.New(slog.DiscardHandler),
		cacheSize: DefaultCacheSize,
		version:   database.CurrentVersion,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = cache.NewLRU[cacheKey, any](p.cacheSize)
	return p
}

// New returns an in-memory PDOM.
func New(opts ...Option) (*PDOM, error) {
	p := newPDOM(opts)
	db, err := database.New(p.version)
	if err != nil {
		return nil, fmt.Errorf("create pdom: %w", err)
	}
	return p.attach(db, true)
}

// Create returns an empty PDOM that is written to path on Flush.
func Create(path string, opts ...Option) (*PDOM, error) {
	p := newPDOM(opts)
	db, err := database.Create(path, p.version)
	if err != nil {
		return nil, fmt.Errorf("create pdom %s: %w", path, err)
	}
	return p.attach(db, true)
}

// Open opens the PDOM at path for writing, creating it when the file does
// not exist.
func Open(path string, opts ...Option) (*PDOM, error) {
	db, err := database.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Create(path, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("open pdom %s: %w", path, err)
	}
	return newPDOM(opts).attach(db, true)
}

// OpenReadOnly opens the PDOM at path for queries only.
func OpenReadOnly(path string, opts ...Option) (*PDOM, error) {
	db, err := database.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open pdom %s: %w", path, err)
	}
	return newPDOM(opts).attach(db, false)
}

func (p *PDOM) attach(db *database.Database, create bool) (*PDOM, error) {
	p.db = db
	codec, err := AnnotationCodecFor(db.Version())
	if err != nil {
		db.Close()
		return nil, err
	}
	rec, err := findOrCreateLinkage(db, database.RootSlot(rootLinkages), LinkageC, create && !db.ReadOnly())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load %s linkage: %w", LinkageC, err)
	}
	if rec == 0 {
		db.Close()
		return nil, fmt.Errorf("load %s linkage: %w", LinkageC, &database.StorageError{
			Op: "find linkage", Err: database.ErrCorruptOffset})
	}
	p.linkage = newCLinkage(p, rec, codec)
	p.logger.Debug("pdom opened", "path", db.Path(), "version", db.Version(), "read_only", db.ReadOnly())
	return p, nil
}

// Version returns the store format version.
func (p *PDOM) Version() uint32 { return p.db.Version() }

// ReadOnly reports whether the store rejects updates.
func (p *PDOM) ReadOnly() bool { return p.db.ReadOnly() }

// Path returns the backing file, "" for in-memory stores.
func (p *PDOM) Path() string { return p.db.Path() }

// Size returns the store's high-water mark in bytes.
func (p *PDOM) Size() int64 { return p.db.Size() }

// Linkage returns the C linkage. Use it inside View or Update.
func (p *PDOM) Linkage() *CLinkage { return p.linkage }

// View runs fn under the read lock.
func (p *PDOM) View(fn func(l *CLinkage) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn(p.linkage)
}

// Update runs fn under the write lock. There is one writer at a time.
func (p *PDOM) Update(fn func(l *CLinkage) error) error {
	if p.db.ReadOnly() {
		return &database.StorageError{Op: "update", Err: database.ErrReadOnly}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.linkage)
}

// Flush writes the store to its file.
func (p *PDOM) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.db.Flush(); err != nil {
		return fmt.Errorf("flush pdom: %w", err)
	}
	return nil
}

// Close releases the store without flushing.
func (p *PDOM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return p.db.Close()
}

// UnitResult summarizes one indexed translation unit.
type UnitResult struct {
	Path     string
	File     database.Ptr
	Bindings []database.Ptr
	Names    int
	Errors   []error
}

// IndexUnit replaces the names recorded for path with names and adapts
// their bindings. Binding failures are collected in the result and do not
// stop the unit; cancellation does, leaving the bindings committed so far in
// place.
func (p *PDOM) IndexUnit(ctx context.Context, path string, names []sema.Name) (*UnitResult, error) {
	res := &UnitResult{Path: path}
	err := p.Update(func(l *CLinkage) error {
		defer p.ClearResultCache()

		f, err := p.addFile(path)
		if err != nil {
			return err
		}
		res.File = f.record
		if err := p.clearNames(f); err != nil {
			return err
		}

		seen := make(map[database.Ptr]bool)
		for _, n := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n.Loc.File == "" {
				n.Loc.File = path
			}
			pb, err := l.AddBinding(n)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if pb == nil {
				continue
			}
			res.Names++
			if !seen[pb.Record()] {
				seen[pb.Record()] = true
				res.Bindings = append(res.Bindings, pb.Record())
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("index unit %s: %w", path, err)
	}
	p.logger.Debug("unit indexed", "path", path, "names", res.Names,
		"bindings", len(res.Bindings), "errors", len(res.Errors))
	return res, nil
}

// ClearUnit drops the names recorded for path. Bindings stay.
func (p *PDOM) ClearUnit(path string) error {
	return p.Update(func(*CLinkage) error {
		f, err := p.findFile(path)
		if err != nil || f == nil {
			return err
		}
		return p.clearNames(f)
	})
}

// PruneMembers unlinks the members among recs that no longer have a
// declaration from the aggregates and enumerations listing them. Callers
// pass the bindings a unit stopped producing after its names were
// replaced. Records stay allocated and the global index keeps them. It
// returns the number of members unlinked.
func (p *PDOM) PruneMembers(recs []database.Ptr) (int, error) {
	pruned := 0
	err := p.Update(func(l *CLinkage) error {
		for _, rec := range recs {
			pb, err := l.GetBinding(rec)
			if err != nil {
				return err
			}
			if pb == nil {
				continue
			}
			declared, err := pb.HasDeclaration()
			if err != nil {
				return err
			}
			if declared {
				continue
			}
			ok, err := l.unlinkMember(pb)
			if err != nil {
				return fmt.Errorf("prune %d: %w", rec, err)
			}
			if ok {
				pruned++
			}
		}
		return nil
	})
	if pruned > 0 {
		p.logger.Debug("members pruned", "count", pruned)
	}
	return pruned, err
}

// removeIfExists deletes a stale store file so Create starts clean.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Recreate discards the store at path and returns an empty one.
func Recreate(path string, opts ...Option) (*PDOM, error) {
	if err := removeIfExists(path); err != nil {
		return nil, fmt.Errorf("remove pdom %s: %w", path, err)
	}
	return Create(path, opts...)
}
