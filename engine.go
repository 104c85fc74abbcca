package pdom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/frontend"
	symdb "github.com/jward/pdom/internal/pdom"
	"github.com/jward/pdom/internal/store"
	"github.com/jward/pdom/scripts"
)

// UnitsSuffix is appended to the store path to name the unit registry.
const UnitsSuffix = ".units"

// Engine ties the pieces together: the C front-end, the PDOM record store
// and the SQLite registry of indexed units.
type Engine struct {
	pdom     *symdb.PDOM
	store    *store.Store
	frontend *frontend.Frontend
	logger   *Logger

	scriptsFS  fs.FS
	scriptsDir string

	dbPath      string
	readOnly    bool
	useParallel bool
	workers     int
	cacheSize   int
	version     uint32
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithParallel controls parallel parsing. When true (default), IndexFiles
// parses units on a bounded worker pool while a single writer commits them
// to the store. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the parse workers. Zero or less means one per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithReadOnly opens an existing store for queries only. The record store
// is mapped read-only, the registry is opened without write access and
// Close never flushes, so readers can run while another process indexes.
// Indexing and Reset fail with database.ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(e *Engine) {
		e.readOnly = readOnly
	}
}

// WithCacheSize bounds the PDOM result cache. Zero disables it.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithFormatVersion sets the record format of a newly created store.
// Existing stores keep their version.
func WithFormatVersion(v uint32) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// WithScriptsFS loads Risor scripts from fsys. The default is the embedded
// scripts package.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads Risor scripts from a directory on disk instead of
// the embedded ones.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
		e.scriptsFS = nil
	}
}

// New opens the PDOM store at dbPath, creating it when missing, and the
// unit registry next to it at dbPath+UnitsSuffix.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      NoopLogger(),
		scriptsFS:   scripts.FS,
		dbPath:      dbPath,
		useParallel: true,
		cacheSize:   symdb.DefaultCacheSize,
		version:     database.CurrentVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.frontend = frontend.New(frontend.WithLogger(e.logger.Logger))

	if e.readOnly {
		return e.openReadOnly()
	}

	_, statErr := os.Stat(dbPath)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	p, err := symdb.Open(dbPath, e.pdomOptions()...)
	if err != nil {
		return nil, fmt.Errorf("pdom: open store: %w", err)
	}
	s, err := store.NewStore(dbPath + UnitsSuffix)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("pdom: open registry: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		p.Close()
		return nil, fmt.Errorf("pdom: migrate registry: %w", err)
	}
	e.pdom, e.store = p, s

	if err := e.checkVersions(fresh); err != nil {
		e.pdom.Close()
		e.store.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) openReadOnly() (*Engine, error) {
	p, err := symdb.OpenReadOnly(e.dbPath, e.pdomOptions()...)
	if err != nil {
		return nil, fmt.Errorf("pdom: open store: %w", err)
	}
	s, err := store.NewReadOnlyStore(e.dbPath + UnitsSuffix)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("pdom: open registry: %w", err)
	}
	e.pdom, e.store = p, s
	if err := e.checkVersions(false); err != nil {
		e.pdom.Close()
		e.store.Close()
		return nil, err
	}
	return e, nil
}

// errReadOnly is returned by the operations a read-only engine refuses.
func errReadOnly(op string) error {
	return fmt.Errorf("pdom: %s: %w", op, database.ErrReadOnly)
}

func (e *Engine) pdomOptions() []symdb.Option {
	return []symdb.Option{
		symdb.WithLogger(e.logger.Logger),
		symdb.WithCacheSize(e.cacheSize),
		symdb.WithVersion(e.version),
	}
}

// checkVersions forgets every registered unit when the registry no longer
// describes the store: the store file was recreated, its format changed, or
// the front-end's translation rules changed.
func (e *Engine) checkVersions(fresh bool) error {
	format := strconv.FormatUint(uint64(e.pdom.Version()), 10)
	stale := fresh
	for key, want := range map[string]string{
		store.MetaFormatVersion:   format,
		store.MetaFrontendVersion: frontend.Version,
	} {
		got, ok, err := e.store.GetMetadata(key)
		if err != nil {
			return fmt.Errorf("pdom: check versions: %w", err)
		}
		if ok && got != want {
			e.logger.Info("registry out of date", "key", key, "stored", got, "current", want)
			stale = true
		}
	}
	if e.readOnly {
		if stale {
			e.logger.Warn("index out of date, run pdom index", "path", e.dbPath)
		}
		return nil
	}
	if stale {
		if err := e.forgetUnits(); err != nil {
			return fmt.Errorf("pdom: check versions: %w", err)
		}
	}
	if err := e.store.SetMetadata(store.MetaFormatVersion, format); err != nil {
		return err
	}
	return e.store.SetMetadata(store.MetaFrontendVersion, frontend.Version)
}

// forgetUnits drops every unit from the registry so the next run indexes
// all files again.
func (e *Engine) forgetUnits() error {
	files, err := e.store.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.store.DeleteFile(f.ID); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes a changed store and releases both databases. A store that
// was only read is not written back.
func (e *Engine) Close() error {
	var flushErr error
	if !e.readOnly {
		flushErr = e.pdom.Flush()
	}
	return errors.Join(flushErr, e.pdom.Close(), e.store.Close())
}

// ReadOnly reports whether the engine was opened for queries only.
func (e *Engine) ReadOnly() bool {
	return e.readOnly
}

// Flush writes the PDOM store to disk if it changed.
func (e *Engine) Flush() error {
	return e.pdom.Flush()
}

// Reset discards the PDOM store and the registry. Records are never
// deleted from a store, so this is the way to drop bindings that no longer
// exist in the sources.
func (e *Engine) Reset() error {
	if e.readOnly {
		return errReadOnly("reset")
	}
	if err := e.pdom.Close(); err != nil {
		return fmt.Errorf("pdom: reset: %w", err)
	}
	p, err := symdb.Recreate(e.dbPath, e.pdomOptions()...)
	if err != nil {
		return fmt.Errorf("pdom: reset: %w", err)
	}
	e.pdom = p
	if err := e.forgetUnits(); err != nil {
		return fmt.Errorf("pdom: reset: %w", err)
	}
	e.logger.Info("store reset", "path", e.dbPath)
	return nil
}

// Store returns the unit registry for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// PDOM returns the record store for direct access.
func (e *Engine) PDOM() *symdb.PDOM {
	return e.pdom
}

// Query returns a new QueryBuilder over the engine's stores.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{pdom: e.pdom, store: e.store}
}

// IndexReport summarizes one IndexFiles or IndexDirectory call.
type IndexReport struct {
	Indexed     int      `json:"indexed"`
	Skipped     int      `json:"skipped"`
	Removed     int      `json:"removed"`
	Names       int      `json:"names"`
	Diagnostics int      `json:"diagnostics"`
	Failed      []string `json:"failed,omitempty"`

	errs []error
}

func (r *IndexReport) fail(path string, err error) {
	r.Failed = append(r.Failed, path)
	r.errs = append(r.errs, fmt.Errorf("index %s: %w", path, err))
}

// Err wraps the first per-file failure, or is nil.
func (r *IndexReport) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("indexing had %d error(s): %w", len(r.errs), r.errs[0])
}

// workItem is one unit that needs indexing.
type workItem struct {
	path string
	src  []byte
	hash string
	prev int64 // registry ID of the previous indexing, 0 for new units

	unit *frontend.Unit
	err  error
}

// IndexFiles indexes the C sources among paths. Files whose content hash
// matches the registry are skipped. With WithParallel, parsing runs on a
// worker pool and a single writer commits units to the store.
//
// Errors on individual files are collected and processing continues; the
// returned error wraps the first of them. Cancellation stops before the next
// unit is written; units written so far stay.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (*IndexReport, error) {
	report := &IndexReport{}
	if e.readOnly {
		return report, errReadOnly("index")
	}
	var items []*workItem
	for _, path := range paths {
		if !frontend.IsSource(path) {
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			report.fail(path, err)
			e.logger.LogUnit(ctx, path, 0, 0, 0, err)
			continue
		}
		item, skip, err := e.prepare(path, src)
		if err != nil {
			return report, err
		}
		if skip {
			report.Skipped++
			continue
		}
		items = append(items, item)
	}

	var err error
	if e.useParallel && len(items) > 1 {
		err = e.indexParallel(ctx, items, report)
	} else {
		err = e.indexSerial(ctx, items, report)
	}
	e.logger.LogRun(ctx, report.Indexed, report.Skipped, len(report.Failed))
	if err != nil {
		return report, err
	}
	return report, report.Err()
}

// IndexSource indexes src as the content of path, subject to the same
// change detection as IndexFiles.
func (e *Engine) IndexSource(ctx context.Context, path string, src []byte) (*IndexReport, error) {
	report := &IndexReport{}
	if e.readOnly {
		return report, errReadOnly("index")
	}
	item, skip, err := e.prepare(path, src)
	if err != nil {
		return report, err
	}
	if skip {
		report.Skipped++
		return report, nil
	}
	if err := e.indexSerial(ctx, []*workItem{item}, report); err != nil {
		return report, err
	}
	return report, report.Err()
}

// prepare returns the work item for path, or skip when the registry holds
// the same content.
func (e *Engine) prepare(path string, src []byte) (*workItem, bool, error) {
	hash := store.ContentHash(src)
	existing, err := e.store.FileByPath(path)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", path, err)
	}
	if existing == nil {
		return &workItem{path: path, src: src, hash: hash}, false, nil
	}
	if existing.Hash == hash {
		return nil, true, nil
	}
	return &workItem{path: path, src: src, hash: hash, prev: existing.ID}, false, nil
}

func (e *Engine) indexSerial(ctx context.Context, items []*workItem, report *IndexReport) error {
	batch := store.NewBatchedStore()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, e.commit(batch))
		}
		e.parse(ctx, item)
		if err := e.write(ctx, item, batch, report); err != nil {
			return errors.Join(err, e.commit(batch))
		}
	}
	return e.commit(batch)
}

func (e *Engine) parse(ctx context.Context, item *workItem) {
	item.unit, item.err = e.frontend.Parse(ctx, item.path, item.src)
}

// write commits one parsed unit to the PDOM and buffers its registry row.
// Only storage failures are returned; per-unit failures go to the report.
func (e *Engine) write(ctx context.Context, item *workItem, batch *store.BatchedStore, report *IndexReport) error {
	if item.err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.fail(item.path, item.err)
		e.logger.LogUnit(ctx, item.path, 0, 0, 0, item.err)
		return nil
	}

	res, err := e.pdom.IndexUnit(ctx, item.path, item.unit.Names)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	bindings := bindingSet(res.Bindings)
	if item.prev != 0 {
		if err := e.pruneDropped(item.prev, bindings); err != nil {
			return fmt.Errorf("prune %s: %w", item.path, err)
		}
	}
	var unitErrors []string
	for _, d := range item.unit.Diagnostics {
		unitErrors = append(unitErrors, d.String())
	}
	for _, err := range res.Errors {
		e.logger.LogBindingFailure(ctx, item.path, err)
		unitErrors = append(unitErrors, err.Error())
	}
	if err := batch.PutUnit(&store.Unit{
		File: store.File{
			Path:         item.path,
			Hash:         item.hash,
			PDOMFile:     int64(res.File),
			BindingCount: len(res.Bindings),
			NameCount:    res.Names,
		},
		Bindings: bindings,
		Errors:   unitErrors,
	}); err != nil {
		return err
	}

	report.Indexed++
	report.Names += res.Names
	report.Diagnostics += len(item.unit.Diagnostics)
	e.logger.LogUnit(ctx, item.path, res.Names, len(res.Bindings), len(res.Errors), nil)
	return nil
}

// bindingSet converts binding records to the registry's bitmap form.
func bindingSet(recs []database.Ptr) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, rec := range recs {
		bm.Add(uint64(rec))
	}
	return bm
}

// pruneDropped unlinks the members a unit no longer produces. The registry
// still holds the unit's previous binding set; what it had and current
// lacks is checked against the names left in the store.
func (e *Engine) pruneDropped(fileID int64, current *roaring64.Bitmap) error {
	dropped, err := e.store.FileBindings(fileID)
	if err != nil {
		return err
	}
	if current != nil {
		dropped.AndNot(current)
	}
	if dropped.IsEmpty() {
		return nil
	}
	recs := make([]database.Ptr, 0, dropped.GetCardinality())
	it := dropped.Iterator()
	for it.HasNext() {
		recs = append(recs, database.Ptr(it.Next()))
	}
	_, err = e.pdom.PruneMembers(recs)
	return err
}

func (e *Engine) commit(batch *store.BatchedStore) error {
	if err := e.store.CommitBatch(batch); err != nil {
		return fmt.Errorf("commit units: %w", err)
	}
	return nil
}

func (e *Engine) numWorkers(items int) int {
	n := e.workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, items))
}

// skipDirs are directories excluded from the filesystem walk.
var skipDirs = map[string]bool{
	"build":        true,
	"node_modules": true,
	"vendor":       true,
}

// IndexDirectory indexes every C source under root. Inside a git
// repository it lists files with git ls-files to respect .gitignore;
// otherwise it walks the tree, skipping hidden and build directories.
// Registered units under root whose files are gone are removed from the
// registry and their names cleared.
func (e *Engine) IndexDirectory(ctx context.Context, root string) (*IndexReport, error) {
	if e.readOnly {
		return &IndexReport{}, errReadOnly("index")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	paths, err := e.gitListFiles(root)
	if err != nil {
		e.logger.Debug("git listing unavailable, walking", "root", root, "error", err)
		paths, err = e.walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}

	report, indexErr := e.IndexFiles(ctx, paths)
	removed, err := e.removeVanished(root, paths)
	report.Removed = removed
	if indexErr != nil {
		return report, indexErr
	}
	return report, err
}

// removeVanished forgets the units under root that are not in present.
func (e *Engine) removeVanished(root string, present []string) (int, error) {
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		keep[p] = true
	}
	files, err := e.store.Files()
	if err != nil {
		return 0, err
	}
	prefix := filepath.Clean(root) + string(filepath.Separator)
	removed := 0
	for _, f := range files {
		if keep[f.Path] || !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		if err := e.pdom.ClearUnit(f.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		if err := e.pruneDropped(f.ID, nil); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		if err := e.store.DeleteFile(f.ID); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		e.logger.Info("unit removed", "file", f.Path)
		removed++
	}
	return removed, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) C sources under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if path := filepath.Join(root, line); frontend.IsSource(path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// walkListFiles discovers sources by walking the filesystem.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if frontend.IsSource(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
