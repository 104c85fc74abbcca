package pdom

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/frontend"
	"github.com/jward/pdom/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.pdom")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeSource writes src under dir and returns its path.
func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func bindingNames(infos []BindingInfo) []string {
	var names []string
	for _, b := range infos {
		names = append(names, b.Kind+" "+b.Name)
	}
	slices.Sort(names)
	return names
}

// ====================================================================
// Lifecycle
// ====================================================================

func TestNew_CreatesStoreAndRegistry(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.pdom")
	e, err := New(dbPath)
	require.NoError(t, err)

	require.NotNil(t, e.Store())
	require.NotNil(t, e.PDOM())
	require.NotNil(t, e.Query())

	v, ok, err := e.Store().GetMetadata(store.MetaFrontendVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, frontend.Version, v)

	require.NoError(t, e.Close())
	assert.FileExists(t, dbPath)
	assert.FileExists(t, dbPath+UnitsSuffix)
}

func TestNew_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := New("/nonexistent/dir/test.pdom")
	require.Error(t, err)
}

func TestNew_ReopenKeepsUnits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.pdom")
	path := writeSource(t, dir, "a.c", "int counter;\n")

	e, err := New(dbPath)
	require.NoError(t, err)
	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	require.NoError(t, e.Close())

	e, err = New(dbPath)
	require.NoError(t, err)
	defer e.Close()

	report, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Skipped)

	infos, err := e.Query().FindBinding("counter", KindVariable)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Defined)
}

func TestNew_FrontendVersionChangeForgetsUnits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.pdom")
	path := writeSource(t, dir, "a.c", "int counter;\n")

	e, err := New(dbPath)
	require.NoError(t, err)
	_, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.NoError(t, e.Store().SetMetadata(store.MetaFrontendVersion, "0"))
	require.NoError(t, e.Close())

	e, err = New(dbPath)
	require.NoError(t, err)
	defer e.Close()

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
}

func TestNew_MissingStoreForgetsUnits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.pdom")
	path := writeSource(t, dir, "a.c", "int counter;\n")

	e, err := New(dbPath)
	require.NoError(t, err)
	_, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, os.Remove(dbPath))

	e, err = New(dbPath)
	require.NoError(t, err)
	defer e.Close()

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed, "registry must not outlive the store")
}

func TestWithReadOnly_CloseKeepsConcurrentWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.pdom")
	first := writeSource(t, dir, "a.c", "int before;\n")
	second := writeSource(t, dir, "b.c", "int after;\n")

	w, err := New(dbPath)
	require.NoError(t, err)
	_, err = w.IndexFiles(context.Background(), []string{first})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := New(dbPath, WithReadOnly(true))
	require.NoError(t, err)
	assert.True(t, r.ReadOnly())
	infos, err := r.Query().FindBinding("before")
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	w, err = New(dbPath)
	require.NoError(t, err)
	_, err = w.IndexFiles(context.Background(), []string{second})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, r.Close())

	e, err := New(dbPath)
	require.NoError(t, err)
	defer e.Close()
	infos, err = e.Query().FindBinding("after")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "closing the reader left the writer's store alone")
	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestWithReadOnly_RejectsUpdates(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.pdom")
	w, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := New(dbPath, WithReadOnly(true))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.IndexSource(context.Background(), "/virtual/x.c", []byte("int x;\n"))
	assert.ErrorIs(t, err, database.ErrReadOnly)
	_, err = r.IndexFiles(context.Background(), []string{"/virtual/x.c"})
	assert.ErrorIs(t, err, database.ErrReadOnly)
	assert.ErrorIs(t, r.Reset(), database.ErrReadOnly)
}

func TestWithReadOnly_MissingStore(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "absent.pdom")
	_, err := New(dbPath, WithReadOnly(true))
	require.Error(t, err)
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "nothing is created")
}

func TestReset_DropsBindingsAndUnits(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeSource(t, t.TempDir(), "a.c", "int counter;\n")

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.NoError(t, e.Reset())

	infos, err := e.Query().FindBinding("counter")
	require.NoError(t, err)
	assert.Empty(t, infos)
	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
}

func TestWithLogger_ReceivesUnitRecords(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	e := newTestEngine(t, WithLogger(NewTextLogger(&buf, slog.LevelDebug)))
	path := writeSource(t, t.TempDir(), "a.c", "int counter;\n")

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unit indexed")
	assert.Contains(t, buf.String(), "a.c")
}

// ====================================================================
// IndexFiles
// ====================================================================

func TestIndexFiles_SkipsUnsupportedExtensions(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeSource(t, t.TempDir(), "readme.txt", "hello")

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Zero(t, report.Indexed)

	f, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeSource(t, t.TempDir(), "a.c", "int a;\n")

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	first, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, store.ContentHash([]byte("int a;\n")), first.Hash)

	report, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
}

func TestIndexFiles_ChangedFileReplacesNames(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "a.c", "int a;\n")

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)

	writeSource(t, dir, "a.c", "int b;\n")
	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	defs, err := e.Query().Definitions("a")
	require.NoError(t, err)
	assert.Empty(t, defs, "old names of the unit are cleared")
	defs, err = e.Query().Definitions("b")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, path, defs[0].File)

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIndexFiles_EditedStructDropsOldFields(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "a.c", "struct S { int a; int b; };\n")

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	fields, err := e.Query().Fields("S")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, memberNames(fields))

	writeSource(t, dir, "a.c", "struct S { long c; };\n")
	_, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)

	fields, err = e.Query().Fields("S")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, memberNames(fields))
	assert.Contains(t, fields[0].Type, "long")
}

func TestIndexFiles_EditedEnumDropsOldEnumerators(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "e.c", "enum level { LOW, MID, HIGH = 9 };\n")

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	writeSource(t, dir, "e.c", "enum level { LOW, MID };\n")
	_, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)

	values, err := e.Query().Enumerators("level")
	require.NoError(t, err)
	assert.Equal(t, []EnumeratorValue{{Name: "LOW", Value: 0}, {Name: "MID", Value: 1}}, values)

	details, err := e.Query().Describe("level", KindEnumeration)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.NotNil(t, details[0].Max)
	assert.Equal(t, int64(1), *details[0].Max)
}

func TestIndexFiles_MissingFileReported(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := t.TempDir()
	good := writeSource(t, dir, "good.c", "int ok;\n")
	missing := filepath.Join(dir, "missing.c")

	report, err := e.IndexFiles(context.Background(), []string{missing, good})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.c")
	assert.Equal(t, []string{missing}, report.Failed)
	assert.Equal(t, 1, report.Indexed, "other files still indexed")
}

func TestIndexFiles_DiagnosticsAreUnitErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeSource(t, t.TempDir(), "bad.c", "int ok;\nint broken( {\n")

	report, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Positive(t, report.Diagnostics)

	msgs, err := e.Query().UnitErrors(path)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)

	infos, err := e.Query().FindBinding("ok")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "declarations before the error are kept")
}

func TestIndexFiles_ParallelMatchesSerial(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var paths []string
	paths = append(paths,
		writeSource(t, dir, "types.h", "struct node { int value; struct node *next; };\nint list_len(struct node *n);\n"),
		writeSource(t, dir, "list.c", "int list_len(struct node *n)\n{\n\tint c = 0;\n\tfor (; n; n = n->next)\n\t\tc++;\n\treturn c;\n}\n"),
		writeSource(t, dir, "main.c", "int list_len(struct node *n);\nstatic int verbose = 1;\nint main(void)\n{\n\treturn list_len(0) + verbose;\n}\n"),
		writeSource(t, dir, "util.c", "enum mode { QUIET, LOUD };\ntypedef enum mode mode_t;\nstatic int verbose;\n"),
	)

	serial := newTestEngine(t, WithParallel(false))
	parallel := newTestEngine(t, WithParallel(true), WithWorkers(3))
	for _, e := range []*Engine{serial, parallel} {
		report, err := e.IndexFiles(context.Background(), paths)
		require.NoError(t, err)
		assert.Equal(t, len(paths), report.Indexed)
	}

	for _, name := range []string{"node", "value", "list_len", "main", "verbose", "mode", "QUIET", "mode_t"} {
		want, err := serial.Query().FindBinding(name)
		require.NoError(t, err)
		got, err := parallel.Query().FindBinding(name)
		require.NoError(t, err)
		assert.Equal(t, bindingNames(want), bindingNames(got), name)
	}

	refs, err := parallel.Query().References("list_len", KindFunction)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "main.c", filepath.Base(refs[0].File))
	assert.Equal(t, 5, refs[0].Line)
}

func TestIndexFiles_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	paths := []string{
		writeSource(t, dir, "a.c", "int a;\n"),
		writeSource(t, dir, "b.c", "int b;\n"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		e := newTestEngine(t, WithParallel(parallel))
		report, err := e.IndexFiles(ctx, paths)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "parallel=%v: %v", parallel, err)
		assert.Zero(t, report.Indexed)
	}
}

func TestIndexSource(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	src := []byte("double scale(double x) { return x * 2; }\n")

	report, err := e.IndexSource(context.Background(), "/virtual/scale.c", src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Positive(t, report.Names)

	infos, err := e.Query().FindBinding("scale", KindFunction)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "double (double)", infos[0].Type)

	report, err = e.IndexSource(context.Background(), "/virtual/scale.c", src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
}

func TestIndexReport_Err(t *testing.T) {
	t.Parallel()
	r := &IndexReport{}
	assert.NoError(t, r.Err())

	r.fail("a.c", errors.New("boom"))
	r.fail("b.c", errors.New("bang"))
	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error(s)")
	assert.Contains(t, err.Error(), "a.c")
	assert.Equal(t, []string{"a.c", "b.c"}, r.Failed)
}

func TestNumWorkers(t *testing.T) {
	t.Parallel()
	e := &Engine{workers: 4}
	assert.Equal(t, 2, e.numWorkers(2))
	assert.Equal(t, 4, e.numWorkers(10))

	e.workers = 0
	assert.GreaterOrEqual(t, e.numWorkers(10), 1)
	assert.Equal(t, 1, e.numWorkers(0))
}

// ====================================================================
// IndexDirectory
// ====================================================================

func TestIndexDirectory_WalksSources(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := t.TempDir()
	writeSource(t, root, "src/a.c", "int a;\n")
	writeSource(t, root, "include/a.h", "extern int a;\n")
	writeSource(t, root, "build/gen.c", "int generated;\n")
	writeSource(t, root, ".hidden/x.c", "int hidden;\n")
	writeSource(t, root, "README.md", "docs")

	report, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)

	for _, name := range []string{"generated", "hidden"} {
		infos, err := e.Query().FindBinding(name)
		require.NoError(t, err)
		assert.Empty(t, infos, name)
	}
	decls, err := e.Query().Declarations("a")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "a.h", filepath.Base(decls[0].File))
}

func TestIndexDirectory_RemovesVanishedUnits(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := t.TempDir()
	writeSource(t, root, "a.c", "int a;\n")
	gone := writeSource(t, root, "b.c", "int b;\n")

	_, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	report, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Skipped)

	f, err := e.Store().FileByPath(gone)
	require.NoError(t, err)
	assert.Nil(t, f)
	defs, err := e.Query().Definitions("b")
	require.NoError(t, err)
	assert.Empty(t, defs)

	infos, err := e.Query().FindBinding("b")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "bindings outlive their units")
}

func TestIndexDirectory_VanishedUnitUnlinksItsMembers(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := t.TempDir()
	writeSource(t, root, "a.c", "struct pair { int left; };\n")
	gone := writeSource(t, root, "b.c", "struct pair { int left; int right; };\n")

	_, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	fields, err := e.Query().Fields("pair")
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, memberNames(fields))

	require.NoError(t, os.Remove(gone))
	_, err = e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)

	fields, err = e.Query().Fields("pair")
	require.NoError(t, err)
	assert.Equal(t, []string{"left"}, memberNames(fields), "left is still declared in a.c")
}
