package pdom

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSearchEngine indexes n functions named str_fn000.. plus a few
// differently cased names.
func newSearchEngine(t *testing.T, n int) *Engine {
	t.Helper()
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "int str_fn%03d(void) { return %d; }\n", i, i)
	}
	b.WriteString("int Str_copy;\nstruct str_buf { int len; };\nint strip;\n")
	e := newTestEngine(t)
	_, err := e.IndexSource(context.Background(), "search.c", []byte(b.String()))
	require.NoError(t, err)
	return e
}

func infoNames(infos []BindingInfo) []string {
	var out []string
	for _, info := range infos {
		out = append(out, info.Name)
	}
	return out
}

// ====================================================================
// Search
// ====================================================================

func TestSearch_Prefix(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, 3)

	res, err := e.Query().Search("str_", SearchFilter{CaseSensitive: true}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalCount)
	assert.ElementsMatch(t, []string{"str_fn000", "str_fn001", "str_fn002", "str_buf"}, infoNames(res.Items))
}

func TestSearch_CaseInsensitiveByDefault(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, 1)

	res, err := e.Query().Search("STR", SearchFilter{}, Pagination{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"str_fn000", "Str_copy", "str_buf", "strip"}, infoNames(res.Items))

	res, err = e.Query().Search("Str", SearchFilter{CaseSensitive: true}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Str_copy"}, infoNames(res.Items))
}

func TestSearch_KindFilter(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, 2)

	res, err := e.Query().Search("str", SearchFilter{Kinds: []Kind{KindVariable}}, Pagination{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Str_copy", "strip"}, infoNames(res.Items))
	assert.Equal(t, 2, res.TotalCount)

	res, err = e.Query().Search("str", SearchFilter{Kinds: []Kind{KindStructure, KindVariable}}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
}

func TestSearch_Pagination(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, 120)
	q := e.Query()
	filter := SearchFilter{Kinds: []Kind{KindFunction}}

	first, err := q.Search("str_fn", filter, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 120, first.TotalCount)
	assert.Len(t, first.Items, defaultLimit)

	seen := map[string]bool{}
	for offset := 0; offset < 120; offset += 40 {
		page, err := q.Search("str_fn", filter, Pagination{Offset: offset, Limit: 40})
		require.NoError(t, err)
		assert.Len(t, page.Items, 40)
		for _, info := range page.Items {
			seen[info.Name] = true
		}
	}
	assert.Len(t, seen, 120)

	past, err := q.Search("str_fn", filter, Pagination{Offset: 500})
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.Equal(t, 120, past.TotalCount)
}

func TestPagination_Normalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Pagination
		want Pagination
	}{
		{"defaults", Pagination{}, Pagination{Limit: defaultLimit}},
		{"negative offset", Pagination{Offset: -5, Limit: 10}, Pagination{Limit: 10}},
		{"capped limit", Pagination{Limit: 10000}, Pagination{Limit: maxLimit}},
		{"kept", Pagination{Offset: 3, Limit: 7}, Pagination{Offset: 3, Limit: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.normalize())
		})
	}
}

func TestSearch_EmptyPrefixMatchesAll(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, 2)

	res, err := e.Query().Search("", SearchFilter{}, Pagination{Limit: maxLimit})
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalCount)
}

func TestSearchAll_CollectsEveryPage(t *testing.T) {
	t.Parallel()
	e := newSearchEngine(t, maxLimit+20)

	all, err := searchAll(e.Query(), "str_fn", SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, maxLimit+20)
}

// ====================================================================
// Files, UnitErrors, Stats
// ====================================================================

func TestFiles_SortedByPath(t *testing.T) {
	t.Parallel()
	e, dir := newQueryEngine(t)

	files, err := e.Query().Files()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []string{"list.c", "list.h", "other.c"}, basenames(files))
	for _, f := range files {
		assert.Equal(t, dir, filepath.Dir(f.Path))
		assert.NotEmpty(t, f.Hash)
		assert.Positive(t, f.BindingCount)
	}
}

func TestUnitErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.IndexSource(ctx, "good.c", []byte("int ok;\n"))
	require.NoError(t, err)
	_, _ = e.IndexSource(ctx, "bad.c", []byte("widget w;\n"))

	msgs, err := e.Query().UnitErrors("good.c")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = e.Query().UnitErrors("bad.c")
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Contains(t, strings.Join(msgs, "\n"), "widget")

	msgs, err = e.Query().UnitErrors("never.c")
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestStats(t *testing.T) {
	t.Parallel()
	e, _ := newQueryEngine(t)

	stats, err := e.Query().Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Units)
	assert.Positive(t, stats.Bindings)
	assert.Positive(t, stats.StoreBytes)
	assert.NotZero(t, stats.Version)
}

func TestStats_Empty(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	stats, err := e.Query().Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Units)
	assert.Zero(t, stats.Bindings)
}
