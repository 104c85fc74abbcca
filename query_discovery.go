package pdom

import (
	"fmt"
	"slices"

	symdb "github.com/jward/pdom/internal/pdom"
)

// Pagination controls offset+limit paging on search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with the total count before paging.
type PagedResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
}

// SearchFilter narrows a prefix search.
type SearchFilter struct {
	Kinds         []Kind // match any of these kinds; all when empty
	CaseSensitive bool
}

// Search returns the bindings whose name starts with prefix, in index
// order. Without CaseSensitive, "str" also finds "Str_copy".
func (q *QueryBuilder) Search(prefix string, filter SearchFilter, page Pagination) (*PagedResult[BindingInfo], error) {
	page = page.normalize()
	result := &PagedResult[BindingInfo]{Items: []BindingInfo{}}
	err := q.pdom.View(func(l *symdb.CLinkage) error {
		bs, err := l.FindBindingsByPrefix(prefix, filter.CaseSensitive, 0)
		if err != nil {
			return err
		}
		if len(filter.Kinds) > 0 {
			bs = slices.DeleteFunc(bs, func(b symdb.Binding) bool {
				return !slices.Contains(filter.Kinds, b.NodeType())
			})
		}
		result.TotalCount = len(bs)
		if page.Offset >= len(bs) {
			return nil
		}
		bs = bs[page.Offset:min(len(bs), page.Offset+page.Limit)]
		result.Items, err = infos(l, bs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", prefix, err)
	}
	return result, nil
}

// Files returns the registered units in path order.
func (q *QueryBuilder) Files() ([]*File, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// UnitErrors returns the diagnostics and binding failures recorded for the
// unit at path when it was last indexed. A path that was never indexed has
// none.
func (q *QueryBuilder) UnitErrors(path string) ([]string, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("unit errors %s: %w", path, err)
	}
	if f == nil {
		return nil, nil
	}
	msgs, err := q.store.UnitErrors(f.ID)
	if err != nil {
		return nil, fmt.Errorf("unit errors %s: %w", path, err)
	}
	return msgs, nil
}

// Stats describes the size of the stores.
type Stats struct {
	Units       int    `json:"units"`
	Bindings    uint64 `json:"bindings"` // distinct bindings touched by registered units
	StoreBytes  int64  `json:"store_bytes"`
	Version     uint32 `json:"version"`
	CacheHits   int64  `json:"cache_hits"`
	CacheMisses int64  `json:"cache_misses"`
}

// Stats returns the current store statistics.
func (q *QueryBuilder) Stats() (*Stats, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	all, err := q.store.AllBindings()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	hits, misses := q.pdom.CacheStats()
	return &Stats{
		Units:       len(files),
		Bindings:    all.GetCardinality(),
		StoreBytes:  q.pdom.Size(),
		Version:     q.pdom.Version(),
		CacheHits:   hits,
		CacheMisses: misses,
	}, nil
}
