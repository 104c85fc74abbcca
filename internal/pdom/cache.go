package pdom

import (
	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

type cacheKind uint8

const (
	// front-end binding -> record, valid for one indexing session
	cacheAdapted cacheKind = iota + 1
	// (structure, field name) -> field record
	cacheFieldByName
	// enumeration -> []database.Ptr of its enumerators
	cacheEnumerators
)

// cacheKey identifies a derived result. Only the fields relevant to kind are
// set.
type cacheKey struct {
	kind cacheKind
	rec  database.Ptr
	name string
	sem  sema.Binding
}

func adaptedKey(b sema.Binding) cacheKey {
	return cacheKey{kind: cacheAdapted, sem: b}
}

func (p *PDOM) cachedResult(key cacheKey) (any, bool) {
	return p.cache.Get(key)
}

func (p *PDOM) putCachedResult(key cacheKey, v any) {
	p.cache.Put(key, v)
}

func (p *PDOM) removeCachedResult(key cacheKey) {
	p.cache.Remove(key)
}

// invalidateFields drops the field lookups of owner.
func (p *PDOM) invalidateFields(owner database.Ptr) {
	p.cache.Invalidate(func(k cacheKey) bool {
		return k.kind == cacheFieldByName && k.rec == owner
	})
}

// ClearResultCache ends an indexing session: the front-end bindings it
// cached are dropped. Derived results keyed by record stay valid.
func (p *PDOM) ClearResultCache() {
	p.cache.Invalidate(func(k cacheKey) bool { return k.kind == cacheAdapted })
}

// CacheStats returns the hit and miss counts of the result cache.
func (p *PDOM) CacheStats() (hits, misses int64) {
	return p.cache.Stats()
}
