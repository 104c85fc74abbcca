// Package cache provides a bounded LRU map used to memoize decoded records.
//
// Entries are evicted least-recently-used first once the entry count exceeds
// the capacity. Invalidate drops every entry whose key matches a predicate,
// which is how writers keep readers from seeing stale decodes.
package cache
