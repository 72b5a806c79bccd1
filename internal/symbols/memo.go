package symbols

import (
	lru "github.com/hashicorp/golang-lru"
)

// memoEntry - cached result of all three lookups for one PC.
type memoEntry struct {
	msym    *Minimal
	sym     *Function
	entry   uint64
	entryOK bool
}

// Memo - a Resolver that memoizes recent lookups of another Resolver.
//
// The trace builder resolves symbols once per decoded instruction, and
// instructions cluster heavily in a handful of functions, so a small LRU
// in front of the real resolver absorbs almost all lookups.
type Memo struct {
	next  Resolver
	cache *lru.Cache
}

// Memoize wraps next with an LRU of the given size. A size of zero or less
// falls back to a sensible default.
func Memoize(next Resolver, size int) *Memo {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New(size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Memo{next: next, cache: cache}
}

// resolve - returns the cached entry for pc, filling the cache on a miss.
func (m *Memo) resolve(pc uint64) memoEntry {
	if cached, ok := m.cache.Get(pc); ok {
		return cached.(memoEntry)
	}

	var e memoEntry
	e.msym = m.next.MinimalAt(pc)
	e.sym = m.next.FunctionAt(pc)
	e.entry, e.entryOK = m.next.FunctionEntry(pc)

	m.cache.Add(pc, e)
	return e
}

// FunctionAt implements Resolver.
func (m *Memo) FunctionAt(pc uint64) *Function {
	return m.resolve(pc).sym
}

// MinimalAt implements Resolver.
func (m *Memo) MinimalAt(pc uint64) *Minimal {
	return m.resolve(pc).msym
}

// FunctionEntry implements Resolver.
func (m *Memo) FunctionEntry(pc uint64) (uint64, bool) {
	e := m.resolve(pc)
	return e.entry, e.entryOK
}
