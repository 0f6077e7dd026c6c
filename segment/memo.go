package segment

import (
	"multihop/common"
	"sync"
	"sync/atomic"
)

type memoKey struct {
	a, b          common.ProbeID
	allowFallback bool
}

type memoEntry struct {
	latency float64
	ok      bool
}

// MemoCache memoizes segment lookups for the duration of one computation.
// The backing data must not change while the cache is in use. Absent
// segments are cached as well. Entries are never evicted: the key space is
// bounded by 2 * probes^2.
type MemoCache struct {
	next    Lookup
	entries map[memoKey]memoEntry
	mu      sync.RWMutex
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func NewMemoCache(next Lookup) *MemoCache {
	return &MemoCache{
		next:    next,
		entries: make(map[memoKey]memoEntry),
	}
}

func (m *MemoCache) Latency(a, b common.ProbeID, allowFallback bool) (float64, bool) {
	key := memoKey{a: a, b: b, allowFallback: allowFallback}

	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()
	if exists {
		m.hits.Add(1)
		return entry.latency, entry.ok
	}

	// concurrent misses on the same key may both query next; the result is
	// identical so the last write wins harmlessly
	latency, ok := m.next.Latency(a, b, allowFallback)
	m.misses.Add(1)

	m.mu.Lock()
	m.entries[key] = memoEntry{latency: latency, ok: ok}
	m.mu.Unlock()

	return latency, ok
}

// MemoStats reports cache effectiveness
type MemoStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

func (m *MemoCache) Stats() MemoStats {
	m.mu.RLock()
	entries := len(m.entries)
	m.mu.RUnlock()
	return MemoStats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: entries,
	}
}
