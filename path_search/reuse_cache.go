package path_search

import (
	"multihop/common"
	"sync"
)

// ReuseCache holds the finalized best path of every pair solved during one
// hop-count search, so that the reverse pair can reuse it. It must not be
// shared across hop counts.
type ReuseCache struct {
	hops    common.HopCount
	entries map[common.Pair]common.PathResult
	mu      sync.RWMutex
}

func NewReuseCache(hops common.HopCount) *ReuseCache {
	return &ReuseCache{
		hops:    hops,
		entries: make(map[common.Pair]common.PathResult),
	}
}

// Get returns a copy of the entry stored for (src, dst)
func (rc *ReuseCache) Get(src, dst common.ProbeID) (common.PathResult, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	entry, exists := rc.entries[common.Pair{Src: src, Dst: dst}]
	if !exists {
		return common.PathResult{}, false
	}
	return copyResult(entry), true
}

// Put stores a finalized result. Entries are written whole under the lock,
// readers never observe a partial entry.
func (rc *ReuseCache) Put(result common.PathResult) {
	entry := copyResult(result)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[common.Pair{Src: result.Src, Dst: result.Dst}] = entry
}

func (rc *ReuseCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

func copyResult(r common.PathResult) common.PathResult {
	via := make([]common.ProbeID, len(r.Via))
	copy(via, r.Via)
	r.Via = via
	return r
}
