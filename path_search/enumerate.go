package path_search

import (
	"multihop/common"
	"multihop/segment"
)

// forEachSequence calls visit with every ordered sequence of k distinct
// probes taken from pool, in pool order. The slice passed to visit is reused
// between calls. Enumeration stops as soon as visit returns false.
func forEachSequence(pool []common.ProbeID, k int, visit func(seq []common.ProbeID) bool) {
	seq := make([]common.ProbeID, 0, k)
	used := make([]bool, len(pool))

	var walk func() bool
	walk = func() bool {
		if len(seq) == k {
			return visit(seq)
		}
		for i, p := range pool {
			if used[i] {
				continue
			}
			used[i] = true
			seq = append(seq, p)
			cont := walk()
			seq = seq[:len(seq)-1]
			used[i] = false
			if !cont {
				return false
			}
		}
		return true
	}
	walk()
}

// intermediatePool returns the probes eligible as intermediates for the pair
func intermediatePool(probes []common.ProbeID, src, dst common.ProbeID) []common.ProbeID {
	pool := make([]common.ProbeID, 0, len(probes))
	for _, p := range probes {
		if p == src || p == dst {
			continue
		}
		pool = append(pool, p)
	}
	return pool
}

// pathLatency folds the segment latencies along src -> via... -> dst. It
// stops at the first segment that cannot be resolved and reports the whole
// path as invalid; a missing segment never counts as zero.
func pathLatency(lookup segment.Lookup, src common.ProbeID, via []common.ProbeID, dst common.ProbeID) (float64, bool) {
	total := 0.0
	prev := src
	for i := 0; i <= len(via); i++ {
		next := dst
		if i < len(via) {
			next = via[i]
		}
		latency, ok := lookup.Latency(prev, next, true)
		if !ok {
			return 0, false
		}
		total += latency
		prev = next
	}
	return total, true
}
