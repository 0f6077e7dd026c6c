package segment

import (
	"multihop/common"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records how often each direct measurement is queried
type countingSource struct {
	topology *Topology
	mu       sync.Mutex
	calls    map[[2]common.ProbeID]int
}

func newCountingSource(topology *Topology) *countingSource {
	return &countingSource{topology: topology, calls: make(map[[2]common.ProbeID]int)}
}

func (c *countingSource) GetLinkWeight(a, b common.ProbeID) (float64, bool) {
	c.mu.Lock()
	c.calls[[2]common.ProbeID{a, b}]++
	c.mu.Unlock()
	return c.topology.GetLinkWeight(a, b)
}

func TestStoreLatencyFallback(t *testing.T) {
	const A, B, C common.ProbeID = 1, 2, 3
	topology := NewTopology()
	topology.AddLink(A, B, 10)
	topology.AddLink(B, C, 5)
	topology.AddLink(C, B, 5)
	store := NewStore(topology)

	latency, ok := store.Latency(A, B, true)
	require.True(t, ok)
	assert.Equal(t, 10.0, latency)

	// B->A was never measured, fallback to A->B
	latency, ok = store.Latency(B, A, true)
	require.True(t, ok)
	assert.Equal(t, 10.0, latency)

	_, ok = store.Latency(B, A, false)
	assert.False(t, ok)

	latency, ok = store.Latency(C, B, true)
	require.True(t, ok)
	assert.Equal(t, 5.0, latency)

	_, ok = store.Latency(A, C, true)
	assert.False(t, ok)
}

func TestStoreFallbackPrefersForward(t *testing.T) {
	topology := NewTopology()
	topology.AddLink(1, 2, 10)
	topology.AddLink(2, 1, 12)
	store := NewStore(topology)

	latency, ok := store.Latency(2, 1, true)
	require.True(t, ok)
	assert.Equal(t, 12.0, latency)
}

func TestStoreFallbackDoesNotChain(t *testing.T) {
	source := newCountingSource(NewTopology())
	store := NewStore(source)

	_, ok := store.Latency(1, 2, true)
	assert.False(t, ok)
	assert.Equal(t, 1, source.calls[[2]common.ProbeID{1, 2}])
	assert.Equal(t, 1, source.calls[[2]common.ProbeID{2, 1}])
	assert.Len(t, source.calls, 2)
}

func TestMemoCacheQueriesBackingOnce(t *testing.T) {
	topology := NewTopology()
	topology.AddLink(1, 2, 7.5)
	source := newCountingSource(topology)
	memo := NewMemoCache(NewStore(source))

	for i := 0; i < 5; i++ {
		latency, ok := memo.Latency(2, 1, true)
		require.True(t, ok)
		assert.Equal(t, 7.5, latency)

		_, ok = memo.Latency(1, 3, true)
		assert.False(t, ok)
	}

	assert.Equal(t, 1, source.calls[[2]common.ProbeID{2, 1}])
	assert.Equal(t, 1, source.calls[[2]common.ProbeID{1, 2}])
	assert.Equal(t, 1, source.calls[[2]common.ProbeID{1, 3}])
	assert.Equal(t, 1, source.calls[[2]common.ProbeID{3, 1}])

	stats := memo.Stats()
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, uint64(8), stats.Hits)
	assert.Equal(t, 2, stats.Entries)
}

func TestMemoCacheKeyIncludesFallbackPolicy(t *testing.T) {
	topology := NewTopology()
	topology.AddLink(1, 2, 4)
	memo := NewMemoCache(NewStore(topology))

	_, ok := memo.Latency(2, 1, false)
	assert.False(t, ok)

	latency, ok := memo.Latency(2, 1, true)
	require.True(t, ok)
	assert.Equal(t, 4.0, latency)
}

func TestMemoCacheConcurrentUse(t *testing.T) {
	topology := NewTopology()
	for a := common.ProbeID(1); a <= 10; a++ {
		for b := common.ProbeID(1); b <= 10; b++ {
			if a < b {
				topology.AddLink(a, b, float64(a*b))
			}
		}
	}
	memo := NewMemoCache(NewStore(topology))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := common.ProbeID(1); a <= 10; a++ {
				for b := common.ProbeID(1); b <= 10; b++ {
					if a == b {
						continue
					}
					latency, ok := memo.Latency(a, b, true)
					assert.True(t, ok)
					assert.Equal(t, float64(a*b), latency)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 90, memo.Stats().Entries)
}

func TestTopology(t *testing.T) {
	topology := NewTopology()
	topology.AddLink(3, 1, 2)
	topology.AddLink(1, 2, 1)
	topology.AddLink(1, 1, 9)

	assert.Equal(t, []common.ProbeID{1, 2, 3}, topology.GetAllNodes())
	assert.Equal(t, 3, topology.NodeCount())
	assert.Equal(t, 2, topology.LinkCount())
	assert.Equal(t, map[common.ProbeID]float64{2: 1}, topology.GetOutgoingLinks(1))
	assert.Empty(t, topology.GetOutgoingLinks(2))

	_, ok := topology.GetLinkWeight(1, 1)
	assert.False(t, ok)
}

func TestTopologySegmentsAreOrdered(t *testing.T) {
	topology := NewTopology()
	topology.AddLink(3, 1, 2)
	topology.AddLink(1, 3, 4)
	topology.AddLink(1, 2, 1)

	assert.Equal(t, []Segment{
		{From: 1, To: 2, Latency: 1},
		{From: 1, To: 3, Latency: 4},
		{From: 3, To: 1, Latency: 2},
	}, topology.Segments())
	assert.Empty(t, NewTopology().Segments())
}
