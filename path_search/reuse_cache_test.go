package path_search

import (
	"multihop/common"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReuseCacheCopiesEntries(t *testing.T) {
	cache := NewReuseCache(3)
	via := []common.ProbeID{7, 8}
	cache.Put(common.PathResult{Src: 1, Dst: 2, Hops: 3, Latency: 9.5, Via: via})
	via[0] = 99

	got, ok := cache.Get(1, 2)
	require.True(t, ok)
	assert.Equal(t, []common.ProbeID{7, 8}, got.Via)

	got.Via[1] = 42
	again, _ := cache.Get(1, 2)
	assert.Equal(t, []common.ProbeID{7, 8}, again.Via)

	_, ok = cache.Get(2, 1)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestReuseCacheConcurrentReadersSeeWholeEntries(t *testing.T) {
	cache := NewReuseCache(4)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				src := common.ProbeID(w*1000 + i)
				cache.Put(common.PathResult{Src: src, Dst: 0, Hops: 4, Latency: float64(i), Via: []common.ProbeID{1, 2, 3}})
			}
		}(w)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if got, ok := cache.Get(common.ProbeID(w*1000+i), 0); ok {
					assert.Len(t, got.Via, 3)
					assert.Equal(t, float64(i), got.Latency)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, cache.Len())
}
