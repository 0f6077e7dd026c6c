package goroutine_pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitPoolRunsTasks(t *testing.T) {
	defer ReleaseAllPools()

	pool, err := InitPool(SearchPool, 3)
	require.NoError(t, err)
	assert.Same(t, pool, GetPool(SearchPool))
	assert.Equal(t, 3, pool.Cap())

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(20), count.Load())
}

func TestInitPoolReplacesPrevious(t *testing.T) {
	defer ReleaseAllPools()

	first, err := InitPool(SearchPool, 2)
	require.NoError(t, err)
	second, err := InitPool(SearchPool, 4)
	require.NoError(t, err)

	assert.True(t, first.IsClosed())
	assert.Same(t, second, GetPool(SearchPool))
}

func TestReleasePool(t *testing.T) {
	_, err := InitPool(WorkerPool, 1)
	require.NoError(t, err)

	ReleasePool(WorkerPool)
	assert.Nil(t, GetPool(WorkerPool))
	ReleasePool(WorkerPool)
}
