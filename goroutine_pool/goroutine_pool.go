package goroutine_pool

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

const (
	SearchPool = "path_search"
	WorkerPool = "etcd_worker"
)

var (
	pools     = make(map[string]*ants.Pool)
	poolsLock sync.RWMutex
)

// InitPool creates the named pool, releasing any previous pool under that name
func InitPool(poolType string, poolSize int) (*ants.Pool, error) {
	poolsLock.Lock()
	defer poolsLock.Unlock()

	if p, exists := pools[poolType]; exists {
		p.Release()
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		log.Errorf("NewPool failed, poolType=%s : err=%v", poolType, err)
		delete(pools, poolType)
		return nil, fmt.Errorf("failed to create %s pool: %w", poolType, err)
	}

	pools[poolType] = pool
	log.Debugf("InitPool, poolType=%s, size=%d", poolType, poolSize)
	return pool, nil
}

func GetPool(poolType string) *ants.Pool {
	poolsLock.RLock()
	defer poolsLock.RUnlock()

	return pools[poolType]
}

func ReleasePool(poolType string) {
	poolsLock.Lock()
	defer poolsLock.Unlock()

	if p, exists := pools[poolType]; exists {
		p.Release()
		delete(pools, poolType)
	}
}

func ReleaseAllPools() {
	poolsLock.Lock()
	defer poolsLock.Unlock()

	for k, p := range pools {
		p.Release()
		delete(pools, k)
	}
}
