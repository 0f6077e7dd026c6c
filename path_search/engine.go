package path_search

import (
	"context"
	"errors"
	"fmt"
	"multihop/common"
	"multihop/results"
	"multihop/segment"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidHopCount   = errors.New("hop count out of range")
	ErrInconsistentReuse = errors.New("inconsistent symmetric reuse entry")
)

// Engine searches, for every ordered pair of probes, the lowest-latency path
// made of exactly h segments. Each hop count is searched independently.
type Engine struct {
	probes []common.ProbeID
	lookup segment.Lookup
	sink   results.Sink
	pool   *ants.Pool
}

type Option func(*Engine)

// WithPool runs pair searches concurrently on the given pool. Without a pool
// pairs are searched sequentially.
func WithPool(pool *ants.Pool) Option {
	return func(e *Engine) {
		e.pool = pool
	}
}

func NewEngine(probes []common.ProbeID, lookup segment.Lookup, sink results.Sink, opts ...Option) *Engine {
	seen := make(map[common.ProbeID]bool, len(probes))
	unique := make([]common.ProbeID, 0, len(probes))
	for _, p := range probes {
		if seen[p] {
			log.Warnf("NewEngine: duplicate probe %d ignored", p)
			continue
		}
		seen[p] = true
		unique = append(unique, p)
	}

	e := &Engine{
		probes: unique,
		lookup: lookup,
		sink:   sink,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probes returns the probe set searched by the engine
func (e *Engine) Probes() []common.ProbeID {
	probes := make([]common.ProbeID, len(e.probes))
	copy(probes, e.probes)
	return probes
}

// Stats summarizes one hop-count search
type Stats struct {
	Hops       common.HopCount `json:"hops"`
	Pairs      int64           `json:"pairs"`
	Searched   int64           `json:"searched"`
	Reused     int64           `json:"reused"`
	Found      int64           `json:"found"`
	Candidates int64           `json:"candidates"`
	Duration   time.Duration   `json:"duration"`
}

type searchRun struct {
	engine *Engine
	hops   common.HopCount
	reuse  *ReuseCache

	pairs      atomic.Int64
	searched   atomic.Int64
	reused     atomic.Int64
	found      atomic.Int64
	candidates atomic.Int64
}

// Search computes the best h-hop path of every ordered pair and pushes every
// improvement to the sink. Pairs are handled in units of {a, b}: a->b is
// searched first and b->a then reuses it reversed. Results pushed before an
// error or a cancellation remain valid.
func (e *Engine) Search(ctx context.Context, h common.HopCount) (Stats, error) {
	if !common.ValidHopCount(h) {
		return Stats{}, fmt.Errorf("%w: %d", ErrInvalidHopCount, h)
	}

	start := time.Now()
	run := &searchRun{
		engine: e,
		hops:   h,
		reuse:  NewReuseCache(h),
	}

	log.Infof("Search: calculating %d-hop paths, probe num: %d", h, len(e.probes))

	var err error
	if e.pool == nil {
		err = run.sequential(ctx)
	} else {
		err = run.concurrent(ctx)
	}

	stats := Stats{
		Hops:       h,
		Pairs:      run.pairs.Load(),
		Searched:   run.searched.Load(),
		Reused:     run.reused.Load(),
		Found:      run.found.Load(),
		Candidates: run.candidates.Load(),
		Duration:   time.Since(start),
	}
	if err != nil {
		log.Errorf("Search: %d-hop search stopped after %d pairs, err: %v", h, stats.Pairs, err)
		return stats, err
	}

	log.Infof("Search: %d-hop done, pairs: %d, searched: %d, reused: %d, found: %d, candidates: %d, took: %v",
		h, stats.Pairs, stats.Searched, stats.Reused, stats.Found, stats.Candidates, stats.Duration)
	return stats, nil
}

// SearchAll runs Search for every hop count in order and stops at the first error
func (e *Engine) SearchAll(ctx context.Context, hops []common.HopCount) (map[common.HopCount]Stats, error) {
	all := make(map[common.HopCount]Stats, len(hops))
	for _, h := range hops {
		stats, err := e.Search(ctx, h)
		all[h] = stats
		if err != nil {
			return all, fmt.Errorf("failed to calculate %d-hop paths: %w", h, err)
		}
	}
	return all, nil
}

func (r *searchRun) sequential(ctx context.Context) error {
	probes := r.engine.probes
	for i := 0; i < len(probes); i++ {
		for j := i + 1; j < len(probes); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.solveUnit(probes[i], probes[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *searchRun) concurrent(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	probes := r.engine.probes
	for i := 0; i < len(probes); i++ {
		for j := i + 1; j < len(probes); j++ {
			if ctx.Err() != nil {
				break
			}
			a, b := probes[i], probes[j]

			wg.Add(1)
			err := r.engine.pool.Submit(func() {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				if err := r.solveUnit(a, b); err != nil {
					fail(err)
				}
			})
			if err != nil {
				wg.Done()
				fail(fmt.Errorf("failed to submit pair %d<->%d: %w", a, b, err))
			}
		}
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// solveUnit handles a->b and then b->a
func (r *searchRun) solveUnit(a, b common.ProbeID) error {
	if err := r.solve(common.Pair{Src: a, Dst: b}); err != nil {
		return err
	}
	return r.solve(common.Pair{Src: b, Dst: a})
}

func (r *searchRun) solve(pair common.Pair) error {
	r.pairs.Add(1)

	if r.hops > common.MinHopCount {
		if cached, ok := r.reuse.Get(pair.Dst, pair.Src); ok {
			return r.reuseReverse(pair, cached)
		}
	}

	r.searched.Add(1)
	best, found, err := r.search(pair)
	if err != nil {
		return err
	}
	if !found {
		log.Debugf("%d-hop path %v: no valid path", r.hops, pair)
		return nil
	}

	r.found.Add(1)
	if r.hops > common.MinHopCount {
		r.reuse.Put(best)
	}
	return nil
}

func (r *searchRun) reuseReverse(pair common.Pair, cached common.PathResult) error {
	if cached.Hops != r.hops || len(cached.Via) != r.hops.Intermediates() {
		return fmt.Errorf("%w: entry %d->%d has hops %d with %d intermediates, searching %d hops",
			ErrInconsistentReuse, cached.Src, cached.Dst, cached.Hops, len(cached.Via), r.hops)
	}

	result := cached.Reversed()
	r.reuse.Put(result)
	r.reused.Add(1)
	r.found.Add(1)

	log.Debugf("%d-hop path %v reused from reverse: %v", r.hops, pair, result.Latency)
	if err := r.engine.sink.Record(result); err != nil {
		return fmt.Errorf("failed to record %d-hop result for %v: %w", r.hops, pair, err)
	}
	return nil
}

// search enumerates every candidate sequence for the pair and pushes each
// strict improvement to the sink
func (r *searchRun) search(pair common.Pair) (common.PathResult, bool, error) {
	var (
		best       common.PathResult
		found      bool
		recordErr  error
		candidates int64
	)

	pool := intermediatePool(r.engine.probes, pair.Src, pair.Dst)
	forEachSequence(pool, r.hops.Intermediates(), func(via []common.ProbeID) bool {
		candidates++

		latency, ok := pathLatency(r.engine.lookup, pair.Src, via, pair.Dst)
		if !ok {
			return true
		}
		latency = common.Round2(latency)
		if found && latency >= best.Latency {
			return true
		}

		hops := make([]common.ProbeID, len(via))
		copy(hops, via)
		best = common.PathResult{
			Src:     pair.Src,
			Dst:     pair.Dst,
			Hops:    r.hops,
			Latency: latency,
			Via:     hops,
		}
		found = true

		log.Debugf("%d-hop path %v via %v: %v", r.hops, pair, hops, latency)
		if err := r.engine.sink.Record(best); err != nil {
			recordErr = fmt.Errorf("failed to record %d-hop result for %v: %w", r.hops, pair, err)
			return false
		}
		return true
	})

	r.candidates.Add(candidates)
	return best, found, recordErr
}
