package main

import (
	"context"
	"multihop/collector"
	"multihop/common"
	"multihop/db_models"
	"multihop/goroutine_pool"
	"multihop/path_search"
	"multihop/results"
	"multihop/segment"
	"multihop/storage"
	"multihop/structs"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	noDB         bool
	saveSnapshot bool
)

type calculateOptions struct {
	hops         []common.HopCount
	noDB         bool
	saveSnapshot bool
}

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate the best path of every probe pair for each hop count",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := calculateOptions{
			hops:         resolveHops(hopFlags, cfg.Search.HopCounts),
			noDB:         noDB,
			saveSnapshot: saveSnapshot,
		}
		_, err := runCalculate(cmd.Context(), cfg, opts)
		return err
	},
}

// newEngine builds the search engine over in, running pair units on the
// shared search pool when more than one worker is configured. release frees
// the pool.
func newEngine(cfg *structs.Config, in *inputs, sink results.Sink) (engine *path_search.Engine, lookup *segment.MemoCache, release func(), err error) {
	lookup = segment.NewMemoCache(segment.NewStore(in.topology))
	release = func() {}

	var opts []path_search.Option
	if workers := collector.ResolveWorkers(cfg.Search.Workers); workers > 1 {
		pool, err := goroutine_pool.InitPool(goroutine_pool.SearchPool, workers)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, path_search.WithPool(pool))
		release = func() { goroutine_pool.ReleasePool(goroutine_pool.SearchPool) }
	}

	return path_search.NewEngine(in.probes, lookup, sink, opts...), lookup, release, nil
}

// runCalculate searches every hop count and returns the collected rows. Rows
// always land in results.json; with a MySQL connection the results table is
// recreated and filled as improvements are found.
func runCalculate(ctx context.Context, cfg *structs.Config, opts calculateOptions) ([]results.Row, error) {
	in, err := loadInputs(cfg)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	logInputs(in)

	fm, err := storage.NewFileManager(cfg.Search.DataDir)
	if err != nil {
		return nil, err
	}
	if opts.saveSnapshot && cfg.Search.Source != structs.SourceFile {
		if err := fm.SaveSnapshot(in.probes, in.topology); err != nil {
			return nil, err
		}
	}

	memory := results.NewMemorySink()
	sinks := results.MultiSink{memory}
	if in.db != nil && !opts.noDB {
		if err := db_models.PrepareResultsTable(in.db); err != nil {
			return nil, err
		}
		sinks = append(sinks, db_models.NewSQLSink(in.db))
	}

	engine, lookup, release, err := newEngine(cfg, in, sinks)
	if err != nil {
		return nil, err
	}
	defer release()

	_, searchErr := engine.SearchAll(ctx, opts.hops)

	memo := lookup.Stats()
	log.Infof("Segment cache, entries: %d, hits: %d, misses: %d", memo.Entries, memo.Hits, memo.Misses)

	// partial results are still worth keeping
	rows := memory.Rows()
	if err := fm.SaveResults(rows); err != nil {
		return rows, err
	}
	if searchErr != nil {
		return rows, searchErr
	}

	log.Infof("All done, result rows: %d", len(rows))
	return rows, nil
}

func init() {
	calculateCmd.Flags().IntSliceVar(&hopFlags, "hops", nil, "Hop counts to calculate (default from config)")
	calculateCmd.Flags().BoolVar(&noDB, "no-db", false, "Do not write results to MySQL")
	calculateCmd.Flags().BoolVar(&saveSnapshot, "save-snapshot", false, "Save probes and segments to the data dir")
	rootCmd.AddCommand(calculateCmd)
}
