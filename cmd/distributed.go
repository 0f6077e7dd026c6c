package main

import (
	"context"
	"multihop/common"
	"multihop/db_models"
	"multihop/etcd"
	"multihop/goroutine_pool"
	"multihop/middleware"
	"multihop/results"
	"multihop/storage"
	"multihop/structs"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	waitTimeout   time.Duration
	noWait        bool
	prepareTable  bool
	workerNoStore bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one search task per hop count through etcd",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd.Context(), cfg, resolveHops(hopFlags, cfg.Search.HopCounts))
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run search tasks published through etcd until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context(), cfg)
	},
}

func runPublish(ctx context.Context, cfg *structs.Config, hops []common.HopCount) error {
	if prepareTable {
		db, err := middleware.ConnectToDB(cfg.Database)
		if err != nil {
			return err
		}
		err = db_models.PrepareResultsTable(db)
		db.Close()
		if err != nil {
			return err
		}
	}

	publisher, err := etcd.NewTaskPublisher(cfg.Etcd)
	if err != nil {
		return err
	}
	defer publisher.Close()

	tasks, err := publisher.PublishSearches(ctx, hops)
	if err != nil {
		return err
	}
	if noWait {
		return nil
	}

	stats, err := publisher.CollectSearches(ctx, tasks, waitTimeout)
	if err != nil {
		return err
	}
	for _, h := range hops {
		s := stats[h]
		log.Infof("%s: pairs %d, found %d, reused %d, took %v", h, s.Pairs, s.Found, s.Reused, s.Duration)
	}
	return nil
}

func runWorker(ctx context.Context, cfg *structs.Config) error {
	in, err := loadInputs(cfg)
	if err != nil {
		return err
	}
	defer in.Close()
	logInputs(in)

	memory := results.NewMemorySink()
	sinks := results.MultiSink{memory}
	if in.db != nil && !workerNoStore {
		sinks = append(sinks, db_models.NewSQLSink(in.db))
	}

	engine, _, release, err := newEngine(cfg, in, sinks)
	if err != nil {
		return err
	}
	defer release()

	taskPool, err := goroutine_pool.InitPool(goroutine_pool.WorkerPool, len(common.AllHopCounts))
	if err != nil {
		return err
	}
	defer goroutine_pool.ReleasePool(goroutine_pool.WorkerPool)

	worker, err := etcd.NewTaskWorker(cfg.Etcd, taskPool)
	if err != nil {
		return err
	}
	worker.RegisterProcessor(etcd.SearchTaskType, etcd.NewSearchProcessor(engine))

	runErr := worker.Start(ctx)
	worker.Close()

	fm, err := storage.NewFileManager(cfg.Search.DataDir)
	if err != nil {
		return err
	}
	if err := fm.SaveResults(memory.Rows()); err != nil {
		return err
	}
	return runErr
}

func init() {
	publishCmd.Flags().IntSliceVar(&hopFlags, "hops", nil, "Hop counts to publish (default from config)")
	publishCmd.Flags().DurationVar(&waitTimeout, "timeout", 30*time.Minute, "How long to wait for each task")
	publishCmd.Flags().BoolVar(&noWait, "no-wait", false, "Return right after publishing")
	publishCmd.Flags().BoolVar(&prepareTable, "prepare-table", false, "Recreate the MySQL results table first")
	workerCmd.Flags().BoolVar(&workerNoStore, "no-db", false, "Do not write results to MySQL")
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(workerCmd)
}
