package main

import (
	"database/sql"
	"fmt"
	"multihop/common"
	"multihop/db_models"
	"multihop/middleware"
	"multihop/segment"
	"multihop/storage"
	"multihop/structs"

	log "github.com/sirupsen/logrus"
)

// inputs are the probes and segments of one run. db is set whenever the
// source involved MySQL.
type inputs struct {
	probes   []common.ProbeID
	topology *segment.Topology
	db       *sql.DB
}

func (in *inputs) Close() {
	if in.db != nil {
		in.db.Close()
	}
}

func loadInputs(cfg *structs.Config) (*inputs, error) {
	switch cfg.Search.Source {
	case structs.SourceMySQL:
		db, err := middleware.ConnectToDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		in := &inputs{db: db}
		if in.probes, err = db_models.QueryProbeIDs(db, cfg.Search.ExcludeFailed); err != nil {
			in.Close()
			return nil, err
		}
		if in.topology, err = db_models.LoadSegments(db); err != nil {
			in.Close()
			return nil, err
		}
		return in, nil

	case structs.SourceRedis:
		// probe list from MySQL, segment samples from Redis
		db, err := middleware.ConnectToDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		in := &inputs{db: db}
		if in.probes, err = db_models.QueryProbeIDs(db, cfg.Search.ExcludeFailed); err != nil {
			in.Close()
			return nil, err
		}

		pool := middleware.NewRedisPool(cfg.Redis)
		defer pool.Close()
		conn := pool.Get()
		defer conn.Close()

		if in.topology, err = segment.LoadFromRedis(conn, in.probes); err != nil {
			in.Close()
			return nil, err
		}
		return in, nil

	case structs.SourceFile:
		fm, err := storage.NewFileManager(cfg.Search.DataDir)
		if err != nil {
			return nil, err
		}
		probes, topology, err := fm.LoadSnapshot()
		if err != nil {
			return nil, err
		}
		return &inputs{probes: probes, topology: topology}, nil
	}

	return nil, fmt.Errorf("unknown search source %q", cfg.Search.Source)
}

func logInputs(in *inputs) {
	log.Infof("Inputs loaded, probes: %d, segments: %d", len(in.probes), in.topology.LinkCount())
}
