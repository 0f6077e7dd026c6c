package main

import (
	"multihop/db_models"
	"multihop/export"
	"multihop/results"
	"multihop/segment"
	"multihop/storage"
	"multihop/structs"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var outputDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export probes.csv, matrix.csv, results.csv and notes.txt",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Export.OutputDir
		if outputDir != "" {
			dir = outputDir
		}
		return runExport(cfg, dir)
	},
}

func runExport(cfg *structs.Config, dir string) error {
	in, err := loadInputs(cfg)
	if err != nil {
		return err
	}
	defer in.Close()

	bundle := export.Bundle{
		Lookup: segment.NewMemoCache(segment.NewStore(in.topology)),
	}

	if in.db != nil {
		if bundle.Probes, err = db_models.QueryProbeDetails(in.db, cfg.Search.ExcludeFailed); err != nil {
			return err
		}
		if bundle.Summary, err = db_models.QueryMeasurementSummary(in.db); err != nil {
			return err
		}
		if bundle.Rows, err = db_models.QueryResults(in.db); err != nil {
			log.Warningf("No path results exported: %v", err)
		}
	} else {
		bundle.Probes = make([]db_models.ProbeDetail, len(in.probes))
		for i, id := range in.probes {
			bundle.Probes[i] = db_models.ProbeDetail{ID: id}
		}
		bundle.Rows = loadResultsFile(cfg)
	}

	if err := export.WriteFiles(dir, bundle); err != nil {
		return err
	}
	log.Infof("All done, exported to %s", dir)
	return nil
}

func loadResultsFile(cfg *structs.Config) []results.Row {
	fm, err := storage.NewFileManager(cfg.Search.DataDir)
	if err != nil {
		log.Warningf("No path results exported: %v", err)
		return nil
	}
	rows, err := fm.LoadResults()
	if err != nil {
		log.Warningf("No path results exported: %v", err)
		return nil
	}
	return rows
}

func init() {
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
