package db_models

import (
	"database/sql"
	"fmt"
	"multihop/common"

	log "github.com/sirupsen/logrus"
)

// PrepareResultsTable drops and recreates the results table
func PrepareResultsTable(db *sql.DB) error {
	if _, err := db.Exec("DROP TABLE IF EXISTS results"); err != nil {
		return fmt.Errorf("failed to drop results table: %w", err)
	}

	query := `
		CREATE TABLE results (
			from_id     INTEGER NOT NULL,
			to_id       INTEGER NOT NULL,
			h1          FLOAT,
			h2          FLOAT,
			h2_path     JSON,
			h3          FLOAT,
			h3_path     JSON,
			h4          FLOAT,
			h4_path     JSON,
			UNIQUE(from_id, to_id)
		)`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}

	log.Infof("PrepareResultsTable: results table recreated")
	return nil
}

// UpsertPathResult writes one hop-count slot of a result row. Only the
// columns of that hop count are touched, other slots of the row survive.
func UpsertPathResult(db *sql.DB, result common.PathResult) error {
	if !common.ValidHopCount(result.Hops) {
		return fmt.Errorf("invalid hop count %d for pair %d->%d", result.Hops, result.Src, result.Dst)
	}

	if result.Hops == common.MinHopCount {
		_, err := db.Exec(`INSERT INTO results (from_id, to_id, h1) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE h1 = VALUES(h1)`,
			result.Src, result.Dst, result.Latency)
		return err
	}

	path, err := EncodeExtraHops(result.Via)
	if err != nil {
		return err
	}

	// column names come from a validated hop count
	query := fmt.Sprintf(`INSERT INTO results (from_id, to_id, h%[1]d, h%[1]d_path) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE h%[1]d = VALUES(h%[1]d), h%[1]d_path = VALUES(h%[1]d_path)`, int(result.Hops))
	_, err = db.Exec(query, result.Src, result.Dst, result.Latency, path)
	return err
}
