package db_models

import (
	"database/sql"
	"fmt"
	"multihop/common"
)

// SQLSink records path search improvements into the results table
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

func (s *SQLSink) Record(result common.PathResult) error {
	if err := UpsertPathResult(s.db, result); err != nil {
		return fmt.Errorf("failed to upsert result %d->%d h%d: %w", result.Src, result.Dst, result.Hops, err)
	}
	return nil
}
