package db_models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"multihop/common"
	"multihop/results"
	"multihop/segment"
	"time"

	log "github.com/sirupsen/logrus"
)

const failedSenders = `SELECT DISTINCT from_id FROM measurements WHERE state = 'FAILED'`

// QueryProbeIDs returns every probe id in ascending order. With excludeFailed,
// probes that have at least one failed outgoing measurement are left out.
func QueryProbeIDs(db *sql.DB, excludeFailed bool) ([]common.ProbeID, error) {
	query := "SELECT id FROM probes ORDER BY id ASC"
	if excludeFailed {
		query = "SELECT id FROM probes WHERE id NOT IN (" + failedSenders + ") ORDER BY id ASC"
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query probes: %w", err)
	}
	defer rows.Close()

	var ids []common.ProbeID
	for rows.Next() {
		var id common.ProbeID
		if err := rows.Scan(&id); err != nil {
			log.Errorf("QueryProbeIDs Scan id failed, err=%s", err)
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// LoadSegments reads every successful direct measurement into a Topology
func LoadSegments(db *sql.DB) (*segment.Topology, error) {
	rows, err := db.Query("SELECT from_id, to_id, min FROM measurements WHERE min IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	topology := segment.NewTopology()
	for rows.Next() {
		var from, to common.ProbeID
		var latency float64
		if err := rows.Scan(&from, &to, &latency); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		topology.AddLink(from, to, latency)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Infof("LoadSegments, node num: %d, link num: %d", topology.NodeCount(), topology.LinkCount())
	return topology, nil
}

// ProbeDetail describes one vantage point for export
type ProbeDetail struct {
	ID      common.ProbeID
	Address string
	AF      string
	ASN     int64
	Country string
}

func QueryProbeDetails(db *sql.DB, excludeFailed bool) ([]ProbeDetail, error) {
	query := "SELECT id, address, af, asn, country FROM probes ORDER BY id ASC"
	if excludeFailed {
		query = "SELECT id, address, af, asn, country FROM probes WHERE id NOT IN (" + failedSenders + ") ORDER BY id ASC"
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query probe details: %w", err)
	}
	defer rows.Close()

	var details []ProbeDetail
	for rows.Next() {
		var d ProbeDetail
		if err := rows.Scan(&d.ID, &d.Address, &d.AF, &d.ASN, &d.Country); err != nil {
			return nil, fmt.Errorf("failed to scan probe detail: %w", err)
		}
		details = append(details, d)
	}

	return details, rows.Err()
}

// MeasurementSummary aggregates the measurement campaign for the notes file
type MeasurementSummary struct {
	Fetched int
	Failed  int
	Start   *time.Time
	End     *time.Time
}

func QueryMeasurementSummary(db *sql.DB) (MeasurementSummary, error) {
	var summary MeasurementSummary

	err := db.QueryRow("SELECT COUNT(*) FROM measurements WHERE state = 'FETCHED'").Scan(&summary.Fetched)
	if err != nil {
		return summary, fmt.Errorf("failed to count fetched measurements: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM measurements WHERE state = 'FAILED'").Scan(&summary.Failed)
	if err != nil {
		return summary, fmt.Errorf("failed to count failed measurements: %w", err)
	}

	// timestamps are unix seconds inside the raw result document
	var start, end sql.NullInt64
	err = db.QueryRow(`SELECT MIN(results_raw_json->'$.timestamp'), MAX(results_raw_json->'$.timestamp') FROM measurements`).
		Scan(&start, &end)
	if err != nil {
		return summary, fmt.Errorf("failed to query measurement time span: %w", err)
	}
	if start.Valid {
		t := time.Unix(start.Int64, 0).UTC()
		summary.Start = &t
	}
	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		summary.End = &t
	}

	return summary, nil
}

// QueryResults reads back every result row ordered by (from_id, to_id)
func QueryResults(db *sql.DB) ([]results.Row, error) {
	rows, err := db.Query(`SELECT from_id, to_id, h1, h2, h2_path, h3, h3_path, h4, h4_path
		FROM results ORDER BY from_id ASC, to_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []results.Row
	for rows.Next() {
		var row results.Row
		var h1, h2, h3, h4 sql.NullFloat64
		var p2, p3, p4 sql.NullString
		if err := rows.Scan(&row.Src, &row.Dst, &h1, &h2, &p2, &h3, &p3, &h4, &p4); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		if h1.Valid {
			row.Slots[0] = &results.Slot{Latency: h1.Float64, Via: []common.ProbeID{}}
		}
		for i, col := range []struct {
			latency sql.NullFloat64
			path    sql.NullString
		}{{h2, p2}, {h3, p3}, {h4, p4}} {
			if !col.latency.Valid {
				continue
			}
			via, err := DecodeExtraHops(col.path.String)
			if err != nil {
				return nil, fmt.Errorf("result %d->%d h%d: %w", row.Src, row.Dst, i+2, err)
			}
			row.Slots[i+1] = &results.Slot{Latency: col.latency.Float64, Via: via}
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

type extraHops struct {
	ExtraHops []common.ProbeID `json:"extra-hops"`
}

// EncodeExtraHops renders intermediate probes as {"extra-hops": [...]}
func EncodeExtraHops(via []common.ProbeID) (string, error) {
	if via == nil {
		via = []common.ProbeID{}
	}
	data, err := json.Marshal(extraHops{ExtraHops: via})
	if err != nil {
		return "", fmt.Errorf("failed to marshal extra hops: %w", err)
	}
	return string(data), nil
}

func DecodeExtraHops(raw string) ([]common.ProbeID, error) {
	if raw == "" {
		return []common.ProbeID{}, nil
	}
	var path extraHops
	if err := json.Unmarshal([]byte(raw), &path); err != nil {
		return nil, fmt.Errorf("invalid path json %q: %w", raw, err)
	}
	if path.ExtraHops == nil {
		path.ExtraHops = []common.ProbeID{}
	}
	return path.ExtraHops, nil
}
