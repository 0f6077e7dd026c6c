package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"multihop/common"
	"multihop/db_models"
	"multihop/results"
	"multihop/segment"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrMissingLatency means a matrix cell has no latency in either direction
var ErrMissingLatency = errors.New("missing latency")

const (
	ProbesFile  = "probes.csv"
	MatrixFile  = "matrix.csv"
	ResultsFile = "results.csv"
	NotesFile   = "notes.txt"
)

// WriteProbes writes one "id,address,af,asn" line per probe
func WriteProbes(w io.Writer, details []db_models.ProbeDetail) error {
	cw := csv.NewWriter(w)
	for _, d := range details {
		record := []string{formatID(d.ID), d.Address, d.AF, strconv.FormatInt(d.ASN, 10)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrix writes the N x N latency matrix in probe order. The diagonal is -1,
// every other cell is the segment latency with reverse fallback.
func WriteMatrix(w io.Writer, probes []common.ProbeID, lookup segment.Lookup) error {
	cw := csv.NewWriter(w)
	record := make([]string, len(probes))
	for _, src := range probes {
		for j, dst := range probes {
			if src == dst {
				record[j] = "-1"
				continue
			}
			latency, ok := lookup.Latency(src, dst, true)
			if !ok {
				return fmt.Errorf("invalid latency between %d and %d: %w", src, dst, ErrMissingLatency)
			}
			record[j] = formatLatency(latency)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var resultsHeader = []string{"from_id", "to_id", "h1", "h2", "h2_path", "h3", "h3_path", "h4", "h4_path"}

// WriteResults writes one line per result row. An absent slot leaves its
// latency and path fields empty; paths are intermediate ids joined by ';'.
func WriteResults(w io.Writer, rows []results.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for i := range rows {
		row := &rows[i]
		record := []string{formatID(row.Src), formatID(row.Dst)}
		for _, h := range common.AllHopCounts {
			slot := row.Slot(h)
			latency, path := "", ""
			if slot != nil {
				latency = formatLatency(slot.Latency)
				path = joinVia(slot.Via)
			}
			record = append(record, latency)
			if h > common.MinHopCount {
				record = append(record, path)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Notes summarizes a measurement campaign
type Notes struct {
	MatrixSize   int
	Fetched      int
	Failed       int
	Start        *time.Time
	End          *time.Time
	Countries    []string
	DistinctASNs int
}

// BuildNotes derives the notes from the exported probes and the measurement summary
func BuildNotes(details []db_models.ProbeDetail, summary db_models.MeasurementSummary) Notes {
	countries := make(map[string]bool)
	asns := make(map[int64]bool)
	for _, d := range details {
		countries[d.Country] = true
		asns[d.ASN] = true
	}

	notes := Notes{
		MatrixSize:   len(details),
		Fetched:      summary.Fetched,
		Failed:       summary.Failed,
		Start:        summary.Start,
		End:          summary.End,
		Countries:    make([]string, 0, len(countries)),
		DistinctASNs: len(asns),
	}
	for country := range countries {
		notes.Countries = append(notes.Countries, country)
	}
	sort.Strings(notes.Countries)
	return notes
}

func WriteNotes(w io.Writer, notes Notes) error {
	var b strings.Builder
	b.WriteString("Measurements notes:\n")
	fmt.Fprintf(&b, "- matrix size: %dx%d\n", notes.MatrixSize, notes.MatrixSize)
	fmt.Fprintf(&b, "- successful measurements: %d\n", notes.Fetched)
	fmt.Fprintf(&b, "- failed measurements: %d\n", notes.Failed)
	if notes.Start != nil {
		fmt.Fprintf(&b, "- start time (UTC): %s\n", notes.Start.UTC().Format(time.RFC3339))
	}
	if notes.End != nil {
		fmt.Fprintf(&b, "- end time (UTC): %s\n", notes.End.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- countries: %s\n", strings.Join(notes.Countries, ", "))
	fmt.Fprintf(&b, "- distinct ASNs: %d\n", notes.DistinctASNs)
	b.WriteString("- comments: \n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Bundle is everything needed to export one campaign
type Bundle struct {
	Probes  []db_models.ProbeDetail
	Lookup  segment.Lookup
	Rows    []results.Row
	Summary db_models.MeasurementSummary
}

// WriteFiles writes probes.csv, matrix.csv, results.csv and notes.txt into dir.
// results.csv is skipped when the bundle carries no rows.
func WriteFiles(dir string, bundle Bundle) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}

	ids := make([]common.ProbeID, len(bundle.Probes))
	for i, d := range bundle.Probes {
		ids[i] = d.ID
	}

	log.Infof("Exporting probes list")
	if err := writeFile(filepath.Join(dir, ProbesFile), func(w io.Writer) error {
		return WriteProbes(w, bundle.Probes)
	}); err != nil {
		return err
	}

	log.Infof("Exporting measurements matrix")
	if err := writeFile(filepath.Join(dir, MatrixFile), func(w io.Writer) error {
		return WriteMatrix(w, ids, bundle.Lookup)
	}); err != nil {
		return err
	}

	if len(bundle.Rows) > 0 {
		log.Infof("Exporting path results")
		if err := writeFile(filepath.Join(dir, ResultsFile), func(w io.Writer) error {
			return WriteResults(w, bundle.Rows)
		}); err != nil {
			return err
		}
	}

	log.Infof("Generating notes")
	return writeFile(filepath.Join(dir, NotesFile), func(w io.Writer) error {
		return WriteNotes(w, BuildNotes(bundle.Probes, bundle.Summary))
	})
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatID(id common.ProbeID) string {
	return strconv.FormatInt(int64(id), 10)
}

func formatLatency(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinVia(via []common.ProbeID) string {
	parts := make([]string, len(via))
	for i, id := range via {
		parts[i] = formatID(id)
	}
	return strings.Join(parts, ";")
}
