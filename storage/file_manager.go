package storage

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"multihop/common"
	"multihop/results"
	"multihop/segment"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrNoSnapshot is returned when the data directory has no snapshot.json
var ErrNoSnapshot = errors.New("no snapshot found")

// Snapshot is an offline copy of the search inputs
type Snapshot struct {
	Probes   []common.ProbeID  `json:"probes"`
	Segments []segment.Segment `json:"segments"`
}

// FileManager keeps the search inputs and outputs as JSON files under a data directory
type FileManager struct {
	dataDir      string
	snapshotFile string
	resultsFile  string
	snapshotHash string
	resultsHash  string
	snapshotLock sync.RWMutex
	resultsLock  sync.RWMutex
}

func NewFileManager(dataDir string) (*FileManager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}
	manager := &FileManager{
		dataDir:      dataDir,
		snapshotFile: filepath.Join(dataDir, "snapshot.json"),
		resultsFile:  filepath.Join(dataDir, "results.json"),
	}
	manager.calculateHashes()
	return manager, nil
}

// SaveSnapshot writes the probe list and every segment of the topology
func (fm *FileManager) SaveSnapshot(probes []common.ProbeID, topology *segment.Topology) error {
	fm.snapshotLock.Lock()
	defer fm.snapshotLock.Unlock()

	snapshot := Snapshot{Probes: probes, Segments: topology.Segments()}
	if snapshot.Probes == nil {
		snapshot.Probes = []common.ProbeID{}
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(fm.snapshotFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	fm.snapshotHash = hashOrWarn(fm.snapshotFile)
	log.Infof("SaveSnapshot, probes: %d, segments: %d, md5: %s", len(snapshot.Probes), len(snapshot.Segments), fm.snapshotHash)
	return nil
}

// LoadSnapshot reads snapshot.json back into a probe list and a Topology
func (fm *FileManager) LoadSnapshot() ([]common.ProbeID, *segment.Topology, error) {
	fm.snapshotLock.RLock()
	defer fm.snapshotLock.RUnlock()

	data, err := os.ReadFile(fm.snapshotFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%s: %w", fm.snapshotFile, ErrNoSnapshot)
		}
		return nil, nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, nil, fmt.Errorf("error unmarshalling snapshot (%s): %w", fm.snapshotFile, err)
	}

	topology := segment.NewTopology()
	for _, s := range snapshot.Segments {
		topology.AddLink(s.From, s.To, s.Latency)
	}

	log.Infof("successfully loaded. File: %v", fm.snapshotFile)
	return snapshot.Probes, topology, nil
}

func (fm *FileManager) SaveResults(rows []results.Row) error {
	fm.resultsLock.Lock()
	defer fm.resultsLock.Unlock()

	if rows == nil {
		rows = []results.Row{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(fm.resultsFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	fm.resultsHash = hashOrWarn(fm.resultsFile)
	log.Infof("SaveResults, rows: %d, md5: %s", len(rows), fm.resultsHash)
	return nil
}

func (fm *FileManager) LoadResults() ([]results.Row, error) {
	fm.resultsLock.RLock()
	defer fm.resultsLock.RUnlock()

	data, err := os.ReadFile(fm.resultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var rows []results.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("error unmarshalling results (%s): %w", fm.resultsFile, err)
	}
	return rows, nil
}

func (fm *FileManager) GetSnapshotHash() string {
	fm.snapshotLock.RLock()
	defer fm.snapshotLock.RUnlock()
	return fm.snapshotHash
}

func (fm *FileManager) GetResultsHash() string {
	fm.resultsLock.RLock()
	defer fm.resultsLock.RUnlock()
	return fm.resultsHash
}

func (fm *FileManager) calculateHashes() {
	fm.snapshotLock.Lock()
	fm.snapshotHash = hashOrWarn(fm.snapshotFile)
	fm.snapshotLock.Unlock()

	fm.resultsLock.Lock()
	fm.resultsHash = hashOrWarn(fm.resultsFile)
	fm.resultsLock.Unlock()

	log.Debugf("calculateHashes, snapshotHash: %s, resultsHash: %s", fm.snapshotHash, fm.resultsHash)
}

func hashOrWarn(path string) string {
	hash, err := calculateFileMD5(path)
	if err != nil {
		log.Warningf("file hash failed, file: %s, err: %v", path, err)
	}
	return hash
}

// calculateFileMD5 returns "" for a missing file
func calculateFileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
