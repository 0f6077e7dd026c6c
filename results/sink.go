package results

import (
	"fmt"
	"multihop/common"
	"sort"
	"sync"
)

// Sink receives every improvement found by the path search. Recording the
// same (src, dst, hops) again overwrites the previous value; recording a
// different hop count for a pair must keep the other slots intact.
type Sink interface {
	Record(result common.PathResult) error
}

// Slot is the best path known for one hop count
type Slot struct {
	Latency float64          `json:"latency"`
	Via     []common.ProbeID `json:"extra_hops"`
}

// Row is the result row of one ordered probe pair. Slots[h-1] holds hop count h;
// a nil slot means no path is known at that hop count.
type Row struct {
	Src   common.ProbeID            `json:"from_id"`
	Dst   common.ProbeID            `json:"to_id"`
	Slots [common.MaxHopCount]*Slot `json:"slots"`
}

// Slot returns the slot for hop count h, or nil
func (r *Row) Slot(h common.HopCount) *Slot {
	if !common.ValidHopCount(h) {
		return nil
	}
	return r.Slots[h-1]
}

// MemorySink keeps one row per ordered pair in memory
type MemorySink struct {
	rows map[common.Pair]*Row
	mu   sync.RWMutex
}

func NewMemorySink() *MemorySink {
	return &MemorySink{rows: make(map[common.Pair]*Row)}
}

func (m *MemorySink) Record(result common.PathResult) error {
	if !common.ValidHopCount(result.Hops) {
		return fmt.Errorf("invalid hop count %d for pair %d->%d", result.Hops, result.Src, result.Dst)
	}
	via := make([]common.ProbeID, len(result.Via))
	copy(via, result.Via)

	pair := common.Pair{Src: result.Src, Dst: result.Dst}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, exists := m.rows[pair]
	if !exists {
		row = &Row{Src: result.Src, Dst: result.Dst}
		m.rows[pair] = row
	}
	row.Slots[result.Hops-1] = &Slot{Latency: result.Latency, Via: via}
	return nil
}

// Get returns the recorded result for (src, dst, h)
func (m *MemorySink) Get(src, dst common.ProbeID, h common.HopCount) (common.PathResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, exists := m.rows[common.Pair{Src: src, Dst: dst}]
	if !exists {
		return common.PathResult{}, false
	}
	slot := row.Slot(h)
	if slot == nil {
		return common.PathResult{}, false
	}
	via := make([]common.ProbeID, len(slot.Via))
	copy(via, slot.Via)
	return common.PathResult{Src: src, Dst: dst, Hops: h, Latency: slot.Latency, Via: via}, true
}

// Rows returns a copy of every row ordered by (src, dst)
func (m *MemorySink) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]Row, 0, len(m.rows))
	for _, row := range m.rows {
		cp := Row{Src: row.Src, Dst: row.Dst}
		for i, slot := range row.Slots {
			if slot == nil {
				continue
			}
			via := make([]common.ProbeID, len(slot.Via))
			copy(via, slot.Via)
			cp.Slots[i] = &Slot{Latency: slot.Latency, Via: via}
		}
		rows = append(rows, cp)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Src != rows[j].Src {
			return rows[i].Src < rows[j].Src
		}
		return rows[i].Dst < rows[j].Dst
	})
	return rows
}

// Len returns the number of rows
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// MultiSink records into every sink in order and stops at the first error
type MultiSink []Sink

func (ms MultiSink) Record(result common.PathResult) error {
	for _, sink := range ms {
		if err := sink.Record(result); err != nil {
			return err
		}
	}
	return nil
}
