package segment

import (
	"multihop/common"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Topology holds the directly measured latencies between ordered probe pairs.
// A missing entry means no measurement succeeded in that direction.
type Topology struct {
	Links map[common.ProbeID]map[common.ProbeID]float64
	mutex sync.RWMutex
}

func NewTopology() *Topology {
	return &Topology{
		Links: make(map[common.ProbeID]map[common.ProbeID]float64),
	}
}

// AddLink records the latency measured from source to target. Self links are ignored.
func (t *Topology) AddLink(source, target common.ProbeID, latency float64) {
	if source == target {
		log.Debugf("AddLink: ignoring self link for probe %d", source)
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Links[source]; !exists {
		t.Links[source] = make(map[common.ProbeID]float64)
	}

	t.Links[source][target] = latency
}

func (t *Topology) GetLinkWeight(source, target common.ProbeID) (float64, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if targetLinks, exists := t.Links[source]; exists {
		if latency, exists := targetLinks[target]; exists {
			return latency, true
		}
	}

	return 0, false
}

func (t *Topology) GetOutgoingLinks(source common.ProbeID) map[common.ProbeID]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make(map[common.ProbeID]float64)
	if targetLinks, exists := t.Links[source]; exists {
		for target, latency := range targetLinks {
			result[target] = latency
		}
	}

	return result
}

func (t *Topology) NodeCount() int {
	return len(t.GetAllNodes())
}

func (t *Topology) LinkCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	count := 0
	for _, targetLinks := range t.Links {
		count += len(targetLinks)
	}

	return count
}

// GetAllNodes returns every probe that appears on either end of a link, ascending
func (t *Topology) GetAllNodes() []common.ProbeID {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	nodeSet := make(map[common.ProbeID]bool)
	for source, targetLinks := range t.Links {
		nodeSet[source] = true
		for target := range targetLinks {
			nodeSet[target] = true
		}
	}

	nodes := make([]common.ProbeID, 0, len(nodeSet))
	for node := range nodeSet {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	return nodes
}

// Segment is one directly measured latency
type Segment struct {
	From    common.ProbeID `json:"from_id"`
	To      common.ProbeID `json:"to_id"`
	Latency float64        `json:"latency"`
}

// Segments lists every link ordered by (from, to)
func (t *Topology) Segments() []Segment {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	segments := make([]Segment, 0)
	for source, targetLinks := range t.Links {
		for target, latency := range targetLinks {
			segments = append(segments, Segment{From: source, To: target, Latency: latency})
		}
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].From != segments[j].From {
			return segments[i].From < segments[j].From
		}
		return segments[i].To < segments[j].To
	})
	return segments
}
