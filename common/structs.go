package common

import (
	"fmt"
	"math"
)

// ProbeID identifies a measurement vantage point. Ids are opaque; the
// measurement network hands them out as integers.
type ProbeID int64

// HopCount is the number of segments in a path. A path with h hops has
// h-1 intermediate probes.
type HopCount int

const (
	MinHopCount HopCount = 1
	MaxHopCount HopCount = 4
)

// AllHopCounts lists every supported hop count in ascending order
var AllHopCounts = []HopCount{1, 2, 3, 4}

// ValidHopCount reports whether h is within [MinHopCount, MaxHopCount]
func ValidHopCount(h HopCount) bool {
	return h >= MinHopCount && h <= MaxHopCount
}

// Intermediates returns the number of intermediate probes a path of h hops carries
func (h HopCount) Intermediates() int {
	return int(h) - 1
}

func (h HopCount) String() string {
	return fmt.Sprintf("h%d", int(h))
}

// Pair is an ordered (source, destination) probe pair
type Pair struct {
	Src ProbeID
	Dst ProbeID
}

// Reverse returns the pair with source and destination swapped
func (p Pair) Reverse() Pair {
	return Pair{Src: p.Dst, Dst: p.Src}
}

func (p Pair) String() string {
	return fmt.Sprintf("%d->%d", p.Src, p.Dst)
}

// PathResult is the best path found for (Src, Dst) at a given hop count
type PathResult struct {
	Src     ProbeID   `json:"from_id"`
	Dst     ProbeID   `json:"to_id"`
	Hops    HopCount  `json:"hops"`
	Latency float64   `json:"latency"`
	Via     []ProbeID `json:"extra_hops"` // intermediate probes, src and dst excluded
}

// Reversed returns the result for (Dst, Src) with the intermediate sequence
// reversed and the latency reused verbatim
func (r PathResult) Reversed() PathResult {
	via := make([]ProbeID, len(r.Via))
	for i, p := range r.Via {
		via[len(r.Via)-1-i] = p
	}
	return PathResult{
		Src:     r.Dst,
		Dst:     r.Src,
		Hops:    r.Hops,
		Latency: r.Latency,
		Via:     via,
	}
}

// Nodes returns the complete probe sequence src, via..., dst
func (r PathResult) Nodes() []ProbeID {
	nodes := make([]ProbeID, 0, len(r.Via)+2)
	nodes = append(nodes, r.Src)
	nodes = append(nodes, r.Via...)
	return append(nodes, r.Dst)
}

// Round2 rounds a latency to two decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
