package segment

import (
	"multihop/common"
)

// Source answers direct measurements only; it never applies fallback.
type Source interface {
	GetLinkWeight(a, b common.ProbeID) (float64, bool)
}

// Lookup resolves the latency of the segment a->b. When allowFallback is set
// and a->b was not measured, the b->a measurement is used instead.
type Lookup interface {
	Latency(a, b common.ProbeID, allowFallback bool) (float64, bool)
}

// Store is the read-only segment latency accessor over a Source
type Store struct {
	source Source
}

func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Latency tries the forward direction, then the reverse direction once.
// The reverse lookup never falls back again.
func (s *Store) Latency(a, b common.ProbeID, allowFallback bool) (float64, bool) {
	if latency, ok := s.source.GetLinkWeight(a, b); ok {
		return latency, true
	}
	if !allowFallback {
		return 0, false
	}
	return s.source.GetLinkWeight(b, a)
}
