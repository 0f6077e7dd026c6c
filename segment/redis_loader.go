package segment

import (
	"encoding/json"
	"fmt"
	"math"
	"multihop/common"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

// LatestSamples is how many of the most recent samples per pair are considered
const LatestSamples = 10

// ProbeSample is one ping measurement result as pushed to Redis by the
// measurement collector. Min is nil when no reply was received.
type ProbeSample struct {
	FromID    common.ProbeID `json:"from_id"`
	ToID      common.ProbeID `json:"to_id"`
	Sent      int            `json:"sent"`
	Rcvd      int            `json:"rcvd"`
	Min       *float64       `json:"min"`
	Timestamp int64          `json:"timestamp"`
}

// SampleKey is the Redis list holding samples measured from a to b
func SampleKey(a, b common.ProbeID) string {
	return fmt.Sprintf("%d:%d", a, b)
}

// LoadFromRedis builds a Topology from the sample lists of every ordered pair
// of probes. The latency of a segment is the lowest min RTT among the latest
// samples that received at least one reply.
func LoadFromRedis(conn redis.Conn, probes []common.ProbeID) (*Topology, error) {
	topology := NewTopology()

	for _, a := range probes {
		for _, b := range probes {
			if a == b {
				continue
			}
			key := SampleKey(a, b)
			values, err := redis.Values(conn.Do("LRANGE", key, -LatestSamples, -1))
			if err != nil {
				return nil, fmt.Errorf("failed to read samples for key %s: %w", key, err)
			}
			if len(values) == 0 {
				continue
			}

			best := math.Inf(1)
			for _, value := range values {
				raw, ok := value.([]byte)
				if !ok {
					log.Warnf("LoadFromRedis: unexpected value type %T for key %s", value, key)
					continue
				}
				var sample ProbeSample
				if err := json.Unmarshal(raw, &sample); err != nil {
					log.Warnf("LoadFromRedis: failed to parse sample for key %s: %v", key, err)
					continue
				}
				if sample.Rcvd == 0 || sample.Min == nil {
					continue
				}
				if *sample.Min < best {
					best = *sample.Min
				}
			}

			if math.IsInf(best, 1) {
				log.Debugf("LoadFromRedis: no usable sample for %s", key)
				continue
			}
			topology.AddLink(a, b, common.Round2(best))
		}
	}

	log.Infof("LoadFromRedis, probe num: %d, link num: %d", len(probes), topology.LinkCount())
	return topology, nil
}
