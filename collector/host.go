package collector

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// HostInfo is the part of the machine state that sizes a search run
type HostInfo struct {
	LogicalCPUs     int
	MemoryTotal     uint64
	MemoryAvailable uint64
	UsedPercent     float64
}

func CollectHostInfo() (HostInfo, error) {
	counts, err := cpu.Counts(true)
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get CPU counts: %w", err)
	}

	v, err := mem.VirtualMemory()
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get memory info: %w", err)
	}

	return HostInfo{
		LogicalCPUs:     counts,
		MemoryTotal:     v.Total,
		MemoryAvailable: v.Available,
		UsedPercent:     v.UsedPercent,
	}, nil
}

// ResolveWorkers returns configured when positive, otherwise one worker per logical CPU
func ResolveWorkers(configured int) int {
	if configured > 0 {
		return configured
	}

	info, err := CollectHostInfo()
	if err != nil || info.LogicalCPUs <= 0 {
		log.Warningf("ResolveWorkers: host info unavailable, using a single worker, err=%v", err)
		return 1
	}

	log.Infof("ResolveWorkers: %d logical CPUs, memory available %d MB of %d MB (%.2f%% used)",
		info.LogicalCPUs, info.MemoryAvailable/1024/1024, info.MemoryTotal/1024/1024, info.UsedPercent)
	return info.LogicalCPUs
}
