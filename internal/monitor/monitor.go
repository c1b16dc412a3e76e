// Package monitor samples system-wide CPU and memory pressure to
// bound the orchestrator's parallelism.
package monitor

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Throttle thresholds: above either, the orchestrator should reduce
// its parallel worker count.
const (
	memoryThrottlePercent = 85.0
	cpuThrottlePercent    = 90.0
)

// Usage is a point-in-time snapshot of system resource usage
type Usage struct {
	CPUPercent        float64 `json:"cpu_percent"`
	SystemUsedPercent float64 `json:"system_used_percent"`
	SystemAvailableMB float64 `json:"system_available_mb"`
	CPUCount          int     `json:"cpu_count"`
}

// Monitor samples OS-level resource usage. Between calls it keeps
// only the previous CPU tick sample needed to compute a delta.
type Monitor struct {
	mu       sync.Mutex
	prevBusy uint64
	prevAll  uint64
}

// New creates a resource monitor
func New() *Monitor {
	return &Monitor{}
}

// Usage returns the current usage snapshot. Sampling failures
// degrade to a zeroed snapshot rather than blocking scheduling.
func (m *Monitor) Usage() Usage {
	usage := Usage{CPUCount: runtime.NumCPU()}

	used, availableMB, err := sampleMemory()
	if err != nil {
		log.Debug().Err(err).Msg("memory sampling unavailable")
	} else {
		usage.SystemUsedPercent = used
		usage.SystemAvailableMB = availableMB
	}

	cpu, err := m.sampleCPU()
	if err != nil {
		log.Debug().Err(err).Msg("cpu sampling unavailable")
	} else {
		usage.CPUPercent = cpu
	}

	return usage
}

// OptimalWorkers returns a safe parallelism degree for dispatching
// test processes: one per CPU normally, halved under load, never
// below one.
func (m *Monitor) OptimalWorkers() int {
	usage := m.Usage()

	workers := usage.CPUCount
	if workers < 1 {
		workers = 1
	}

	if usage.SystemUsedPercent > memoryThrottlePercent || usage.CPUPercent > cpuThrottlePercent {
		workers /= 2
	}
	if workers < 1 {
		workers = 1
	}

	return workers
}

// ShouldThrottle reports whether the system is under enough load that
// the orchestrator should back off.
func (m *Monitor) ShouldThrottle() bool {
	usage := m.Usage()
	return usage.SystemUsedPercent > memoryThrottlePercent ||
		usage.CPUPercent > cpuThrottlePercent
}
