//go:build !linux

package monitor

import "fmt"

// Non-Linux hosts get CPU-count-only scheduling; pressure sampling is
// reported as unavailable and the orchestrator runs unthrottled.

func sampleMemory() (usedPercent, availableMB float64, err error) {
	return 0, 0, fmt.Errorf("memory sampling not supported on this platform")
}

func (m *Monitor) sampleCPU() (float64, error) {
	return 0, fmt.Errorf("cpu sampling not supported on this platform")
}
