package monitor

import (
	"runtime"
	"testing"
)

func TestUsage_Snapshot(t *testing.T) {
	m := New()
	usage := m.Usage()

	if usage.CPUCount != runtime.NumCPU() {
		t.Errorf("cpu count = %d, want %d", usage.CPUCount, runtime.NumCPU())
	}
	if usage.SystemUsedPercent < 0 || usage.SystemUsedPercent > 100 {
		t.Errorf("memory used = %v%%, out of range", usage.SystemUsedPercent)
	}
	if usage.CPUPercent < 0 || usage.CPUPercent > 100 {
		t.Errorf("cpu = %v%%, out of range", usage.CPUPercent)
	}
}

func TestOptimalWorkers_Bounds(t *testing.T) {
	m := New()

	workers := m.OptimalWorkers()
	if workers < 1 {
		t.Errorf("workers = %d, want >= 1", workers)
	}
	if workers > runtime.NumCPU() {
		t.Errorf("workers = %d exceeds CPU count %d", workers, runtime.NumCPU())
	}
}

func TestShouldThrottle_DoesNotPanic(t *testing.T) {
	m := New()
	// Sampling must never block or panic regardless of platform support
	_ = m.ShouldThrottle()
	_ = m.ShouldThrottle()
}
