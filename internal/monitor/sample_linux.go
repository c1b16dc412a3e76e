//go:build linux

package monitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// sampleMemory reads system memory usage via sysinfo(2)
func sampleMemory() (usedPercent, availableMB float64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit

	if total == 0 {
		return 0, 0, fmt.Errorf("sysinfo reported zero total memory")
	}

	used := total - free
	return float64(used) / float64(total) * 100, float64(free) / (1024 * 1024), nil
}

// sampleCPU computes system-wide CPU utilization from the delta of
// the aggregate /proc/stat line since the previous call. The first
// call has no delta and reports zero.
func (m *Monitor) sampleCPU() (float64, error) {
	busy, all, err := readProcStat()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prevBusy, prevAll := m.prevBusy, m.prevAll
	m.prevBusy, m.prevAll = busy, all

	if prevAll == 0 || all <= prevAll {
		return 0, nil
	}

	return float64(busy-prevBusy) / float64(all-prevAll) * 100, nil
}

// readProcStat parses the aggregate cpu line of /proc/stat
func readProcStat() (busy, all uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		ticks := make([]uint64, len(fields))
		for i, f := range fields {
			ticks[i], _ = strconv.ParseUint(f, 10, 64)
		}
		if len(ticks) < 5 {
			return 0, 0, fmt.Errorf("malformed /proc/stat cpu line")
		}
		for _, t := range ticks {
			all += t
		}
		// idle + iowait are the non-busy ticks
		busy = all - ticks[3] - ticks[4]
		return busy, all, nil
	}

	return 0, 0, fmt.Errorf("no aggregate cpu line in /proc/stat")
}
