package orchestrator

import (
	"time"

	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/executor"
)

// Stats summarizes one orchestration run
type Stats struct {
	TotalTests    int     `json:"total_tests"`
	ExecutedTests int     `json:"executed_tests"`
	CachedTests   int     `json:"cached_tests"`
	FailedTests   int     `json:"failed_tests"`
	Speedup       float64 `json:"speedup"`
}

// Report is the orchestrator's final output. It is always produced,
// even when the run terminated early via fail-fast.
type Report struct {
	RunID      string                      `json:"run_id"`
	Stats      Stats                       `json:"stats"`
	Results    map[string]*executor.Result `json:"results"`
	CacheStats cache.Stats                 `json:"cache_stats"`
	FailedFast bool                        `json:"failed_fast"`
	FailReason string                      `json:"fail_reason,omitempty"`
	Duration   time.Duration               `json:"duration"`
}

// Failed reports whether any test in the run failed
func (r *Report) Failed() bool {
	return r.Stats.FailedTests > 0
}
