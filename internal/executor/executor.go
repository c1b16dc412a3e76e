// Package executor runs test processes for the orchestrator
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// Result is the outcome of one test execution. It round-trips through
// the result cache as an opaque JSON blob.
type Result struct {
	TestName string        `json:"test_name"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	ExitCode int           `json:"exit_code"`
	Cached   bool          `json:"cached,omitempty"`
}

// Encode serializes a result for cache storage
func (r *Result) Encode() (json.RawMessage, error) {
	return json.Marshal(r)
}

// DecodeResult deserializes a cached result blob
func DecodeResult(data json.RawMessage) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Executor runs a batch of profiles with bounded parallelism. The
// batch's intra-order is the fail-fast order already established by
// the priority engine; implementations start tests in that order.
// A test failure is reported in its Result, not as an error — the
// returned error is reserved for infrastructure faults.
//
// Implementations must let in-flight tests complete on context
// cancellation; the orchestrator cancels at batch granularity only.
type Executor interface {
	Execute(ctx context.Context, batch []*profile.Profile, workers int) ([]*Result, error)
}
