// Package priority scores and orders test profiles for fail-fast execution
package priority

import (
	"time"

	"github.com/ultratest-hq/ultra/internal/profile"
)

const maxFailureProbability = 0.95

// FailureCalculator estimates P(failure) from historical stats.
// It is a total function: missing fields default to zero-risk values.
type FailureCalculator struct {
	now func() time.Time
}

// NewFailureCalculator creates a calculator with the given clock.
// A nil clock uses time.Now.
func NewFailureCalculator(now func() time.Time) *FailureCalculator {
	if now == nil {
		now = time.Now
	}
	return &FailureCalculator{now: now}
}

// Probability returns the estimated failure probability in [0, 0.95]
func (c *FailureCalculator) Probability(p *profile.Profile) float64 {
	// Consecutive failures raise the expectation, capped at 1.5x
	streak := 1.0 + min(0.5, float64(p.ConsecutiveFailures)*0.1)

	// Alternating pass/fail history gets a flat additive penalty
	flaky := p.FlakyScore * 0.3

	// Tests not exercised recently are riskier
	staleness := 0.2
	if p.LastRun != nil {
		days := c.now().Sub(*p.LastRun).Hours() / 24
		if days < 0 {
			days = 0
		}
		staleness = min(0.2, days*0.02)
	}

	prob := p.FailureRate*streak + flaky + staleness
	return clamp(prob, 0, maxFailureProbability)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
