package priority

import "github.com/ultratest-hq/ultra/internal/profile"

// ExecutionWeight estimates relative execution cost in (0, 1].
// Lower weight means "prefer to run earlier": fast, high-priority
// tests score low so the composite can schedule them sooner.
func ExecutionWeight(p *profile.Profile) float64 {
	var bucket float64
	switch {
	case p.AvgDuration < 5:
		bucket = 0.1
	case p.AvgDuration < 30:
		bucket = 0.5
	default:
		bucket = 1.0
	}

	return bucket * priorityMultiplier(p.Priority)
}

func priorityMultiplier(pr profile.Priority) float64 {
	switch pr {
	case profile.PriorityCritical:
		return 0.1
	case profile.PriorityHigh:
		return 0.3
	case profile.PriorityLow:
		return 1.0
	default:
		// Unknown classes behave like normal
		return 0.7
	}
}
