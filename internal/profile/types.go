// Package profile defines test profiles and filesystem discovery
package profile

import (
	"strings"
	"time"
)

// Category classifies a test by scope
type Category string

const (
	CategoryUnit        Category = "unit"
	CategoryIntegration Category = "integration"
	CategoryE2E         Category = "e2e"
	CategoryPerformance Category = "performance"
	CategoryGeneral     Category = "general"
)

// Priority is the scheduling priority class of a test
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Profile describes one discoverable test before execution.
// Historical fields default to zero-risk values; the history store
// merges real stats in when available.
type Profile struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Category Category `json:"category"`

	// Scheduling inputs
	Priority      Priority `json:"priority"`
	AvgDuration   float64  `json:"avg_duration"` // seconds
	Dependencies  []string `json:"dependencies,omitempty"`
	BusinessValue float64  `json:"business_value"`

	// Historical inputs
	FailureRate         float64    `json:"failure_rate"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FlakyScore          float64    `json:"flaky_score"`
	LastRun             *time.Time `json:"last_run,omitempty"`

	// Annotated by the priority engine
	PriorityScore      float64 `json:"priority_score,omitempty"`
	FailureProbability float64 `json:"failure_probability,omitempty"`
}

// CategoryFromPath derives the test category from path segments
func CategoryFromPath(path string) Category {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "e2e") || strings.Contains(p, "end_to_end") || strings.Contains(p, "end-to-end"):
		return CategoryE2E
	case strings.Contains(p, "integration"):
		return CategoryIntegration
	case strings.Contains(p, "performance") || strings.Contains(p, "load") || strings.Contains(p, "bench"):
		return CategoryPerformance
	case strings.Contains(p, "unit"):
		return CategoryUnit
	default:
		return CategoryGeneral
	}
}

// estimatedDuration returns the per-category duration heuristic in seconds
func estimatedDuration(c Category) float64 {
	switch c {
	case CategoryUnit:
		return 1.0
	case CategoryIntegration:
		return 10.0
	case CategoryE2E:
		return 30.0
	case CategoryPerformance:
		return 60.0
	default:
		return 5.0
	}
}

var (
	criticalKeywords = []string{"critical", "smoke", "payment", "billing", "auth", "security"}
	highKeywords     = []string{"core", "api", "database", "websocket", "transaction"}
	lowKeywords      = []string{"util", "helper", "experimental", "sandbox"}
)

// PriorityFromPath derives the priority class from path and name keywords
func PriorityFromPath(path, name string) Priority {
	s := strings.ToLower(path + " " + name)
	for _, kw := range criticalKeywords {
		if strings.Contains(s, kw) {
			return PriorityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(s, kw) {
			return PriorityHigh
		}
	}
	for _, kw := range lowKeywords {
		if strings.Contains(s, kw) {
			return PriorityLow
		}
	}
	return PriorityNormal
}
