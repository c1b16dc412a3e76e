package priority

import (
	"strings"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// Business value keywords stack, unlike the dependency analyzer's
// exclusive path rules: a checkout test that also touches payments is
// worth more than either alone. The sum is clamped to 1.0.
var (
	highValueKeywords = []string{
		"payment", "billing", "subscription", "checkout", "auth",
		"security", "api_key", "token", "critical", "production", "customer",
	}
	mediumValueKeywords = []string{
		"user", "data", "service", "integration", "websocket",
		"realtime", "notification",
	}
)

// BusinessValue estimates revenue/criticality weight in [0, 1].
// A pre-populated profile value wins over the keyword heuristic.
func BusinessValue(p *profile.Profile) float64 {
	if p.BusinessValue > 0 {
		return clamp(p.BusinessValue, 0, 1.0)
	}

	haystack := strings.ToLower(p.Path + " " + p.Name)

	var value float64
	for _, kw := range highValueKeywords {
		if strings.Contains(haystack, kw) {
			value += 0.4
		}
	}
	for _, kw := range mediumValueKeywords {
		if strings.Contains(haystack, kw) {
			value += 0.2
		}
	}

	return clamp(value, 0, 1.0)
}
