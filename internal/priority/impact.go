package priority

import (
	"strings"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// pathRule is an exclusive path classification rule; the first match
// wins and later rules are not consulted.
type pathRule struct {
	keywords []string
	weight   float64
}

// nameRule is an additive name classification rule; every matching
// rule contributes its weight.
type nameRule struct {
	category string
	keywords []string
	weight   float64
}

// Path rules are exclusive by design: a test under a database path is
// scored as database infrastructure even if the path also mentions a
// service layer.
var impactPathRules = []pathRule{
	{keywords: []string{"db", "database", "core"}, weight: 0.8},
	{keywords: []string{"service", "api", "route"}, weight: 0.5},
	{keywords: []string{"util", "helper"}, weight: 0.2},
}

// Name rules stack on top of the path rule. Stacking path and name
// contributions is intentional; the total is clamped to 1.0.
var impactNameRules = []nameRule{
	{category: "database", keywords: []string{"db", "database", "redis", "postgres", "sql"}, weight: 0.3},
	{category: "core", keywords: []string{"core", "transaction", "session"}, weight: 0.3},
	{category: "auth", keywords: []string{"auth", "login", "token", "permission"}, weight: 0.2},
	{category: "websocket", keywords: []string{"websocket", "ws", "socket", "realtime"}, weight: 0.2},
	{category: "llm", keywords: []string{"llm", "agent", "model", "chat"}, weight: 0.1},
}

// DependencyImpact estimates the blast radius in [0, 1] if the code
// under this test breaks.
func DependencyImpact(p *profile.Profile) float64 {
	path := strings.ToLower(p.Path)
	name := strings.ToLower(p.Name)

	var impact float64
	for _, rule := range impactPathRules {
		if containsAny(path, rule.keywords) {
			impact = rule.weight
			break
		}
	}

	for _, rule := range impactNameRules {
		if containsAny(name, rule.keywords) {
			impact += rule.weight
		}
	}

	return clamp(impact, 0, 1.0)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
