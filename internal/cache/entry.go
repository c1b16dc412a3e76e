// Package cache provides the smart result cache: a bounded in-memory
// tier over a persistent store, keyed by test identity and invalidated
// by dependency content hashes.
package cache

import (
	"encoding/json"
	"time"
)

// TTL assignment: high-business-value results are trusted as cacheable
// for longer, reducing redundant re-execution of expensive tests.
const (
	TTLDefaultHours   = 24
	TTLHighValueHours = 48

	highValueThreshold = 0.5

	// Hard absolute cutoff applied by CleanupExpired regardless of an
	// entry's own TTL. Safety net against unbounded store growth.
	hardCutoffHours = 48
)

// Entry is one cached test result. Result is an opaque blob: the
// cache stores and returns it byte-for-byte, never interpreting it.
type Entry struct {
	TestName      string          `json:"test_name"`
	TestPath      string          `json:"test_path"`
	FileHash      string          `json:"file_hash"`
	Result        json.RawMessage `json:"result"`
	Timestamp     time.Time       `json:"timestamp"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	TTLHours      int             `json:"ttl_hours"`
	BusinessValue float64         `json:"business_value"`
	AccessCount   int             `json:"access_count"`
}

// Expired reports whether the entry's own TTL has elapsed
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > time.Duration(e.TTLHours)*time.Hour
}

// ttlForValue returns the TTL in hours for a business value
func ttlForValue(businessValue float64) int {
	if businessValue >= highValueThreshold {
		return TTLHighValueHours
	}
	return TTLDefaultHours
}
