// Package history persists per-test run statistics between
// orchestration runs and merges them into fresh profiles.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// Failure-rate smoothing factor: recent runs dominate, old runs decay
const emaAlpha = 0.3

// outcomeWindow bounds the per-test outcome history used for the
// flaky score
const outcomeWindow = 20

// Record holds the persisted stats for one test
type Record struct {
	FailureRate         float64   `json:"failure_rate"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FlakyScore          float64   `json:"flaky_score"`
	LastRun             time.Time `json:"last_run"`
	Outcomes            []bool    `json:"outcomes,omitempty"` // true = passed
}

// Store is a JSON-file-backed history store keyed by test name
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]*Record
}

// Open loads (or initializes) the history file under the cache dir
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	s := &Store{
		path:    filepath.Join(dir, "history.json"),
		records: make(map[string]*Record),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		// A corrupted history file loses stats, never blocks a run
		log.Warn().Err(err).Str("path", s.path).Msg("corrupted history file, starting fresh")
		s.records = make(map[string]*Record)
	}

	return s, nil
}

// Merge copies historical stats into matching profiles. Profiles
// without history keep their zero-risk defaults.
func (s *Store) Merge(profiles []*profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merged int
	for _, p := range profiles {
		rec, ok := s.records[p.Name]
		if !ok {
			continue
		}
		p.FailureRate = rec.FailureRate
		p.ConsecutiveFailures = rec.ConsecutiveFailures
		p.FlakyScore = rec.FlakyScore
		lastRun := rec.LastRun
		p.LastRun = &lastRun
		merged++
	}

	log.Debug().Int("merged", merged).Int("profiles", len(profiles)).Msg("merged test history")
}

// Record folds one execution outcome into a test's stats
func (s *Store) Record(testName string, passed bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[testName]
	if !ok {
		rec = &Record{}
		s.records[testName] = rec
	}

	failed := 0.0
	if !passed {
		failed = 1.0
	}
	rec.FailureRate = emaAlpha*failed + (1-emaAlpha)*rec.FailureRate

	if passed {
		rec.ConsecutiveFailures = 0
	} else {
		rec.ConsecutiveFailures++
	}

	rec.Outcomes = append(rec.Outcomes, passed)
	if len(rec.Outcomes) > outcomeWindow {
		rec.Outcomes = rec.Outcomes[len(rec.Outcomes)-outcomeWindow:]
	}
	rec.FlakyScore = flakyScore(rec.Outcomes)
	rec.LastRun = at
}

// Save writes the history atomically
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Get returns a copy of one test's record, if present
func (s *Store) Get(testName string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[testName]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// flakyScore measures pass/fail alternation over the outcome window:
// 0 for a steady test, approaching 1 for one that flips every run.
func flakyScore(outcomes []bool) float64 {
	if len(outcomes) < 2 {
		return 0
	}

	var flips int
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i] != outcomes[i-1] {
			flips++
		}
	}
	return float64(flips) / float64(len(outcomes)-1)
}
