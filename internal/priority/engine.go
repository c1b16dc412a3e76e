package priority

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// Composite weights for the final score. Higher score runs earlier.
const (
	weightFailure    = 0.4
	weightImpact     = 0.25
	weightValue      = 0.25
	weightExecution  = 0.1
	defaultBatchSize = 20
	defaultScoreCap  = 10000
)

// Batch tier thresholds on dependency impact
const (
	tierCriticalThreshold = 0.7
	tierHighThreshold     = 0.4
)

// Score is the priority engine's output for one profile
type Score struct {
	TestName           string  `json:"test_name"`
	FailureProbability float64 `json:"failure_probability"`
	ExecutionWeight    float64 `json:"execution_weight"`
	DependencyImpact   float64 `json:"dependency_impact"`
	BusinessValue      float64 `json:"business_value"`
	FinalScore         float64 `json:"final_score"`
}

// Tier is a dependency-impact batch grouping
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierNormal   Tier = "normal"
)

// Batch is one dispatchable group of profiles. Batches must be
// executed in the order returned: all critical batches before high,
// all high before normal.
type Batch struct {
	Tier     Tier
	Profiles []*profile.Profile
}

// Engine combines the four scoring signals into a fail-fast ordering
// and dependency-aware parallel batches. Scores are memoized by test
// name for the engine's lifetime; callers must not rely on a memoized
// score reflecting updated profile data within one process.
type Engine struct {
	failure *FailureCalculator

	mu     sync.Mutex
	scores map[string]*Score
	capN   int
}

// Option configures an Engine
type Option func(*Engine)

// WithClock injects a clock for deterministic staleness scoring
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.failure = NewFailureCalculator(now) }
}

// WithScoreCap bounds the memoization cache
func WithScoreCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capN = n
		}
	}
}

// NewEngine creates a priority engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		failure: NewFailureCalculator(nil),
		scores:  make(map[string]*Score),
		capN:    defaultScoreCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreProfile computes (or returns the memoized) score for one profile
func (e *Engine) ScoreProfile(p *profile.Profile) *Score {
	e.mu.Lock()
	if s, ok := e.scores[p.Name]; ok {
		e.mu.Unlock()
		return s
	}
	e.mu.Unlock()

	s := &Score{
		TestName:           p.Name,
		FailureProbability: e.failure.Probability(p),
		ExecutionWeight:    ExecutionWeight(p),
		DependencyImpact:   DependencyImpact(p),
		BusinessValue:      BusinessValue(p),
	}
	s.FinalScore = weightFailure*s.FailureProbability +
		weightImpact*s.DependencyImpact +
		weightValue*s.BusinessValue +
		weightExecution*(1-s.ExecutionWeight)

	e.mu.Lock()
	if len(e.scores) < e.capN {
		e.scores[p.Name] = s
	}
	e.mu.Unlock()

	return s
}

// CalculateScores scores every profile, sorted descending by final score
func (e *Engine) CalculateScores(profiles []*profile.Profile) []*Score {
	scores := make([]*Score, 0, len(profiles))
	for _, p := range profiles {
		scores = append(scores, e.ScoreProfile(p))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalScore > scores[j].FinalScore
	})

	return scores
}

// FailFastOrder returns profiles ordered so that the highest combined
// risk/impact/value runs first, annotating each profile in place.
func (e *Engine) FailFastOrder(profiles []*profile.Profile) []*profile.Profile {
	ordered := make([]*profile.Profile, len(profiles))
	copy(ordered, profiles)

	for _, p := range ordered {
		s := e.ScoreProfile(p)
		p.PriorityScore = s.FinalScore
		p.FailureProbability = s.FailureProbability
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PriorityScore > ordered[j].PriorityScore
	})

	if len(ordered) > 0 {
		log.Debug().
			Str("first", ordered[0].Name).
			Float64("score", ordered[0].PriorityScore).
			Int("count", len(ordered)).
			Msg("fail-fast order computed")
	}

	return ordered
}

// ParallelBatches partitions the fail-fast ordering into dependency
// tiers and chunks each tier. Critical tiers use half-size batches so
// cascading failures are isolated sooner. Tier order across the
// returned slice is a hard contract: critical, then high, then normal.
func (e *Engine) ParallelBatches(profiles []*profile.Profile, batchSize int) []Batch {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	ordered := e.FailFastOrder(profiles)

	var critical, high, normal []*profile.Profile
	for _, p := range ordered {
		switch impact := e.ScoreProfile(p).DependencyImpact; {
		case impact > tierCriticalThreshold:
			critical = append(critical, p)
		case impact > tierHighThreshold:
			high = append(high, p)
		default:
			normal = append(normal, p)
		}
	}

	criticalSize := batchSize / 2
	if criticalSize < 1 {
		criticalSize = 1
	}

	var batches []Batch
	batches = append(batches, chunk(TierCritical, critical, criticalSize)...)
	batches = append(batches, chunk(TierHigh, high, batchSize)...)
	batches = append(batches, chunk(TierNormal, normal, batchSize)...)

	return batches
}

func chunk(tier Tier, profiles []*profile.Profile, size int) []Batch {
	var batches []Batch
	for start := 0; start < len(profiles); start += size {
		end := start + size
		if end > len(profiles) {
			end = len(profiles)
		}
		batches = append(batches, Batch{Tier: tier, Profiles: profiles[start:end]})
	}
	return batches
}
