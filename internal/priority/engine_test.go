package priority

import (
	"testing"
	"time"

	"github.com/ultratest-hq/ultra/internal/profile"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFailureProbability_Bounds(t *testing.T) {
	calc := NewFailureCalculator(nil)

	// Zero history is still risky due to the never-run staleness factor
	p := &profile.Profile{Name: "fresh"}
	if got := calc.Probability(p); got != 0.2 {
		t.Errorf("never-run probability = %v, want 0.2", got)
	}

	// Worst case clamps at 0.95
	worst := &profile.Profile{
		Name:                "worst",
		FailureRate:         1.0,
		ConsecutiveFailures: 100,
		FlakyScore:          1.0,
	}
	if got := calc.Probability(worst); got != 0.95 {
		t.Errorf("worst-case probability = %v, want 0.95", got)
	}
}

func TestFailureProbability_Staleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	calc := NewFailureCalculator(fixedClock(now))

	recent := now.Add(-24 * time.Hour)
	old := now.Add(-30 * 24 * time.Hour)

	pRecent := &profile.Profile{Name: "recent", LastRun: &recent}
	pOld := &profile.Profile{Name: "old", LastRun: &old}

	got := calc.Probability(pRecent)
	if got != 0.02 {
		t.Errorf("1-day staleness = %v, want 0.02", got)
	}

	// Staleness caps at 0.2 no matter how old
	if got := calc.Probability(pOld); got != 0.2 {
		t.Errorf("30-day staleness = %v, want capped 0.2", got)
	}
}

func TestFailureProbability_StreakMultiplier(t *testing.T) {
	now := time.Now()
	calc := NewFailureCalculator(fixedClock(now))

	base := &profile.Profile{Name: "base", FailureRate: 0.4, LastRun: &now}
	streaky := &profile.Profile{Name: "streaky", FailureRate: 0.4, ConsecutiveFailures: 3, LastRun: &now}
	maxed := &profile.Profile{Name: "maxed", FailureRate: 0.4, ConsecutiveFailures: 50, LastRun: &now}

	if got := calc.Probability(base); got != 0.4 {
		t.Errorf("base probability = %v, want 0.4", got)
	}
	if got, want := calc.Probability(streaky), 0.4*1.3; !almostEqual(got, want) {
		t.Errorf("streak probability = %v, want %v", got, want)
	}
	// Multiplier caps at 1.5x
	if got, want := calc.Probability(maxed), 0.4*1.5; !almostEqual(got, want) {
		t.Errorf("maxed streak probability = %v, want %v", got, want)
	}
}

func TestExecutionWeight_Buckets(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		priority profile.Priority
		want     float64
	}{
		{"fast critical", 2.0, profile.PriorityCritical, 0.1 * 0.1},
		{"fast low", 0.5, profile.PriorityLow, 0.1 * 1.0},
		{"medium high", 10.0, profile.PriorityHigh, 0.5 * 0.3},
		{"slow normal", 60.0, profile.PriorityNormal, 1.0 * 0.7},
		{"unknown priority defaults to normal", 60.0, profile.Priority("weird"), 1.0 * 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &profile.Profile{AvgDuration: tt.duration, Priority: tt.priority}
			if got := ExecutionWeight(p); !almostEqual(got, tt.want) {
				t.Errorf("ExecutionWeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDependencyImpact_PathRulesExclusive(t *testing.T) {
	// Path matches both database and service keywords; first rule wins
	p := &profile.Profile{Name: "t", Path: "app/database/service/things.py"}
	if got := DependencyImpact(p); got != 0.8 {
		t.Errorf("DependencyImpact() = %v, want 0.8 (first path rule wins)", got)
	}
}

func TestDependencyImpact_NameRulesStack(t *testing.T) {
	// auth (+0.2) and websocket (+0.2) name rules stack on the util path (0.2)
	p := &profile.Profile{Name: "test_auth_websocket", Path: "app/util/x.py"}
	if got, want := DependencyImpact(p), 0.2+0.2+0.2; !almostEqual(got, want) {
		t.Errorf("DependencyImpact() = %v, want %v", got, want)
	}
}

func TestDependencyImpact_Clamped(t *testing.T) {
	p := &profile.Profile{
		Name: "test_db_core_auth_websocket_llm_session",
		Path: "app/core/database/x.py",
	}
	if got := DependencyImpact(p); got != 1.0 {
		t.Errorf("DependencyImpact() = %v, want clamped 1.0", got)
	}
}

func TestBusinessValue_Stacking(t *testing.T) {
	// payment (+0.4) + checkout (+0.4) + user (+0.2) stack
	p := &profile.Profile{Name: "test_payment_checkout_user", Path: "tests/x.py"}
	if got := BusinessValue(p); got != 1.0 {
		t.Errorf("BusinessValue() = %v, want 1.0", got)
	}

	medium := &profile.Profile{Name: "test_notification", Path: "tests/x.py"}
	if got := BusinessValue(medium); !almostEqual(got, 0.2) {
		t.Errorf("BusinessValue() = %v, want 0.2", got)
	}

	none := &profile.Profile{Name: "test_misc", Path: "tests/x.py"}
	if got := BusinessValue(none); got != 0 {
		t.Errorf("BusinessValue() = %v, want 0", got)
	}
}

func TestBusinessValue_ProfileOverride(t *testing.T) {
	p := &profile.Profile{Name: "test_misc", Path: "tests/x.py", BusinessValue: 0.9}
	if got := BusinessValue(p); got != 0.9 {
		t.Errorf("BusinessValue() = %v, want supplied 0.9", got)
	}
}

// Final score must be monotonic non-decreasing in failure rate,
// all else equal.
func TestEngine_ScoreMonotonicInFailureRate(t *testing.T) {
	now := time.Now()

	low := &profile.Profile{Name: "low", Path: "tests/test_a.py", FailureRate: 0.1, LastRun: &now}
	high := &profile.Profile{Name: "high", Path: "tests/test_a.py", FailureRate: 0.5, LastRun: &now}

	engine := NewEngine(WithClock(fixedClock(now)))
	sLow := engine.ScoreProfile(low)
	sHigh := engine.ScoreProfile(high)

	if sHigh.FinalScore < sLow.FinalScore {
		t.Errorf("final score decreased with higher failure rate: %v < %v",
			sHigh.FinalScore, sLow.FinalScore)
	}
}

func TestEngine_FailFastOrder(t *testing.T) {
	profiles := []*profile.Profile{
		{Name: "t2", Path: "app/tests/test_utils.py", Priority: profile.PriorityLow, AvgDuration: 0.5, FailureRate: 0.01},
		{Name: "t1", Path: "app/tests/test_auth.py", Priority: profile.PriorityCritical, AvgDuration: 2.0, FailureRate: 0.1},
	}

	engine := NewEngine()
	ordered := engine.FailFastOrder(profiles)

	if ordered[0].Name != "t1" {
		t.Errorf("fail-fast order starts with %s, want t1", ordered[0].Name)
	}
	if ordered[0].PriorityScore == 0 {
		t.Error("profiles were not annotated with priority_score")
	}
	if ordered[0].FailureProbability == 0 {
		t.Error("profiles were not annotated with failure_probability")
	}
}

func TestEngine_ScoresSortedDescending(t *testing.T) {
	profiles := []*profile.Profile{
		{Name: "a", Path: "tests/test_misc.py"},
		{Name: "b", Path: "app/core/test_db_auth.py", FailureRate: 0.5},
		{Name: "c", Path: "tests/test_payment_checkout.py", FailureRate: 0.2},
	}

	engine := NewEngine()
	scores := engine.CalculateScores(profiles)

	for i := 1; i < len(scores); i++ {
		if scores[i].FinalScore > scores[i-1].FinalScore {
			t.Errorf("scores not sorted descending at %d: %v > %v",
				i, scores[i].FinalScore, scores[i-1].FinalScore)
		}
	}
}

func TestEngine_ScoreMemoizedByName(t *testing.T) {
	engine := NewEngine()

	p := &profile.Profile{Name: "same", Path: "tests/test_a.py"}
	first := engine.ScoreProfile(p)

	// Same name with different data returns the memoized score
	changed := &profile.Profile{Name: "same", Path: "app/core/test_db.py", FailureRate: 0.9}
	second := engine.ScoreProfile(changed)

	if first != second {
		t.Error("score was not memoized by test name")
	}
}

func TestEngine_ParallelBatches_TierOrdering(t *testing.T) {
	var profiles []*profile.Profile

	// Critical tier: database path + name impact > 0.7
	for i := 0; i < 3; i++ {
		profiles = append(profiles, &profile.Profile{
			Name: "test_db_core_" + string(rune('a'+i)),
			Path: "app/database/test.py",
		})
	}
	// Normal tier: no impact keywords
	for i := 0; i < 5; i++ {
		profiles = append(profiles, &profile.Profile{
			Name: "test_misc_" + string(rune('a'+i)),
			Path: "tests/misc.py",
		})
	}

	engine := NewEngine()
	batches := engine.ParallelBatches(profiles, 4)

	if len(batches) == 0 {
		t.Fatal("no batches returned")
	}

	// All critical batches strictly before any normal batch
	seenNonCritical := false
	for _, b := range batches {
		if b.Tier != TierCritical {
			seenNonCritical = true
		} else if seenNonCritical {
			t.Fatal("critical batch emitted after a non-critical batch")
		}
	}

	// Critical batches are chunked at half size
	for _, b := range batches {
		if b.Tier == TierCritical && len(b.Profiles) > 2 {
			t.Errorf("critical batch size = %d, want <= 2", len(b.Profiles))
		}
		if len(b.Profiles) > 4 {
			t.Errorf("batch size = %d exceeds limit 4", len(b.Profiles))
		}
	}

	// Every profile appears exactly once
	seen := make(map[string]int)
	for _, b := range batches {
		for _, p := range b.Profiles {
			seen[p.Name]++
		}
	}
	if len(seen) != len(profiles) {
		t.Errorf("batches cover %d profiles, want %d", len(seen), len(profiles))
	}
	for name, n := range seen {
		if n != 1 {
			t.Errorf("profile %s appears %d times", name, n)
		}
	}
}

func TestEngine_ParallelBatches_DefaultSize(t *testing.T) {
	profiles := []*profile.Profile{{Name: "only", Path: "tests/test_a.py"}}
	engine := NewEngine()

	if batches := engine.ParallelBatches(profiles, 0); len(batches) != 1 {
		t.Errorf("batches = %d, want 1", len(batches))
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
