// Package orchestrator coordinates discovery, scoring, caching and
// execution of a test run.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/events"
	"github.com/ultratest-hq/ultra/internal/executor"
	"github.com/ultratest-hq/ultra/internal/history"
	"github.com/ultratest-hq/ultra/internal/monitor"
	"github.com/ultratest-hq/ultra/internal/priority"
	"github.com/ultratest-hq/ultra/internal/profile"
	"github.com/ultratest-hq/ultra/internal/vcs"
)

// Options configures one orchestration run
type Options struct {
	// Root is the repository to discover tests in
	Root string
	// Category restricts discovery ("all" or empty runs everything)
	Category string
	// FailFast stops dispatching new batches after the first failure
	FailFast bool
	// BatchSize is the per-batch profile count (critical tiers run at half)
	BatchSize int
	// Workers overrides the resource-monitor-derived parallelism (0 = auto)
	Workers int
	// SinceRev pre-invalidates cache entries touched by files changed
	// since this git revision (empty = worktree changes only)
	SinceRev string
	// Benchmark executes everything, ignoring cache validity, so the
	// reported speedup can be measured against a full run
	Benchmark bool
	// Include/Exclude are discovery path patterns
	Include []string
	Exclude []string
}

// Orchestrator wires the priority engine, smart cache, resource
// monitor and executor into one run coordinator. The coordination
// logic is single-threaded; only the executor fans out.
type Orchestrator struct {
	engine  *priority.Engine
	cache   *cache.SmartCache // nil disables result caching
	history *history.Store    // nil disables stat persistence
	exec    executor.Executor
	mon     *monitor.Monitor
	events  *events.Publisher // nil-safe
}

// New creates an orchestrator. cache, history and events may be nil.
func New(engine *priority.Engine, c *cache.SmartCache, hist *history.Store, exec executor.Executor, mon *monitor.Monitor, pub *events.Publisher) *Orchestrator {
	if engine == nil {
		engine = priority.NewEngine()
	}
	if mon == nil {
		mon = monitor.New()
	}
	return &Orchestrator{
		engine:  engine,
		cache:   c,
		history: hist,
		exec:    exec,
		mon:     mon,
		events:  pub,
	}
}

// Run executes one full orchestration: discover, profile, warm,
// score, batch, execute, aggregate. It always returns a report when
// any tests were discovered; the only fatal condition is an empty
// discovery result.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	runID := uuid.New().String()
	start := time.Now()

	logger := log.With().Str("run_id", runID).Logger()

	// DISCOVER
	disc := profile.NewDiscoverer(opts.Root, opts.Include, opts.Exclude)
	profiles, err := disc.Discover(ctx, opts.Category)
	if err != nil {
		return nil, fmt.Errorf("test discovery failed: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no tests discovered under %s (category %q)", opts.Root, opts.Category)
	}

	// BUILD_PROFILES: merge history, annotate business value
	if o.history != nil {
		o.history.Merge(profiles)
	}
	for _, p := range profiles {
		p.BusinessValue = priority.BusinessValue(p)
	}

	// Pre-invalidate entries touched by changed files
	if o.cache != nil {
		changed, err := vcs.ChangedFiles(opts.Root, opts.SinceRev)
		if err != nil {
			logger.Warn().Err(err).Msg("changed-file detection failed, relying on content hashes")
		} else if n := o.cache.InvalidateByDependency(ctx, changed); n > 0 {
			logger.Info().Int("invalidated", n).Msg("invalidated cache entries for changed files")
		}
	}

	// WARM_CACHE
	if o.cache != nil && !opts.Benchmark {
		o.cache.Warm(ctx, profiles)
	}

	// SCORE_AND_BATCH
	batches := o.engine.ParallelBatches(profiles, opts.BatchSize)

	o.events.Publish(ctx, events.SubjectRunStarted, events.RunStarted{
		RunID:      runID,
		TotalTests: len(profiles),
		Batches:    len(batches),
		StartedAt:  start,
	})

	report := &Report{
		RunID:   runID,
		Results: make(map[string]*executor.Result, len(profiles)),
		Stats:   Stats{TotalTests: len(profiles)},
	}

	// EXECUTE
	for i, batch := range batches {
		if report.FailedFast {
			break
		}
		if ctx.Err() != nil {
			report.FailedFast = true
			report.FailReason = "run cancelled"
			break
		}

		o.runBatch(ctx, opts, batch, report, &logger)

		var passed, failed int
		for _, p := range batch.Profiles {
			if res, ok := report.Results[p.Name]; ok {
				if res.Passed {
					passed++
				} else {
					failed++
				}
			}
		}
		o.events.Publish(ctx, events.SubjectBatchCompleted, events.BatchCompleted{
			RunID:  runID,
			Index:  i,
			Tier:   string(batch.Tier),
			Passed: passed,
			Failed: failed,
		})
	}

	// AGGREGATE
	o.finalize(ctx, profiles, report)
	report.Duration = time.Since(start)

	o.events.Publish(ctx, events.SubjectRunCompleted, events.RunCompleted{
		RunID:       runID,
		FailedFast:  report.FailedFast,
		TotalTests:  report.Stats.TotalTests,
		FailedTests: report.Stats.FailedTests,
		CachedTests: report.Stats.CachedTests,
		Speedup:     report.Stats.Speedup,
	})

	logger.Info().
		Int("total", report.Stats.TotalTests).
		Int("executed", report.Stats.ExecutedTests).
		Int("cached", report.Stats.CachedTests).
		Int("failed", report.Stats.FailedTests).
		Bool("failed_fast", report.FailedFast).
		Dur("duration", report.Duration).
		Msg("orchestration run finished")

	return report, nil
}

// runBatch resolves cache skips, executes the remainder and folds the
// results into the report. A failure inside the batch arms fail-fast;
// the batch itself always completes.
func (o *Orchestrator) runBatch(ctx context.Context, opts Options, batch priority.Batch, report *Report, logger *zerolog.Logger) {
	toRun := make([]*profile.Profile, 0, len(batch.Profiles))

	for _, p := range batch.Profiles {
		if o.cache != nil && !opts.Benchmark && o.cache.IsValid(ctx, p.Name, p.Path, p.Dependencies) {
			if blob := o.cache.Get(ctx, p.Name); blob != nil {
				if res, err := executor.DecodeResult(blob); err == nil {
					res.Cached = true
					report.Results[p.Name] = res
					report.Stats.CachedTests++
					continue
				}
			}
		}
		toRun = append(toRun, p)
	}

	if len(toRun) == 0 {
		return
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = o.mon.OptimalWorkers()
	}
	if o.mon.ShouldThrottle() && workers > 1 {
		workers /= 2
		logger.Warn().Int("workers", workers).Msg("system under load, throttling batch")
	}

	results, err := o.exec.Execute(ctx, toRun, workers)
	if err != nil {
		// Infrastructure fault: every unexecuted test is a reported failure
		logger.Error().Err(err).Str("tier", string(batch.Tier)).Msg("batch execution failed")
		for _, p := range toRun {
			report.Results[p.Name] = &executor.Result{
				TestName: p.Name,
				Passed:   false,
				Output:   fmt.Sprintf("executor fault: %v", err),
				ExitCode: -1,
			}
		}
		if opts.FailFast {
			report.FailedFast = true
			report.FailReason = fmt.Sprintf("executor fault in %s batch: %v", batch.Tier, err)
		}
		return
	}

	byName := make(map[string]*profile.Profile, len(toRun))
	for _, p := range toRun {
		byName[p.Name] = p
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Results[res.TestName] = res
		report.Stats.ExecutedTests++

		p := byName[res.TestName]
		if o.history != nil && p != nil {
			o.history.Record(res.TestName, res.Passed, time.Now())
		}

		if res.Passed {
			o.writeBack(ctx, p, res)
			continue
		}

		if opts.FailFast && !report.FailedFast {
			report.FailedFast = true
			report.FailReason = fmt.Sprintf("test %s failed in %s batch", res.TestName, batch.Tier)
			logger.Warn().Str("test", res.TestName).Msg("fail-fast triggered, no further batches will dispatch")
		}
	}
}

// writeBack caches a passing result
func (o *Orchestrator) writeBack(ctx context.Context, p *profile.Profile, res *executor.Result) {
	if o.cache == nil || p == nil {
		return
	}

	blob, err := res.Encode()
	if err != nil {
		log.Warn().Err(err).Str("test", res.TestName).Msg("failed to encode result for caching")
		return
	}
	if err := o.cache.Put(ctx, p.Name, p.Path, blob, p.Dependencies, p.BusinessValue); err != nil {
		log.Warn().Err(err).Str("test", res.TestName).Msg("cache write-back failed")
	}
}

// finalize computes failure counts, speedup and cache stats, and
// persists history. The report is produced even on early termination.
func (o *Orchestrator) finalize(ctx context.Context, profiles []*profile.Profile, report *Report) {
	var estimatedAll, estimatedRun float64
	byName := make(map[string]*profile.Profile, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p
		estimatedAll += p.AvgDuration
	}

	for name, res := range report.Results {
		if !res.Passed {
			report.Stats.FailedTests++
		}
		if !res.Cached {
			if p, ok := byName[name]; ok {
				estimatedRun += p.AvgDuration
			}
		}
	}

	if estimatedRun > 0 {
		report.Stats.Speedup = estimatedAll / estimatedRun
	} else if estimatedAll > 0 {
		// Everything served from cache
		report.Stats.Speedup = float64(report.Stats.TotalTests)
	}

	if o.cache != nil {
		report.CacheStats = o.cache.Stats(ctx)
	}

	if o.history != nil {
		if err := o.history.Save(); err != nil {
			log.Warn().Err(err).Msg("failed to persist test history")
		}
	}
}
