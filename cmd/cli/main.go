package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/config"
	"github.com/ultratest-hq/ultra/internal/events"
	"github.com/ultratest-hq/ultra/internal/executor"
	"github.com/ultratest-hq/ultra/internal/filehash"
	"github.com/ultratest-hq/ultra/internal/history"
	"github.com/ultratest-hq/ultra/internal/monitor"
	"github.com/ultratest-hq/ultra/internal/orchestrator"
	"github.com/ultratest-hq/ultra/internal/priority"
	"github.com/ultratest-hq/ultra/internal/profile"
)

var version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:     "ultra",
		Short:   "Ultra - prioritized, cached test orchestration",
		Long:    `Ultra decides which tests to run, in what order, and whether a cached result can be reused, to surface real failures as early as possible.`,
		Version: version,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(cacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		category   string
		noFailFast bool
		clearCache bool
		noCache    bool
		benchmark  bool
		batchSize  int
		workers    int
		sinceRev   string
	)

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Run the test suite with fail-fast prioritization and result caching",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			project, err := config.LoadProjectConfig(root)
			if err != nil {
				return fmt.Errorf("failed to load project config: %w", err)
			}

			smartCache, cleanup, err := buildCache(ctx, cfg, project, noCache)
			if err != nil {
				return err
			}
			defer cleanup()

			if clearCache && smartCache != nil {
				if err := smartCache.Clear(ctx); err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				log.Info().Msg("cache cleared")
			}

			hist, err := history.Open(cfg.CacheDir)
			if err != nil {
				log.Warn().Err(err).Msg("history unavailable, running with zero-risk defaults")
			}

			pub, err := events.Connect(ctx, cfg.NATSURL)
			if err != nil {
				log.Warn().Err(err).Msg("event publishing unavailable")
			}
			defer pub.Close()

			if batchSize <= 0 {
				batchSize = project.Orchestration.BatchSize
			}
			if batchSize <= 0 {
				batchSize = cfg.BatchSize
			}
			if workers <= 0 {
				workers = project.Orchestration.Workers
			}
			if workers <= 0 {
				workers = cfg.Workers
			}
			if category == "" {
				category = project.Orchestration.Category
			}

			failFast := project.FailFast()
			if noFailFast {
				failFast = false
			}

			orch := orchestrator.New(
				priority.NewEngine(),
				smartCache,
				hist,
				executor.NewProcessExecutor(root, 10*time.Minute),
				monitor.New(),
				pub,
			)

			report, err := orch.Run(ctx, orchestrator.Options{
				Root:      root,
				Category:  category,
				FailFast:  failFast,
				BatchSize: batchSize,
				Workers:   workers,
				SinceRev:  sinceRev,
				Benchmark: benchmark,
				Include:   project.Include,
				Exclude:   project.Exclude,
			})
			if err != nil {
				return err
			}

			printReport(report)

			if report.Failed() {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Test category (all, unit, integration, e2e, performance)")
	cmd.Flags().BoolVar(&noFailFast, "no-fail-fast", false, "Keep dispatching batches after a failure")
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear the result cache before running")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the result cache for this run")
	cmd.Flags().BoolVar(&benchmark, "benchmark", false, "Execute everything, ignoring cached results")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Profiles per parallel batch")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel worker override (0 = auto)")
	cmd.Flags().StringVar(&sinceRev, "since", "", "Invalidate cache entries for files changed since this git revision")

	return cmd
}

func discoverCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "discover [path]",
		Short: "Discover test files and show their computed profiles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			project, err := config.LoadProjectConfig(root)
			if err != nil {
				return fmt.Errorf("failed to load project config: %w", err)
			}

			disc := profile.NewDiscoverer(root, project.Include, project.Exclude)
			profiles, err := disc.Discover(cmd.Context(), category)
			if err != nil {
				return err
			}

			engine := priority.NewEngine()
			ordered := engine.FailFastOrder(profiles)

			fmt.Printf("Discovered %d tests (fail-fast order):\n\n", len(ordered))
			for i, p := range ordered {
				fmt.Printf("%3d. %-50s %-12s %-8s score=%.3f p(fail)=%.2f deps=%d\n",
					i+1, p.Name, p.Category, p.Priority, p.PriorityScore, p.FailureProbability, len(p.Dependencies))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "all", "Test category filter")

	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			smartCache, cleanup, err := loadCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			stats := smartCache.Stats(cmd.Context())
			fmt.Printf("Entries:        %d (%d valid)\n", stats.TotalEntries, stats.ValidEntries)
			fmt.Printf("Memory tier:    %d\n", stats.MemoryCacheSize)
			fmt.Printf("Hit rate:       %.1f%% (%d hits, %d misses, %d invalidations)\n",
				stats.HitRate*100, stats.Hits, stats.Misses, stats.Invalidations)
			fmt.Printf("Avg accesses:   %.1f\n", stats.AvgAccessCount)
			fmt.Printf("Business value: %.2f\n", stats.TotalBusinessValue)
			fmt.Printf("Size:           %.2f MB\n", stats.CacheSizeMB)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			smartCache, cleanup, err := loadCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := smartCache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries and reclaim space",
		RunE: func(cmd *cobra.Command, args []string) error {
			smartCache, cleanup, err := loadCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := smartCache.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired entries\n", removed)
			return nil
		},
	})

	return cmd
}

// buildCache constructs the smart cache from configuration. The
// returned cleanup closes the backing store.
func buildCache(ctx context.Context, cfg *config.Config, project *config.ProjectConfig, disabled bool) (*cache.SmartCache, func(), error) {
	if disabled || project.Cache.Disabled {
		return nil, func() {}, nil
	}

	dir := cfg.CacheDir
	if project.Cache.Dir != "" {
		dir = project.Cache.Dir
	}

	var store cache.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := cache.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("shared cache database unavailable, falling back to file store")
		} else {
			store = pgStore
		}
	}
	if store == nil {
		fileStore, err := cache.NewFileStore(dir)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to open cache store: %w", err)
		}
		store = fileStore
	}

	smartCache := cache.New(store, filehash.NewHasher())
	return smartCache, func() { store.Close() }, nil
}

// loadCache builds the cache for standalone cache subcommands
func loadCache(ctx context.Context) (*cache.SmartCache, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	smartCache, cleanup, err := buildCache(ctx, cfg, config.DefaultProjectConfig(), false)
	if err != nil {
		return nil, nil, err
	}
	return smartCache, cleanup, nil
}

func printReport(report *orchestrator.Report) {
	fmt.Printf("\nRun %s", report.RunID)
	if report.FailedFast {
		fmt.Printf("  [failed fast: %s]", report.FailReason)
	}
	fmt.Println()

	fmt.Printf("  total:    %d\n", report.Stats.TotalTests)
	fmt.Printf("  executed: %d\n", report.Stats.ExecutedTests)
	fmt.Printf("  cached:   %d\n", report.Stats.CachedTests)
	fmt.Printf("  failed:   %d\n", report.Stats.FailedTests)
	fmt.Printf("  speedup:  %.2fx\n", report.Stats.Speedup)
	fmt.Printf("  duration: %s\n", report.Duration.Round(time.Millisecond))

	if report.Stats.FailedTests > 0 {
		fmt.Println("\nFailures:")
		for name, res := range report.Results {
			if !res.Passed {
				fmt.Printf("  ✗ %s (exit %d)\n", name, res.ExitCode)
			}
		}
	}
}
