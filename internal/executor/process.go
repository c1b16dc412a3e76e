package executor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/profile"
)

// outputLimit bounds how much process output is retained per test
const outputLimit = 64 * 1024

// ProcessExecutor dispatches test files to their native runners
// (pytest, jest, go test) as subprocesses.
type ProcessExecutor struct {
	workDir string
	timeout time.Duration
}

// NewProcessExecutor creates an executor rooted at the repository dir
func NewProcessExecutor(workDir string, timeout time.Duration) *ProcessExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ProcessExecutor{workDir: workDir, timeout: timeout}
}

// Execute runs the batch with up to `workers` concurrent processes,
// preserving the batch order for dispatch. Results come back in batch
// order. In-flight tests run to completion even if ctx is cancelled;
// tests not yet started when ctx is cancelled are marked failed with
// a cancellation notice.
func (e *ProcessExecutor) Execute(ctx context.Context, batch []*profile.Profile, workers int) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, len(batch))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, p := range batch {
		if ctx.Err() != nil {
			results[i] = &Result{
				TestName: p.Name,
				Passed:   false,
				Output:   "not started: run cancelled",
				ExitCode: -1,
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, p *profile.Profile) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.runOne(p)
		}(i, p)
	}

	wg.Wait()
	return results, nil
}

// runOne executes a single test file with its native runner. The
// subprocess gets its own timeout, detached from the batch context,
// so fail-fast never kills an in-flight test.
func (e *ProcessExecutor) runOne(p *profile.Profile) *Result {
	runCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	cmd, runner, err := e.command(runCtx, p.Path)
	if err != nil {
		return &Result{TestName: p.Name, Passed: false, Output: err.Error(), ExitCode: -1}
	}

	log.Debug().Str("runner", runner).Str("test", p.Name).Msg("dispatching test")

	start := time.Now()
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	text := string(output)
	if len(text) > outputLimit {
		text = text[:outputLimit]
	}

	return &Result{
		TestName: p.Name,
		Passed:   err == nil,
		Duration: duration,
		Output:   text,
		ExitCode: exitCode,
	}
}

// command picks the runner from the test file's ecosystem
func (e *ProcessExecutor) command(ctx context.Context, path string) (*exec.Cmd, string, error) {
	var cmd *exec.Cmd
	var runner string

	switch {
	case strings.HasSuffix(path, ".py"):
		runner = "pytest"
		cmd = exec.CommandContext(ctx, "pytest", path, "-v", "--tb=short")
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".ts"),
		strings.HasSuffix(path, ".jsx"), strings.HasSuffix(path, ".tsx"):
		runner = "jest"
		cmd = exec.CommandContext(ctx, "npx", "jest", path, "--silent")
	case strings.HasSuffix(path, "_test.go"):
		runner = "go test"
		cmd = exec.CommandContext(ctx, "go", "test", "-count=1", ".")
		cmd.Dir = filepath.Dir(path)
		return cmd, runner, nil
	default:
		return nil, "", fmt.Errorf("no runner for test file: %s", path)
	}

	cmd.Dir = e.workDir
	return cmd, runner, nil
}
