// Package bulk runs the analyze/apply chain across a file collection under
// bounded concurrency, isolating per-file failure.
package bulk

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/redact"
)

// AnalyzeFunc runs detection for one file.
type AnalyzeFunc func(ctx context.Context, file string) (*detect.AnalyzeResult, error)

// ApplyFunc renders redactions for one file given its analysis.
type ApplyFunc func(ctx context.Context, file string, analysis *detect.AnalyzeResult) (*redact.ApplyResult, error)

// FileResult is the per-file output of a bulk run.
type FileResult struct {
	File     string
	Analysis *detect.AnalyzeResult
	Apply    *redact.ApplyResult
	Duration time.Duration
}

// Options configures one bulk run. Callbacks are invoked sequentially from
// the orchestrator goroutine, never concurrently.
type Options struct {
	MaxConcurrency int
	StopOnError    bool
	// OnProgress is called once per executed file with the number of
	// files completed so far.
	OnProgress func(completed, total int, file string)
	// OnFileComplete is called once per executed file; result is nil on
	// failure.
	OnFileComplete func(file string, result *FileResult, err error)
}

// Result aggregates one bulk run. Results and Errors index-align with the
// input file order regardless of completion timing; exactly one of
// Results[i], Errors[i] is non-nil per executed file.
type Result struct {
	Successful int
	Failed     int
	Total      int
	Results    []*FileResult
	Errors     []error
	Duration   time.Duration
}

// ErrSkipped marks files whose slice was never scheduled because an
// earlier slice failed with StopOnError set.
var ErrSkipped = errors.New("skipped: an earlier file failed and stop-on-error is set")

// Orchestrator wraps the per-file chain for bulk execution.
type Orchestrator struct {
	analyze AnalyzeFunc
	apply   ApplyFunc
	logger  *zap.Logger
}

// New creates an orchestrator. apply may be nil for analyze-only runs.
func New(analyze AnalyzeFunc, apply ApplyFunc, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{analyze: analyze, apply: apply, logger: logger}
}

// Run executes the chain for every file. Files are grouped into slices of
// MaxConcurrency; each slice runs its members concurrently and the whole
// slice is awaited before the next starts. A per-file failure never aborts
// sibling tasks already running in the same slice; StopOnError only stops
// scheduling of later slices, and the skipped files count as failed.
func (o *Orchestrator) Run(ctx context.Context, files []string, opts Options) *Result {
	start := time.Now()
	concurrency := opts.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	result := &Result{
		Total:   len(files),
		Results: make([]*FileResult, len(files)),
		Errors:  make([]error, len(files)),
	}

	completed := 0
	stopped := false

	for sliceStart := 0; sliceStart < len(files); sliceStart += concurrency {
		sliceEnd := min(sliceStart+concurrency, len(files))

		if stopped {
			for i := sliceStart; i < sliceEnd; i++ {
				result.Errors[i] = ErrSkipped
				result.Failed++
			}
			continue
		}

		var wg sync.WaitGroup
		for i := sliceStart; i < sliceEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				res, err := o.processFile(ctx, files[idx])
				if err != nil {
					result.Errors[idx] = err
				} else {
					result.Results[idx] = res
				}
			}(i)
		}
		wg.Wait()

		// Callbacks run after the slice settles, in input order, so
		// observers see deterministic ordering.
		for i := sliceStart; i < sliceEnd; i++ {
			completed++
			if result.Errors[i] != nil {
				result.Failed++
				stopped = stopped || opts.StopOnError
				o.logger.Warn("Bulk file failed",
					zap.String("file", files[i]),
					zap.Error(result.Errors[i]))
			} else {
				result.Successful++
			}
			if opts.OnProgress != nil {
				opts.OnProgress(completed, result.Total, files[i])
			}
			if opts.OnFileComplete != nil {
				opts.OnFileComplete(files[i], result.Results[i], result.Errors[i])
			}
		}
	}

	result.Duration = time.Since(start)
	o.logger.Info("Bulk run completed",
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (o *Orchestrator) processFile(ctx context.Context, file string) (*FileResult, error) {
	fileStart := time.Now()

	analysis, err := o.analyze(ctx, file)
	if err != nil {
		return nil, err
	}

	res := &FileResult{File: file, Analysis: analysis}

	if o.apply != nil {
		applied, err := o.apply(ctx, file, analysis)
		if err != nil {
			return nil, err
		}
		res.Apply = applied
	}

	res.Duration = time.Since(fileStart)
	return res, nil
}
