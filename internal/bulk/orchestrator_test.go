package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/redact"
)

func okAnalyze(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
	return &detect.AnalyzeResult{File: file, PageCount: 1}, nil
}

func okApply(ctx context.Context, file string, analysis *detect.AnalyzeResult) (*redact.ApplyResult, error) {
	return &redact.ApplyResult{Format: "png"}, nil
}

func failOn(bad string) AnalyzeFunc {
	return func(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
		if file == bad {
			return nil, fmt.Errorf("cannot read %s", file)
		}
		return okAnalyze(ctx, file)
	}
}

func TestRunAllSuccessful(t *testing.T) {
	o := New(okAnalyze, okApply, nil)
	files := []string{"a.png", "b.png", "c.png"}

	res := o.Run(context.Background(), files, Options{MaxConcurrency: 2})

	if res.Successful != 3 || res.Failed != 0 || res.Total != 3 {
		t.Fatalf("got %d/%d/%d, want 3 successful, 0 failed, 3 total",
			res.Successful, res.Failed, res.Total)
	}
	for i, fr := range res.Results {
		if fr == nil {
			t.Fatalf("Results[%d] is nil", i)
		}
		if fr.File != files[i] {
			t.Errorf("Results[%d].File = %s, want %s", i, fr.File, files[i])
		}
		if fr.Apply == nil {
			t.Errorf("Results[%d] has no apply result", i)
		}
	}
}

func TestRunFailureIsolation(t *testing.T) {
	o := New(failOn("b.png"), okApply, nil)
	files := []string{"a.png", "b.png", "c.png"}

	res := o.Run(context.Background(), files, Options{MaxConcurrency: 2})

	if res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("got %d successful, %d failed; want 2 and 1", res.Successful, res.Failed)
	}
	// Index alignment: exactly one of Results[i], Errors[i] per file
	for i := range files {
		if (res.Results[i] == nil) == (res.Errors[i] == nil) {
			t.Errorf("index %d: Results=%v Errors=%v, want exactly one set",
				i, res.Results[i], res.Errors[i])
		}
	}
	if res.Errors[1] == nil || res.Results[1] != nil {
		t.Error("the failing file should land at its input index")
	}
}

func TestRunProgressCallbacks(t *testing.T) {
	o := New(failOn("b.png"), okApply, nil)
	files := []string{"a.png", "b.png", "c.png"}

	var mu sync.Mutex
	var progress []int
	var completions []string

	o.Run(context.Background(), files, Options{
		MaxConcurrency: 2,
		OnProgress: func(completed, total int, file string) {
			mu.Lock()
			progress = append(progress, completed)
			mu.Unlock()
			if total != 3 {
				t.Errorf("total = %d, want 3", total)
			}
		},
		OnFileComplete: func(file string, result *FileResult, err error) {
			mu.Lock()
			completions = append(completions, file)
			mu.Unlock()
			if file == "b.png" && (err == nil || result != nil) {
				t.Error("b.png should complete with an error and a nil result")
			}
		},
	})

	if len(progress) != 3 {
		t.Fatalf("OnProgress called %d times, want 3", len(progress))
	}
	for i, c := range progress {
		if c != i+1 {
			t.Errorf("progress[%d] = %d, want %d", i, c, i+1)
		}
	}
	// Callbacks follow input order even though work is concurrent
	for i, f := range completions {
		if f != files[i] {
			t.Errorf("completions[%d] = %s, want %s", i, f, files[i])
		}
	}
}

func TestRunStopOnError(t *testing.T) {
	files := []string{"a.png", "b.png", "c.png", "d.png", "e.png"}

	var executed int32
	o := New(func(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
		atomic.AddInt32(&executed, 1)
		return failOn("a.png")(ctx, file)
	}, nil, nil)

	res := o.Run(context.Background(), files, Options{MaxConcurrency: 2, StopOnError: true})

	// Slice one (a, b) runs to completion; slices two and three are skipped
	if got := atomic.LoadInt32(&executed); got != 2 {
		t.Errorf("executed %d files, want 2", got)
	}
	if res.Successful+res.Failed != res.Total {
		t.Errorf("successful %d + failed %d != total %d", res.Successful, res.Failed, res.Total)
	}
	if res.Successful != 1 || res.Failed != 4 {
		t.Errorf("got %d successful, %d failed; want 1 and 4", res.Successful, res.Failed)
	}
	for _, i := range []int{2, 3, 4} {
		if !errors.Is(res.Errors[i], ErrSkipped) {
			t.Errorf("Errors[%d] = %v, want ErrSkipped", i, res.Errors[i])
		}
	}
}

func TestRunAnalyzeOnly(t *testing.T) {
	o := New(okAnalyze, nil, nil)

	res := o.Run(context.Background(), []string{"a.png"}, Options{MaxConcurrency: 1})

	if res.Successful != 1 {
		t.Fatalf("got %d successful, want 1", res.Successful)
	}
	if res.Results[0].Apply != nil {
		t.Error("analyze-only run should not produce an apply result")
	}
	if res.Results[0].Analysis == nil {
		t.Error("analysis result missing")
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	var active, peak int32
	slow := func(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		defer atomic.AddInt32(&active, -1)
		return okAnalyze(ctx, file)
	}

	o := New(slow, nil, nil)
	files := make([]string, 9)
	for i := range files {
		files[i] = fmt.Sprintf("f%d.png", i)
	}

	res := o.Run(context.Background(), files, Options{MaxConcurrency: 3})

	if res.Successful != 9 {
		t.Fatalf("got %d successful, want 9", res.Successful)
	}
	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Errorf("peak concurrency %d exceeds the configured bound", got)
	}
}

func TestRunZeroConcurrency(t *testing.T) {
	o := New(okAnalyze, nil, nil)
	res := o.Run(context.Background(), []string{"a.png", "b.png"}, Options{})
	if res.Successful != 2 {
		t.Errorf("got %d successful, want 2", res.Successful)
	}
}
