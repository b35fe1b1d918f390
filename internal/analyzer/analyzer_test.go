package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
)

// fakeOracle answers from a per-image script and tracks how many calls
// ran at the same time.
type fakeOracle struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	failFor     map[string]bool
	lastPrompt  string
	tokens      int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{failFor: map[string]bool{}, tokens: 100}
}

func (f *fakeOracle) Complete(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.lastPrompt = req.Prompt
	fail := f.failFor[req.ImagePath]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if fail {
		return nil, errors.New("oracle unavailable")
	}
	return &oracle.Response{
		Text:       "description of " + req.ImagePath,
		TokensUsed: f.tokens,
	}, nil
}

func (f *fakeOracle) Model() string { return "fake-model" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeFrames(n int) []models.SampledFrame {
	frames := make([]models.SampledFrame, n)
	for i := range frames {
		frames[i] = models.SampledFrame{
			Timestamp: float64(i) * 0.5,
			Path:      fmt.Sprintf("/tmp/frame_%02d.jpg", i+1),
			Ordinal:   i + 1,
		}
	}
	return frames
}

func TestAnalyzeFrame(t *testing.T) {
	ctx := context.Background()

	t.Run("success carries description and tokens", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		frame := models.SampledFrame{Timestamp: 1.5, Path: "/tmp/f.jpg", Ordinal: 3}
		result := a.AnalyzeFrame(ctx, frame)
		if !result.Success {
			t.Fatalf("unexpected failure: %s", result.ErrorMessage)
		}
		if result.Description != "description of /tmp/f.jpg" {
			t.Errorf("description = %q", result.Description)
		}
		if result.TokensUsed != 100 {
			t.Errorf("tokens = %d, want 100", result.TokensUsed)
		}
		if result.FrameOrdinal != 3 || result.Timestamp != 1.5 {
			t.Errorf("metadata not carried: ordinal=%d ts=%v", result.FrameOrdinal, result.Timestamp)
		}
	})

	t.Run("failure is a value not an error", func(t *testing.T) {
		o := newFakeOracle()
		o.failFor["/tmp/f.jpg"] = true
		a := New(o, discardLogger())
		result := a.AnalyzeFrame(ctx, models.SampledFrame{Path: "/tmp/f.jpg", Ordinal: 1})
		if result.Success {
			t.Fatal("expected failure result")
		}
		if result.ErrorMessage != "oracle unavailable" {
			t.Errorf("error message = %q", result.ErrorMessage)
		}
		if result.FrameOrdinal != 1 {
			t.Errorf("failed result must keep its ordinal, got %d", result.FrameOrdinal)
		}
	})
}

func TestAnalyzeAll(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves length and input order", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		frames := makeFrames(12)
		results := a.AnalyzeAll(ctx, frames, 5, nil)
		if len(results) != 12 {
			t.Fatalf("got %d results, want 12", len(results))
		}
		for i, r := range results {
			if r.FrameOrdinal != i+1 {
				t.Errorf("result %d has ordinal %d, want %d", i, r.FrameOrdinal, i+1)
			}
		}
	})

	t.Run("concurrency bounded by batch size", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		a.AnalyzeAll(ctx, makeFrames(20), 5, nil)
		if o.calls != 20 {
			t.Fatalf("got %d oracle calls, want 20", o.calls)
		}
		if o.maxInFlight > 5 {
			t.Errorf("max in-flight calls = %d, want <= 5", o.maxInFlight)
		}
	})

	t.Run("one failure does not affect siblings", func(t *testing.T) {
		o := newFakeOracle()
		o.failFor["/tmp/frame_03.jpg"] = true
		a := New(o, discardLogger())
		results := a.AnalyzeAll(ctx, makeFrames(6), 3, nil)
		for i, r := range results {
			wantSuccess := i != 2
			if r.Success != wantSuccess {
				t.Errorf("result %d: success = %v, want %v", i, r.Success, wantSuccess)
			}
		}
		if results[2].ErrorMessage == "" {
			t.Error("failed result missing its error message")
		}
	})

	t.Run("progress runs in input order", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		var seen []int
		a.AnalyzeAll(ctx, makeFrames(10), 4, func(completed, total int, result models.FrameAnalysisResult) {
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
			seen = append(seen, completed)
		})
		if len(seen) != 10 {
			t.Fatalf("progress called %d times, want 10", len(seen))
		}
		for i, c := range seen {
			if c != i+1 {
				t.Fatalf("progress order broken: call %d reported completed=%d", i, c)
			}
		}
	})

	t.Run("batch size below one behaves as one", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		results := a.AnalyzeAll(ctx, makeFrames(3), 0, nil)
		if len(results) != 3 {
			t.Fatalf("got %d results, want 3", len(results))
		}
		if o.maxInFlight != 1 {
			t.Errorf("max in-flight = %d, want 1", o.maxInFlight)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		results := a.AnalyzeAll(ctx, nil, 5, nil)
		if len(results) != 0 {
			t.Fatalf("got %d results for empty input", len(results))
		}
		if o.calls != 0 {
			t.Errorf("oracle called %d times for empty input", o.calls)
		}
	})
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	info := models.VideoInfo{
		DurationSeconds: 5.0,
		Resolution:      "1920x1080",
		FPS:             30,
	}

	t.Run("includes only successful frames", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		results := []models.FrameAnalysisResult{
			{Success: true, FrameOrdinal: 1, Timestamp: 0, Description: "a red door"},
			{Success: false, FrameOrdinal: 2, Timestamp: 0.5, ErrorMessage: "timeout"},
			{Success: true, FrameOrdinal: 3, Timestamp: 1.0, Description: "a blue window"},
		}
		summary := a.Summarize(ctx, results, info)
		if !summary.Success {
			t.Fatalf("unexpected failure: %s", summary.ErrorMessage)
		}
		if summary.FramesConsidered != 2 {
			t.Errorf("frames considered = %d, want 2", summary.FramesConsidered)
		}
		if !strings.Contains(o.lastPrompt, "Frame 1 (0.0s): a red door") {
			t.Error("prompt missing first successful frame")
		}
		if !strings.Contains(o.lastPrompt, "Frame 3 (1.0s): a blue window") {
			t.Error("prompt missing second successful frame")
		}
		if strings.Contains(o.lastPrompt, "timeout") {
			t.Error("prompt leaked a failed frame")
		}
		if !strings.Contains(o.lastPrompt, "Total frames analyzed: 2") {
			t.Error("prompt missing frame count")
		}
	})

	t.Run("no successful frames skips the oracle", func(t *testing.T) {
		o := newFakeOracle()
		a := New(o, discardLogger())
		results := []models.FrameAnalysisResult{
			{Success: false, ErrorMessage: "bad"},
			{Success: false, ErrorMessage: "worse"},
		}
		summary := a.Summarize(ctx, results, info)
		if summary.Success {
			t.Fatal("expected failure summary")
		}
		if summary.ErrorMessage != "no successful frame analyses to summarize" {
			t.Errorf("error message = %q", summary.ErrorMessage)
		}
		if o.calls != 0 {
			t.Errorf("oracle called %d times, want 0", o.calls)
		}
	})

	t.Run("oracle failure becomes failure summary", func(t *testing.T) {
		o := newFakeOracle()
		o.failFor[""] = true // summary requests carry no image
		a := New(o, discardLogger())
		results := []models.FrameAnalysisResult{
			{Success: true, FrameOrdinal: 1, Description: "something"},
		}
		summary := a.Summarize(ctx, results, info)
		if summary.Success {
			t.Fatal("expected failure summary")
		}
		if summary.ErrorMessage != "oracle unavailable" {
			t.Errorf("error message = %q", summary.ErrorMessage)
		}
		if summary.FramesConsidered != 1 {
			t.Errorf("frames considered = %d, want 1", summary.FramesConsidered)
		}
	})
}
