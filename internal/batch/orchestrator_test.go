package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/iamsahilshukla/visual-breakdown/internal/analyzer"
	"github.com/iamsahilshukla/visual-breakdown/internal/media"
	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
	"github.com/iamsahilshukla/visual-breakdown/internal/sampler"
	"github.com/iamsahilshukla/visual-breakdown/internal/similarity"
	"github.com/iamsahilshukla/visual-breakdown/internal/storage"
)

type fakeOracle struct {
	calls  atomic.Int64
	tokens int
}

func (f *fakeOracle) Complete(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	f.calls.Add(1)
	return &oracle.Response{Text: "analysis text", TokensUsed: f.tokens}, nil
}

func (f *fakeOracle) Model() string { return "fake-model" }

type fakeRetriever struct {
	failFor map[string]bool
}

func (f *fakeRetriever) Fetch(ctx context.Context, url string, maxDuration int) (string, *models.VideoSource, error) {
	if f.failFor[url] {
		return "", nil, fmt.Errorf("%w: download failed for %s", media.ErrRetrieval, url)
	}
	id := media.ExtractVideoID(url)
	return "/fake/" + id + ".mp4", &models.VideoSource{
		ID:    id,
		Title: "Clip " + id,
		URL:   url,
	}, nil
}

type fakeVideo struct {
	info models.VideoInfo
}

func (f *fakeVideo) Info() models.VideoInfo { return f.info }

func (f *fakeVideo) DecodeAt(ctx context.Context, index int) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg-%d", index)), nil
}

func (f *fakeVideo) Close() error { return nil }

type captureSink struct {
	records []models.VideoProcessingRecord
}

func (c *captureSink) StoreRecord(ctx context.Context, record models.VideoProcessingRecord) error {
	c.records = append(c.records, record)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestOrchestrator builds an orchestrator whose downloads, decoding,
// and oracle calls are all faked. Each opened video is 20 seconds at
// 1fps, so a 20-frame budget extracts exactly 20 frames.
func newTestOrchestrator(t *testing.T, retriever media.Retriever, o oracle.Oracle, sink RecordSink, opts Options) *Orchestrator {
	t.Helper()
	store, err := storage.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	logger := discardLogger()
	orch := New(retriever, sampler.New(logger), analyzer.New(o, logger), similarity.New(o, logger), store, sink, "fake-model", opts, logger)
	orch.SetOpenFunc(func(ctx context.Context, path string) (media.Decodable, error) {
		return &fakeVideo{info: models.VideoInfo{
			FPS:             1,
			TotalFrames:     20,
			DurationSeconds: 20,
			Width:           640,
			Height:          480,
			Resolution:      "640x480",
		}}, nil
	})
	return orch
}

func testURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://www.youtube.com/watch?v=video%03d", i)
	}
	return urls
}

func TestRunFullBatch(t *testing.T) {
	o := &fakeOracle{tokens: 100}
	sink := &captureSink{}
	orch := newTestOrchestrator(t, &fakeRetriever{}, o, sink, Options{
		DurationSeconds: 20,
		MaxFrames:       20,
		BatchSize:       5,
	})

	report, err := orch.Run(context.Background(), testURLs(3), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := report.Summary
	if s.TotalURLs != 3 || s.SuccessfulDownloads != 3 || s.SuccessfulAnalyses != 3 {
		t.Errorf("summary counts = %d/%d/%d, want 3/3/3", s.TotalURLs, s.SuccessfulDownloads, s.SuccessfulAnalyses)
	}
	if s.TotalFramesExtracted != 60 {
		t.Errorf("frames extracted = %d, want 60", s.TotalFramesExtracted)
	}
	if s.TotalFramesAnalyzed != 60 {
		t.Errorf("frames analyzed = %d, want 60", s.TotalFramesAnalyzed)
	}

	// Per video: 20 frame calls + 1 summary. Similarity: 1 holistic +
	// C(3,2)=3 pairwise.
	wantCalls := int64(3*(20+1) + 1 + 3)
	if got := o.calls.Load(); got != wantCalls {
		t.Errorf("oracle calls = %d, want %d", got, wantCalls)
	}
	wantTokens := wantCalls * 100
	if int64(s.TotalTokensUsed) != wantTokens {
		t.Errorf("total tokens = %d, want %d", s.TotalTokensUsed, wantTokens)
	}
	wantCost := float64(wantTokens) * 0.000015
	if math.Abs(s.EstimatedCostUSD-wantCost) > 1e-9 {
		t.Errorf("cost = %v, want %v", s.EstimatedCostUSD, wantCost)
	}

	if report.Similarity == nil || report.Similarity.Holistic == nil {
		t.Fatal("missing holistic comparison")
	}
	if report.Similarity.Pairwise == nil || report.Similarity.Pairwise.TotalPairs != 3 {
		t.Fatal("missing or wrong pairwise comparisons")
	}
	if report.Metadata.RunID == "" {
		t.Error("missing run id")
	}
	if len(report.VideoTitles) != 3 {
		t.Errorf("got %d titles, want 3", len(report.VideoTitles))
	}
	if len(sink.records) != 3 {
		t.Errorf("sink received %d records, want 3", len(sink.records))
	}
	for i, r := range report.VideoAnalyses {
		if r.Index != i+1 {
			t.Errorf("record %d has index %d, want %d", i, r.Index, i+1)
		}
		if !r.Summary.Success {
			t.Errorf("record %d missing summary", i)
		}
	}
}

func TestRunPartialFailure(t *testing.T) {
	urls := testURLs(3)
	retriever := &fakeRetriever{failFor: map[string]bool{urls[1]: true}}
	o := &fakeOracle{tokens: 100}
	orch := newTestOrchestrator(t, retriever, o, nil, Options{
		DurationSeconds: 20,
		MaxFrames:       20,
		BatchSize:       5,
	})

	report, err := orch.Run(context.Background(), urls, nil)
	if err != nil {
		t.Fatalf("a batch with some successes must not fail: %v", err)
	}

	if report.Summary.SuccessfulDownloads != 2 || report.Summary.SuccessfulAnalyses != 2 {
		t.Errorf("got %d downloads / %d analyses, want 2/2",
			report.Summary.SuccessfulDownloads, report.Summary.SuccessfulAnalyses)
	}
	if len(report.DownloadResults) != 3 {
		t.Fatalf("got %d download results, want 3", len(report.DownloadResults))
	}
	var failed *models.DownloadResult
	for i := range report.DownloadResults {
		if !report.DownloadResults[i].Success {
			failed = &report.DownloadResults[i]
		}
	}
	if failed == nil {
		t.Fatal("failed download missing from results")
	}
	if failed.URL != urls[1] || failed.Error == "" {
		t.Errorf("failed entry = %+v", failed)
	}
	// Two surviving videos still get their pair.
	if report.Similarity.Pairwise == nil || report.Similarity.Pairwise.TotalPairs != 1 {
		t.Error("surviving videos were not compared")
	}
}

func TestRunNoSuccessfulVideos(t *testing.T) {
	urls := testURLs(2)
	retriever := &fakeRetriever{failFor: map[string]bool{urls[0]: true, urls[1]: true}}
	orch := newTestOrchestrator(t, retriever, &fakeOracle{}, nil, Options{})

	report, err := orch.Run(context.Background(), urls, nil)
	if !errors.Is(err, ErrNoSuccessfulVideos) {
		t.Fatalf("got %v, want ErrNoSuccessfulVideos", err)
	}
	if report == nil {
		t.Fatal("report must be returned even on overall failure")
	}
	if report.Summary.SuccessfulAnalyses != 0 {
		t.Errorf("successful analyses = %d, want 0", report.Summary.SuccessfulAnalyses)
	}
	if len(report.DownloadResults) != 2 {
		t.Errorf("got %d download results, want 2", len(report.DownloadResults))
	}
	if report.Similarity == nil || report.Similarity.Error == "" {
		t.Error("similarity section must record why comparison was impossible")
	}
}

func TestRunInvalidURLs(t *testing.T) {
	o := &fakeOracle{tokens: 10}
	orch := newTestOrchestrator(t, &fakeRetriever{}, o, nil, Options{})

	urls := append(testURLs(2), "https://example.com/not-a-video")
	report, err := orch.Run(context.Background(), urls, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.TotalURLs != 3 {
		t.Errorf("total urls = %d, want 3", report.Summary.TotalURLs)
	}
	if report.Summary.SuccessfulDownloads != 2 {
		t.Errorf("successful downloads = %d, want 2", report.Summary.SuccessfulDownloads)
	}
	var invalid *models.DownloadResult
	for i := range report.DownloadResults {
		if !report.DownloadResults[i].Success {
			invalid = &report.DownloadResults[i]
		}
	}
	if invalid == nil || !strings.Contains(invalid.Error, "not a supported video URL") {
		t.Errorf("invalid URL entry = %+v", invalid)
	}
}

func TestRunMaxVideosLimit(t *testing.T) {
	o := &fakeOracle{tokens: 10}
	orch := newTestOrchestrator(t, &fakeRetriever{}, o, nil, Options{MaxVideos: 2})

	report, err := orch.Run(context.Background(), testURLs(4), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.SuccessfulAnalyses != 2 {
		t.Errorf("analyses = %d, want 2 with the limit applied", report.Summary.SuccessfulAnalyses)
	}
	limited := 0
	for _, d := range report.DownloadResults {
		if !d.Success && strings.Contains(d.Error, "exceeds max videos limit") {
			limited++
		}
	}
	if limited != 2 {
		t.Errorf("got %d limit entries, want 2", limited)
	}
}

func TestRunProgressEvents(t *testing.T) {
	o := &fakeOracle{tokens: 10}
	orch := newTestOrchestrator(t, &fakeRetriever{}, o, nil, Options{
		DurationSeconds: 20,
		MaxFrames:       20,
		BatchSize:       5,
	})

	stageCounts := map[string]int{}
	var lastAnalyze Event
	_, err := orch.Run(context.Background(), testURLs(2), func(e Event) {
		stageCounts[e.Stage]++
		if e.Stage == "analyze" {
			lastAnalyze = e
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stageCounts["download"] != 2 {
		t.Errorf("download events = %d, want 2", stageCounts["download"])
	}
	if stageCounts["sample"] != 2 || stageCounts["summarize"] != 2 {
		t.Errorf("sample/summarize events = %d/%d, want 2/2", stageCounts["sample"], stageCounts["summarize"])
	}
	if stageCounts["analyze"] != 40 {
		t.Errorf("analyze events = %d, want 40", stageCounts["analyze"])
	}
	if stageCounts["similarity"] != 1 {
		t.Errorf("similarity events = %d, want 1", stageCounts["similarity"])
	}
	if lastAnalyze.FrameDone != 20 || lastAnalyze.FrameTotal != 20 {
		t.Errorf("last analyze event = %+v", lastAnalyze)
	}
}

func TestOptionsDefaults(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeRetriever{}, &fakeOracle{}, nil, Options{})
	if orch.opts.BatchSize != 5 || orch.opts.MaxFrames != 20 || orch.opts.DurationSeconds != 20 {
		t.Errorf("defaults = %+v", orch.opts)
	}
}
