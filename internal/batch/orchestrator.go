// Package batch sequences the full pipeline for a set of video URLs:
// download, validate, sample, analyze, summarize per video, then
// similarity analysis across all videos and one aggregate report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iamsahilshukla/visual-breakdown/internal/analyzer"
	"github.com/iamsahilshukla/visual-breakdown/internal/media"
	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/sampler"
	"github.com/iamsahilshukla/visual-breakdown/internal/similarity"
	"github.com/iamsahilshukla/visual-breakdown/internal/storage"
)

// costPerToken is a flat cost approximation, not a live price lookup.
const costPerToken = 0.000015

// ErrNoSuccessfulVideos is the only overall-failure condition: not a
// single video in the batch reached a successful analysis.
var ErrNoSuccessfulVideos = errors.New("no videos were successfully analyzed")

// Options are the processing knobs of one batch run.
type Options struct {
	DurationSeconds int
	MaxFrames       int
	BatchSize       int
	MaxVideos       int
}

// Event is one progress signal. Frame counts are set for frame-level
// events only.
type Event struct {
	Stage      string
	VideoIndex int
	VideoTotal int
	FrameDone  int
	FrameTotal int
}

// ProgressFunc receives progress events as stages complete. No global
// progress state exists; this callback is the only feedback channel.
type ProgressFunc func(Event)

// RecordSink receives finalized records for external indexing.
type RecordSink interface {
	StoreRecord(ctx context.Context, record models.VideoProcessingRecord) error
}

// OpenFunc opens a local video file for decoding.
type OpenFunc func(ctx context.Context, path string) (media.Decodable, error)

// Orchestrator wires the pipeline stages together. Videos are processed
// strictly sequentially; only frame analysis within one video runs
// concurrently, bounded by Options.BatchSize.
type Orchestrator struct {
	retriever media.Retriever
	open      OpenFunc
	sampler   *sampler.Sampler
	analyzer  *analyzer.Analyzer
	engine    *similarity.Engine
	store     *storage.ArtifactStore
	sink      RecordSink
	logger    *slog.Logger
	opts      Options
	model     string
}

// New builds an Orchestrator. sink may be nil.
func New(retriever media.Retriever, samp *sampler.Sampler, an *analyzer.Analyzer, engine *similarity.Engine, store *storage.ArtifactStore, sink RecordSink, model string, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 5
	}
	if opts.MaxFrames < 1 {
		opts.MaxFrames = 20
	}
	if opts.DurationSeconds < 1 {
		opts.DurationSeconds = 20
	}
	return &Orchestrator{
		retriever: retriever,
		open: func(ctx context.Context, path string) (media.Decodable, error) {
			return media.Open(ctx, path)
		},
		sampler:  samp,
		analyzer: an,
		engine:   engine,
		store:    store,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		model:    model,
	}
}

// SetOpenFunc overrides how downloaded files are opened for decoding.
func (o *Orchestrator) SetOpenFunc(open OpenFunc) {
	o.open = open
}

// Run processes all URLs and assembles the batch report. The report is
// returned even when the run counts as failed, so partial results stay
// inspectable; ErrNoSuccessfulVideos accompanies a report with zero
// successful analyses.
func (o *Orchestrator) Run(ctx context.Context, urls []string, progress ProgressFunc) (*models.BatchReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	o.logger.Info("starting batch run", "run_id", runID, "urls", len(urls),
		"duration_seconds", o.opts.DurationSeconds, "max_frames", o.opts.MaxFrames, "batch_size", o.opts.BatchSize)

	downloads := o.downloadAll(ctx, urls, progress)

	var records []models.VideoProcessingRecord
	videoIndex := 0
	for _, d := range downloads {
		if !d.Success {
			continue
		}
		videoIndex++
		record := o.processVideo(ctx, d, videoIndex, progress)
		records = append(records, record)
	}

	simReport := o.analyzeSimilarities(ctx, records, progress)

	report := o.assembleReport(runID, start, urls, downloads, records, simReport)
	if _, err := o.store.SaveReport(report); err != nil {
		o.logger.Warn("failed to save batch report", "error", err)
	}

	if report.Summary.SuccessfulAnalyses == 0 {
		return report, ErrNoSuccessfulVideos
	}
	o.logger.Info("batch run complete",
		"videos", report.Summary.SuccessfulAnalyses,
		"frames", report.Summary.TotalFramesAnalyzed,
		"tokens", report.Summary.TotalTokensUsed,
		"seconds", report.Metadata.ProcessingSeconds)
	return report, nil
}

// downloadAll attempts every URL independently. Invalid and failed URLs
// become failure entries; nothing aborts the batch here.
func (o *Orchestrator) downloadAll(ctx context.Context, urls []string, progress ProgressFunc) []models.DownloadResult {
	valid, invalid := media.ValidateURLs(urls)
	results := make([]models.DownloadResult, 0, len(urls))
	for _, u := range invalid {
		o.logger.Warn("skipping invalid URL", "url", u)
		results = append(results, models.DownloadResult{
			URL:     u,
			Success: false,
			Error:   "not a supported video URL",
		})
	}

	if o.opts.MaxVideos > 0 && len(valid) > o.opts.MaxVideos {
		o.logger.Warn("limiting batch", "max_videos", o.opts.MaxVideos, "got", len(valid))
		for _, u := range valid[o.opts.MaxVideos:] {
			results = append(results, models.DownloadResult{
				URL:     u,
				Success: false,
				Error:   fmt.Sprintf("exceeds max videos limit of %d", o.opts.MaxVideos),
			})
		}
		valid = valid[:o.opts.MaxVideos]
	}

	for i, u := range valid {
		if progress != nil {
			progress(Event{Stage: "download", VideoIndex: i + 1, VideoTotal: len(valid)})
		}
		path, src, err := o.retriever.Fetch(ctx, u, o.opts.DurationSeconds)
		if err != nil {
			o.logger.Warn("download failed", "url", u, "error", err)
			results = append(results, models.DownloadResult{
				URL:     u,
				Success: false,
				Error:   err.Error(),
			})
			continue
		}
		results = append(results, models.DownloadResult{
			URL:     u,
			Success: true,
			Path:    path,
			Source:  src,
		})
	}
	return results
}

// processVideo runs the sequential per-video stages: validate, sample,
// analyze in batches, summarize, persist. Any stage failure
// short-circuits this video to a failure record.
func (o *Orchestrator) processVideo(ctx context.Context, download models.DownloadResult, videoIndex int, progress ProgressFunc) models.VideoProcessingRecord {
	record := models.VideoProcessingRecord{
		Index:     videoIndex,
		Source:    download.Source,
		VideoPath: download.Path,
	}
	o.logger.Info("processing video", "index", videoIndex, "title", download.Source.Title)

	video, err := o.open(ctx, download.Path)
	if err != nil {
		record.Error = fmt.Sprintf("video file validation failed: %v", err)
		return record
	}
	defer video.Close()
	record.Info = video.Info()

	if progress != nil {
		progress(Event{Stage: "sample", VideoIndex: videoIndex})
	}
	frameDir := o.store.FrameDir(videoIndex, download.Source.ID)
	frames, err := o.sampler.Sample(ctx, video, frameDir, o.opts.MaxFrames, float64(o.opts.DurationSeconds))
	if err != nil {
		record.Error = fmt.Sprintf("frame extraction failed: %v", err)
		return record
	}
	record.Frames = frames
	record.FramesExtracted = len(frames)

	record.FrameAnalyses = o.analyzer.AnalyzeAll(ctx, frames, o.opts.BatchSize, func(done, total int, result models.FrameAnalysisResult) {
		if progress != nil {
			progress(Event{Stage: "analyze", VideoIndex: videoIndex, FrameDone: done, FrameTotal: total})
		}
	})
	for _, r := range record.FrameAnalyses {
		if r.Success {
			record.FramesAnalyzed++
			record.TokensUsed += r.TokensUsed
		}
	}

	if progress != nil {
		progress(Event{Stage: "summarize", VideoIndex: videoIndex})
	}
	record.Summary = o.analyzer.Summarize(ctx, record.FrameAnalyses, record.Info)
	if record.Summary.Success {
		record.TokensUsed += record.Summary.TokensUsed
	}

	record.Success = true
	o.persistRecord(ctx, &record)
	o.logger.Info("video analysis complete",
		"index", videoIndex,
		"analyzed", record.FramesAnalyzed,
		"extracted", record.FramesExtracted,
		"tokens", record.TokensUsed)
	return record
}

func (o *Orchestrator) persistRecord(ctx context.Context, record *models.VideoProcessingRecord) {
	breakdown := storage.Breakdown{
		Metadata: models.RecordMetadata{
			GeneratedAt: time.Now(),
			VideoFile:   record.VideoPath,
			VideoInfo:   record.Info,
			Source:      record.Source,
			Settings: models.ProcessingSettings{
				MaxFramesPerVideo:    o.opts.MaxFrames,
				DurationSeconds:      o.opts.DurationSeconds,
				TotalFramesExtracted: record.FramesExtracted,
				SuccessfulAnalyses:   record.FramesAnalyzed,
				BatchSize:            o.opts.BatchSize,
				Model:                o.model,
				TotalTokensUsed:      record.TokensUsed,
			},
		},
		FrameAnalyses: record.FrameAnalyses,
		VideoSummary:  record.Summary,
	}

	path, err := o.store.SaveBreakdown(record.Index, record.Source.ID, breakdown)
	if err != nil {
		o.logger.Warn("failed to save breakdown", "index", record.Index, "error", err)
	} else {
		record.BreakdownPath = path
	}

	if o.sink != nil {
		if err := o.sink.StoreRecord(ctx, *record); err != nil {
			o.logger.Warn("failed to index record", "index", record.Index, "error", err)
		}
	}
}

// analyzeSimilarities runs the holistic and pairwise comparisons over
// finalized records. Insufficient input is a normal reported outcome.
func (o *Orchestrator) analyzeSimilarities(ctx context.Context, records []models.VideoProcessingRecord, progress ProgressFunc) *models.SimilarityReport {
	if progress != nil {
		progress(Event{Stage: "similarity"})
	}
	report := &models.SimilarityReport{}

	holistic, err := o.engine.CompareAll(ctx, records)
	if err != nil {
		o.logger.Warn("holistic comparison unavailable", "error", err)
		report.Error = err.Error()
	} else {
		report.Holistic = holistic
		report.TokensUsed += holistic.TokensUsed
	}

	pairwise, err := o.engine.ComparePairs(ctx, records)
	if err != nil {
		if report.Error == "" {
			report.Error = err.Error()
		}
	} else {
		report.Pairwise = pairwise
		report.TokensUsed += pairwise.TokensUsed
	}

	if _, err := o.store.SaveSimilarity(report); err != nil {
		o.logger.Warn("failed to save similarity analysis", "error", err)
	}
	return report
}

func (o *Orchestrator) assembleReport(runID string, start time.Time, urls []string, downloads []models.DownloadResult, records []models.VideoProcessingRecord, sim *models.SimilarityReport) *models.BatchReport {
	summary := models.BatchSummary{TotalURLs: len(urls)}
	var titles []string
	for _, d := range downloads {
		if d.Success {
			summary.SuccessfulDownloads++
		}
	}
	for _, r := range records {
		if !r.Success {
			continue
		}
		summary.SuccessfulAnalyses++
		summary.TotalFramesExtracted += r.FramesExtracted
		summary.TotalFramesAnalyzed += r.FramesAnalyzed
		summary.TotalTokensUsed += r.TokensUsed
		titles = append(titles, r.Source.Title)
	}
	summary.TotalTokensUsed += sim.TokensUsed
	summary.EstimatedCostUSD = float64(summary.TotalTokensUsed) * costPerToken

	return &models.BatchReport{
		Metadata: models.BatchMetadata{
			RunID:             runID,
			GeneratedAt:       time.Now(),
			ProcessingSeconds: time.Since(start).Seconds(),
			OutputDirectory:   o.store.OutputDir,
		},
		Summary:         summary,
		DownloadResults: downloads,
		VideoAnalyses:   records,
		Similarity:      sim,
		VideoTitles:     titles,
	}
}
