// Package sampler selects and materializes frames from a decoded video.
//
// Two modes exist: fixed-count sampling picks a bounded number of frames
// evenly distributed across an analysis window and is the canonical mode
// for batch/similarity runs; interval sampling walks the whole video at a
// fixed period with no upper bound and serves single-video use.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/iamsahilshukla/visual-breakdown/internal/media"
	"github.com/iamsahilshukla/visual-breakdown/internal/models"
)

// ErrNoFramesExtracted is returned when not a single frame could be
// decoded. Fewer frames than requested is a partial result, not an error.
var ErrNoFramesExtracted = errors.New("no frames were extracted")

// Sampler extracts frames from decodable videos into an output directory.
type Sampler struct {
	logger *slog.Logger
}

// New returns a Sampler logging through the given logger.
func New(logger *slog.Logger) *Sampler {
	return &Sampler{logger: logger}
}

// SelectIndices computes the frame indices for fixed-count sampling.
// When the analysis window holds at most maxFrames frames every index is
// taken (dense); otherwise maxFrames indices are spread evenly with
// index(i) = floor(i*analysisFrames/maxFrames), which is deterministic,
// strictly monotonic, and always starts at index 0.
func SelectIndices(analysisFrames, maxFrames int) []int {
	if analysisFrames <= maxFrames {
		indices := make([]int, analysisFrames)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, maxFrames)
	for i := 0; i < maxFrames; i++ {
		indices[i] = i * analysisFrames / maxFrames
	}
	return indices
}

// Sample extracts up to maxFrames frames evenly distributed across the
// first maxDuration seconds of the video, writing each as a JPEG named
// by ordinal and timestamp. Individual decode failures are logged and
// skipped; the caller gets the frames that succeeded. The video handle
// stays owned by the caller and is not closed here.
func (s *Sampler) Sample(ctx context.Context, video media.Decodable, outputDir string, maxFrames int, maxDuration float64) ([]models.SampledFrame, error) {
	if maxFrames <= 0 {
		return nil, fmt.Errorf("maxFrames must be positive, got %d", maxFrames)
	}
	info := video.Info()
	if info.FPS <= 0 || info.TotalFrames <= 0 {
		return nil, fmt.Errorf("%w: fps=%.2f frames=%d", media.ErrDecode, info.FPS, info.TotalFrames)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory '%s': %v", outputDir, err)
	}

	analysisDuration := math.Min(info.DurationSeconds, maxDuration)
	analysisFrames := int(info.FPS * analysisDuration)
	if analysisFrames > info.TotalFrames {
		analysisFrames = info.TotalFrames
	}

	indices := SelectIndices(analysisFrames, maxFrames)
	s.logger.Info("sampling frames",
		"fps", info.FPS,
		"analysis_seconds", analysisDuration,
		"analysis_frames", analysisFrames,
		"selected", len(indices))

	return s.extract(ctx, video, outputDir, indices, info.FPS)
}

// SampleInterval extracts every frame whose index is a multiple of
// round(fps*intervalSeconds), scanning from start to end with no cap on
// the extracted count.
func (s *Sampler) SampleInterval(ctx context.Context, video media.Decodable, outputDir string, intervalSeconds float64) ([]models.SampledFrame, error) {
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("intervalSeconds must be positive, got %v", intervalSeconds)
	}
	info := video.Info()
	if info.FPS <= 0 || info.TotalFrames <= 0 {
		return nil, fmt.Errorf("%w: fps=%.2f frames=%d", media.ErrDecode, info.FPS, info.TotalFrames)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory '%s': %v", outputDir, err)
	}

	step := int(math.Round(info.FPS * intervalSeconds))
	if step < 1 {
		step = 1
	}
	var indices []int
	for i := 0; i < info.TotalFrames; i += step {
		indices = append(indices, i)
	}

	s.logger.Info("sampling frames at interval",
		"interval_seconds", intervalSeconds,
		"step", step,
		"selected", len(indices))

	return s.extract(ctx, video, outputDir, indices, info.FPS)
}

func (s *Sampler) extract(ctx context.Context, video media.Decodable, outputDir string, indices []int, fps float64) ([]models.SampledFrame, error) {
	frames := make([]models.SampledFrame, 0, len(indices))
	for _, index := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := video.DecodeAt(ctx, index)
		if err != nil {
			s.logger.Warn("skipping undecodable frame", "index", index, "error", err)
			continue
		}

		ordinal := len(frames) + 1
		timestamp := float64(index) / fps
		name := fmt.Sprintf("frame_%02d_%.2fs.jpg", ordinal, timestamp)
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			s.logger.Warn("failed to save frame", "path", path, "error", err)
			continue
		}

		frames = append(frames, models.SampledFrame{
			Timestamp: timestamp,
			Path:      path,
			Ordinal:   ordinal,
		})
	}

	if len(frames) == 0 {
		return nil, ErrNoFramesExtracted
	}
	if len(frames) < len(indices) {
		s.logger.Warn("partial extraction", "extracted", len(frames), "requested", len(indices))
	}
	return frames, nil
}
