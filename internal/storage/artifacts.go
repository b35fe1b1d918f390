// Package storage persists per-video breakdowns, similarity analyses,
// and batch reports as JSON artifacts, with an optional Postgres store
// for embedding-indexed frame descriptions.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
)

// Breakdown is the persisted per-video artifact shape.
type Breakdown struct {
	Metadata      models.RecordMetadata        `json:"metadata"`
	FrameAnalyses []models.FrameAnalysisResult `json:"frame_analyses"`
	VideoSummary  models.VideoSummary          `json:"video_summary"`
}

// ArtifactStore lays out and writes the on-disk output tree of a batch
// run. Each video's artifacts live in their own namespaced subdirectory,
// so fully-completed videos stay usable even when a run is aborted.
type ArtifactStore struct {
	OutputDir     string
	VideosDir     string
	FramesDir     string
	BreakdownsDir string
	SimilarityDir string
}

// NewArtifactStore creates the output directory tree under outputDir.
func NewArtifactStore(outputDir string) (*ArtifactStore, error) {
	s := &ArtifactStore{
		OutputDir:     outputDir,
		VideosDir:     filepath.Join(outputDir, "downloaded_videos"),
		FramesDir:     filepath.Join(outputDir, "frames"),
		BreakdownsDir: filepath.Join(outputDir, "individual_breakdowns"),
		SimilarityDir: filepath.Join(outputDir, "similarity_analysis"),
	}
	for _, dir := range []string{s.OutputDir, s.VideosDir, s.FramesDir, s.BreakdownsDir, s.SimilarityDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory '%s': %v", dir, err)
		}
	}
	return s, nil
}

// FrameDir returns the namespaced frame directory for one video.
func (s *ArtifactStore) FrameDir(videoIndex int, videoID string) string {
	return filepath.Join(s.FramesDir, fmt.Sprintf("video_%d_%s", videoIndex, videoID))
}

// SaveBreakdown writes one video's breakdown artifact and returns its path.
func (s *ArtifactStore) SaveBreakdown(videoIndex int, videoID string, breakdown Breakdown) (string, error) {
	path := filepath.Join(s.BreakdownsDir, fmt.Sprintf("video_%d_%s_breakdown.json", videoIndex, videoID))
	if err := writeJSON(path, breakdown); err != nil {
		return "", err
	}
	return path, nil
}

// SaveSimilarity writes the similarity analysis artifact.
func (s *ArtifactStore) SaveSimilarity(report *models.SimilarityReport) (string, error) {
	path := filepath.Join(s.SimilarityDir, "similarity_analysis.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// SaveReport writes the top-level batch report.
func (s *ArtifactStore) SaveReport(report *models.BatchReport) (string, error) {
	path := filepath.Join(s.OutputDir, "batch_analysis_report.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %v", path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode '%s': %v", path, err)
	}
	return nil
}
