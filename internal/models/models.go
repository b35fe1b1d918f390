package models

import "time"

// VideoSource describes a video as reported by the retrieval backend.
// Immutable once fetched.
type VideoSource struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	Uploader        string `json:"uploader"`
	DurationSeconds int    `json:"duration"`
	ViewCount       int64  `json:"view_count"`
	UploadDate      string `json:"upload_date"`
}

// VideoInfo holds the measured properties of an opened video stream.
type VideoInfo struct {
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	Resolution      string  `json:"resolution"`
}

// SampledFrame is one extracted frame. Ordinals are 1-based and
// contiguous within a video's extracted sequence.
type SampledFrame struct {
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"frame_path"`
	Ordinal   int     `json:"frame_number"`
}

// FrameAnalysisResult is the outcome of analyzing a single frame.
// Exactly one of Description/ErrorMessage is meaningful depending on
// Success.
type FrameAnalysisResult struct {
	Success      bool    `json:"success"`
	Description  string  `json:"description,omitempty"`
	ErrorMessage string  `json:"error,omitempty"`
	TokensUsed   int     `json:"tokens_used"`
	Timestamp    float64 `json:"timestamp"`
	FrameOrdinal int     `json:"frame_number"`
	FramePath    string  `json:"frame_path"`
}

// VideoSummary is the synthesized video-level summary derived from the
// successful frame analyses.
type VideoSummary struct {
	Success          bool   `json:"success"`
	Text             string `json:"summary,omitempty"`
	ErrorMessage     string `json:"error,omitempty"`
	TokensUsed       int    `json:"tokens_used"`
	FramesConsidered int    `json:"frames_analyzed"`
}

// DownloadResult records the outcome of one retrieval attempt.
type DownloadResult struct {
	URL     string       `json:"url"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Path    string       `json:"video_path,omitempty"`
	Source  *VideoSource `json:"info,omitempty"`
}

// ProcessingSettings echoes the knobs a record was produced with.
type ProcessingSettings struct {
	MaxFramesPerVideo    int    `json:"max_frames_per_video"`
	DurationSeconds      int    `json:"duration_seconds"`
	TotalFramesExtracted int    `json:"total_frames_extracted"`
	SuccessfulAnalyses   int    `json:"successful_analyses"`
	BatchSize            int    `json:"batch_size"`
	Model                string `json:"model_used"`
	TotalTokensUsed      int    `json:"total_tokens_used"`
}

// RecordMetadata is the metadata block of a persisted per-video
// breakdown artifact.
type RecordMetadata struct {
	GeneratedAt time.Time          `json:"generated_at"`
	VideoFile   string             `json:"video_file"`
	VideoInfo   VideoInfo          `json:"video_info"`
	Source      *VideoSource       `json:"youtube_info"`
	Settings    ProcessingSettings `json:"processing_settings"`
}

// VideoProcessingRecord aggregates everything produced for one video.
// It is finalized before similarity analysis sees it and never mutated
// afterwards.
type VideoProcessingRecord struct {
	Index           int                   `json:"video_index"`
	Source          *VideoSource          `json:"info"`
	Info            VideoInfo             `json:"video_info"`
	VideoPath       string                `json:"video_path"`
	BreakdownPath   string                `json:"breakdown_path,omitempty"`
	Frames          []SampledFrame        `json:"-"`
	FrameAnalyses   []FrameAnalysisResult `json:"frame_analyses"`
	Summary         VideoSummary          `json:"video_summary"`
	FramesExtracted int                   `json:"frames_extracted"`
	FramesAnalyzed  int                   `json:"frames_analyzed"`
	TokensUsed      int                   `json:"total_tokens"`
	Success         bool                  `json:"breakdown_success"`
	Error           string                `json:"breakdown_error,omitempty"`
}

// HolisticComparison is the single multi-video comparison produced by
// one oracle call over all successful records.
type HolisticComparison struct {
	Analysis       string   `json:"analysis"`
	TokensUsed     int      `json:"tokens_used"`
	VideosCompared int      `json:"videos_compared"`
	VideoTitles    []string `json:"video_titles"`
}

// PairwiseComparison compares one unordered pair of videos. Indices are
// 1-based positions in the stable processing order of successful records.
type PairwiseComparison struct {
	IndexA     int    `json:"video1_index"`
	IndexB     int    `json:"video2_index"`
	TitleA     string `json:"video1_title"`
	TitleB     string `json:"video2_title"`
	Comparison string `json:"comparison"`
	TokensUsed int    `json:"tokens_used"`
}

// PairwiseReport aggregates all pairwise comparisons of a run.
type PairwiseReport struct {
	Comparisons []PairwiseComparison `json:"pairwise_comparisons"`
	TotalPairs  int                  `json:"total_pairs"`
	TokensUsed  int                  `json:"total_tokens_used"`
}

// SimilarityReport combines the holistic and pairwise analyses.
type SimilarityReport struct {
	Holistic   *HolisticComparison `json:"comprehensive_analysis,omitempty"`
	Error      string              `json:"error,omitempty"`
	Pairwise   *PairwiseReport     `json:"pairwise_comparisons,omitempty"`
	TokensUsed int                 `json:"total_tokens_used"`
}

// BatchSummary holds the grand totals of a batch run. Attempted and
// succeeded counts are kept separate at every level so partial success
// stays legible.
type BatchSummary struct {
	TotalURLs            int     `json:"total_urls_provided"`
	SuccessfulDownloads  int     `json:"successful_downloads"`
	SuccessfulAnalyses   int     `json:"successful_analyses"`
	TotalFramesExtracted int     `json:"total_frames_extracted"`
	TotalFramesAnalyzed  int     `json:"total_frames_analyzed"`
	TotalTokensUsed      int     `json:"total_tokens_used"`
	EstimatedCostUSD     float64 `json:"estimated_cost_usd"`
}

// BatchMetadata identifies one batch run.
type BatchMetadata struct {
	RunID             string    `json:"run_id"`
	GeneratedAt       time.Time `json:"generated_at"`
	ProcessingSeconds float64   `json:"processing_time_seconds"`
	OutputDirectory   string    `json:"output_directory"`
}

// BatchReport is the top-level aggregate persisted at the end of a run.
type BatchReport struct {
	Metadata        BatchMetadata           `json:"metadata"`
	Summary         BatchSummary            `json:"summary"`
	DownloadResults []DownloadResult        `json:"download_results"`
	VideoAnalyses   []VideoProcessingRecord `json:"video_analyses"`
	Similarity      *SimilarityReport       `json:"similarity_analysis,omitempty"`
	VideoTitles     []string                `json:"video_titles"`
}
