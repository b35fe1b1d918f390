// Package similarity compares finalized video records against each
// other, holistically in one oracle call and pairwise over every
// unordered pair.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
)

// ErrInsufficientInput is returned when fewer than two successfully
// analyzed videos are available. Checked before any oracle call.
var ErrInsufficientInput = errors.New("need at least 2 successfully analyzed videos for comparison")

const (
	holisticMaxTokens = 2000
	pairwiseMaxTokens = 300

	// Caps bounding holistic prompt size, not correctness.
	maxFrameDescriptions = 10
	frameDescriptionCap  = 200
	pairSummaryCap       = 500
)

// Engine produces similarity analyses through the oracle.
type Engine struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

// New returns an Engine backed by the given oracle.
func New(o oracle.Oracle, logger *slog.Logger) *Engine {
	return &Engine{oracle: o, logger: logger}
}

// successful filters records to the successfully analyzed ones,
// preserving the stable processing order.
func successful(records []models.VideoProcessingRecord) []models.VideoProcessingRecord {
	out := make([]models.VideoProcessingRecord, 0, len(records))
	for _, r := range records {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// CompareAll compares all successfully analyzed videos in one holistic
// oracle call.
func (e *Engine) CompareAll(ctx context.Context, records []models.VideoProcessingRecord) (*models.HolisticComparison, error) {
	videos := successful(records)
	if len(videos) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrInsufficientInput, len(videos))
	}

	e.logger.Info("running holistic comparison", "videos", len(videos))
	resp, err := e.oracle.Complete(ctx, oracle.Request{
		Prompt:    buildHolisticPrompt(videos),
		MaxTokens: holisticMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("holistic comparison failed: %w", err)
	}

	titles := make([]string, len(videos))
	for i, v := range videos {
		titles[i] = v.Source.Title
	}
	return &models.HolisticComparison{
		Analysis:       resp.Text,
		TokensUsed:     resp.TokensUsed,
		VideosCompared: len(videos),
		VideoTitles:    titles,
	}, nil
}

// ComparePairs issues one independent oracle call per unordered pair
// (i,j) with i<j in the stable order. A failed call marks that pair only;
// siblings are unaffected.
func (e *Engine) ComparePairs(ctx context.Context, records []models.VideoProcessingRecord) (*models.PairwiseReport, error) {
	videos := successful(records)
	if len(videos) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrInsufficientInput, len(videos))
	}

	var comparisons []models.PairwiseComparison
	totalTokens := 0

	for i := 0; i < len(videos); i++ {
		for j := i + 1; j < len(videos); j++ {
			pair := models.PairwiseComparison{
				IndexA: i + 1,
				IndexB: j + 1,
				TitleA: videos[i].Source.Title,
				TitleB: videos[j].Source.Title,
			}

			resp, err := e.oracle.Complete(ctx, oracle.Request{
				Prompt:    buildPairPrompt(videos[i], videos[j]),
				MaxTokens: pairwiseMaxTokens,
			})
			if err != nil {
				e.logger.Warn("pairwise comparison failed", "pair", fmt.Sprintf("%d-%d", i+1, j+1), "error", err)
				pair.Comparison = "Error: " + err.Error()
			} else {
				pair.Comparison = resp.Text
				pair.TokensUsed = resp.TokensUsed
				totalTokens += resp.TokensUsed
			}

			comparisons = append(comparisons, pair)
		}
	}

	return &models.PairwiseReport{
		Comparisons: comparisons,
		TotalPairs:  len(comparisons),
		TokensUsed:  totalTokens,
	}, nil
}

// truncate caps s at n characters, cutting on a rune boundary so
// multi-byte text never turns into invalid UTF-8.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func buildHolisticPrompt(videos []models.VideoProcessingRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an AI assistant specialized in analyzing and comparing video content. I will provide you with detailed breakdowns of %d different videos, and you need to analyze their similarities and differences.

Each video has been analyzed frame-by-frame, with detailed descriptions and comprehensive summaries.

Here are the video breakdowns:

`, len(videos))

	for i, v := range videos {
		fmt.Fprintf(&b, `
=== VIDEO %d: %s ===
URL: %s
Duration Analyzed: %.1f seconds
Frames Analyzed: %d

COMPREHENSIVE SUMMARY:
%s

FRAME-BY-FRAME DESCRIPTIONS:
`, i+1, v.Source.Title, v.Source.URL, v.Info.DurationSeconds, len(v.FrameAnalyses), v.Summary.Text)

		count := 0
		for _, f := range v.FrameAnalyses {
			if !f.Success {
				continue
			}
			fmt.Fprintf(&b, "• %.1fs: %s\n", f.Timestamp, truncate(f.Description, frameDescriptionCap))
			count++
			if count >= maxFrameDescriptions {
				break
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `
Based on these %d video analyses, provide a comprehensive comparison using the following structure:

## 1. OVERALL SIMILARITY ASSESSMENT
- Rate the overall similarity between these videos on a scale of 1-10 (1 = completely different, 10 = nearly identical)
- Provide a brief explanation of your rating

## 2. COMMON THEMES AND PATTERNS
- What themes, topics, or subjects appear across multiple videos?
- Are there any recurring visual elements, settings, or styles?
- Do the videos share similar purposes or target audiences?

## 3. CONTENT CATEGORIES AND CLASSIFICATION
- How would you categorize each video? (e.g., tutorial, entertainment, documentary, vlog, etc.)
- Are there videos that belong to the same category?
- What are the primary content types represented?

## 4. VISUAL AND PRODUCTION SIMILARITIES
- Are there similarities in production quality, filming style, or visual presentation?
- Do any videos share similar environments, lighting, or camera work?
- Are there common visual elements or aesthetics?

## 5. THEMATIC CLUSTERING
- Can you group these videos into clusters based on similarity?
- Which videos are most similar to each other and why?
- Which videos are outliers or unique compared to the rest?

## 6. KEY DIFFERENCES AND UNIQUE ASPECTS
- What makes each video unique or different from the others?
- Are there videos that stand out as particularly different?
- What are the main differentiating factors?

Please be specific and reference the actual video content in your analysis. Use video numbers (Video 1, Video 2, etc.) when making comparisons.`, len(videos))

	return b.String()
}

func buildPairPrompt(a, b models.VideoProcessingRecord) string {
	return fmt.Sprintf(`Compare these two videos and rate their similarity on a scale of 1-10:

VIDEO A: %s
Summary: %s

VIDEO B: %s
Summary: %s

Provide:
1. Similarity score (1-10)
2. Brief explanation (2-3 sentences)
3. Main similarities
4. Main differences

Format: Score: X/10. Explanation: [your analysis]`,
		a.Source.Title, truncate(a.Summary.Text, pairSummaryCap),
		b.Source.Title, truncate(b.Summary.Text, pairSummaryCap))
}
