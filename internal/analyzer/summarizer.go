package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
)

const summaryMaxTokens = 1500

// Summarize folds the successful frame analyses plus video metadata into
// one synthesis call. An input with no successful frames fails
// deterministically without touching the oracle.
func (a *Analyzer) Summarize(ctx context.Context, frameResults []models.FrameAnalysisResult, info models.VideoInfo) models.VideoSummary {
	var lines []string
	for _, r := range frameResults {
		if r.Success {
			lines = append(lines, fmt.Sprintf("Frame %d (%.1fs): %s", r.FrameOrdinal, r.Timestamp, r.Description))
		}
	}

	if len(lines) == 0 {
		return models.VideoSummary{
			Success:      false,
			ErrorMessage: "no successful frame analyses to summarize",
		}
	}

	prompt := buildSummaryPrompt(lines, info)
	resp, err := a.oracle.Complete(ctx, oracle.Request{
		Prompt:    prompt,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return models.VideoSummary{
			Success:          false,
			ErrorMessage:     err.Error(),
			FramesConsidered: len(lines),
		}
	}

	return models.VideoSummary{
		Success:          true,
		Text:             resp.Text,
		TokensUsed:       resp.TokensUsed,
		FramesConsidered: len(lines),
	}
}

func buildSummaryPrompt(frameLines []string, info models.VideoInfo) string {
	return fmt.Sprintf(`You are an AI assistant tasked with creating a comprehensive summary of a video based on frame-by-frame analyses.

Video Information:
- Duration: %.1f seconds
- Resolution: %s
- FPS: %.1f
- Total frames analyzed: %d

Below are the detailed analyses of individual frames from the video:

%s

Based on these frame analyses, provide a comprehensive summary of the video using the following structure:

1. **Overall Video Summary** – What is this video about? What's the main content, purpose, or narrative?

2. **Key Themes and Topics** – What are the main themes, subjects, or topics covered throughout the video?

3. **Visual Progression** – How does the visual content evolve throughout the video? Are there distinct segments or scenes?

4. **Notable Moments** – Highlight any particularly interesting, important, or distinctive moments in the video.

5. **Technical Observations** – Comment on visual quality, lighting changes, camera work, or production style.

6. **Content Classification** – What type of video is this? (e.g., tutorial, vlog, presentation, entertainment, documentary, etc.)

7. **Key Takeaways** – What are the main points or messages someone would get from watching this video?

Instructions:
- Be concise but comprehensive
- Focus on patterns and overall narrative rather than repeating individual frame details
- Highlight transitions, changes, and progression throughout the video
- Identify the video's purpose and target audience
- Keep the summary well-structured and easy to read`,
		info.DurationSeconds,
		info.Resolution,
		info.FPS,
		len(frameLines),
		strings.Join(frameLines, "\n"))
}
