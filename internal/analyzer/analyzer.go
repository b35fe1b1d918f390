// Package analyzer sends sampled frames to the vision oracle and folds
// the per-frame results into a video-level summary.
package analyzer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
)

// framePrompt is the fixed structured prompt attached to every frame.
const framePrompt = `You are an AI assistant analyzing individual frames from a video. Each frame is provided to you as an image.

Your task is to describe each frame in rich detail using the following structure:

1. **Scene Overview** – What's happening overall? Is there any visible action or focus?
2. **Key Visual Elements** – List and describe any important elements in the frame (e.g. people, objects, background details, text on screen, gestures, facial expressions).
3. **Environment & Mood** – Is it indoors or outdoors? What does the lighting feel like (e.g., bright, dim, moody, warm, natural)? Describe the tone or atmosphere (e.g., relaxed, tense, professional, friendly).
4. **Possible Context or Purpose** – Based on visual clues, infer the purpose of this moment (e.g. part of a tutorial, vlog intro, dramatic moment, product demo, conversation scene, public setting, etc.).

Instructions:
- Avoid generic phrases like "This is a picture of..." — be direct and descriptive.
- Keep the response well-structured and easy to read.
- Be concise but insightful, and only describe what is visible in the image.

Do not speculate about anything not present in the frame.`

const frameMaxTokens = 1000

// ProgressFunc receives one completed frame result, in input order, with
// the running completed count and the total.
type ProgressFunc func(completed, total int, result models.FrameAnalysisResult)

// Analyzer drives per-frame oracle calls.
type Analyzer struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

// New returns an Analyzer backed by the given oracle.
func New(o oracle.Oracle, logger *slog.Logger) *Analyzer {
	return &Analyzer{oracle: o, logger: logger}
}

// AnalyzeFrame analyzes a single frame. Failures are captured in the
// result, never returned as an error; nothing raises past this boundary.
func (a *Analyzer) AnalyzeFrame(ctx context.Context, frame models.SampledFrame) models.FrameAnalysisResult {
	result := models.FrameAnalysisResult{
		Timestamp:    frame.Timestamp,
		FrameOrdinal: frame.Ordinal,
		FramePath:    frame.Path,
	}

	resp, err := a.oracle.Complete(ctx, oracle.Request{
		Prompt:    framePrompt,
		ImagePath: frame.Path,
		MaxTokens: frameMaxTokens,
	})
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	result.Success = true
	result.Description = resp.Text
	result.TokensUsed = resp.TokensUsed
	return result
}

// AnalyzeAll analyzes frames in consecutive chunks of batchSize. Calls
// within a chunk run concurrently; the whole chunk completes before the
// next starts, bounding peak concurrency to batchSize. The returned
// slice has the same length and order as the input regardless of
// completion order, and one frame's failure never affects its siblings.
func (a *Analyzer) AnalyzeAll(ctx context.Context, frames []models.SampledFrame, batchSize int, progress ProgressFunc) []models.FrameAnalysisResult {
	if batchSize < 1 {
		batchSize = 1
	}

	total := len(frames)
	results := make([]models.FrameAnalysisResult, total)

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}

		a.logger.Info("processing batch",
			"batch", start/batchSize+1,
			"batches", (total+batchSize-1)/batchSize,
			"frames", end-start)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = a.AnalyzeFrame(ctx, frames[i])
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if results[i].Success {
				a.logger.Debug("frame analyzed", "frame", i+1, "total", total)
			} else {
				a.logger.Warn("frame analysis failed", "frame", i+1, "total", total, "error", results[i].ErrorMessage)
			}
			if progress != nil {
				progress(i+1, total, results[i])
			}
		}
	}

	return results
}
