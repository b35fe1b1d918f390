package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
)

// ErrRetrieval marks a source that could not be found or accessed.
var ErrRetrieval = errors.New("video not found or inaccessible")

// Retriever fetches a source clip to local disk.
type Retriever interface {
	Fetch(ctx context.Context, url string, maxDuration int) (string, *models.VideoSource, error)
}

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/v/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/shorts/[\w-]+`),
}

var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([\w-]{6,})`),
	regexp.MustCompile(`youtu\.be/([\w-]{6,})`),
	regexp.MustCompile(`/shorts/([\w-]{6,})`),
	regexp.MustCompile(`/embed/([\w-]{6,})`),
	regexp.MustCompile(`/v/([\w-]{6,})`),
}

// IsValidURL reports whether a URL matches a supported YouTube form.
func IsValidURL(url string) bool {
	for _, p := range urlPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// ValidateURLs partitions URLs into supported and unsupported forms.
func ValidateURLs(urls []string) (valid, invalid []string) {
	for _, u := range urls {
		if IsValidURL(u) {
			valid = append(valid, u)
		} else {
			invalid = append(invalid, u)
		}
	}
	return valid, invalid
}

// ExtractVideoID pulls the video id out of any supported URL form.
func ExtractVideoID(url string) string {
	for _, p := range idPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// NormalizeWatchURL rewrites shorts/embed/short-link URLs to the
// watch?v= form, which avoids shorts-specific access issues on
// headless hosts.
func NormalizeWatchURL(url string) string {
	if id := ExtractVideoID(url); id != "" {
		return "https://www.youtube.com/watch?v=" + id
	}
	return url
}

var reservedNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// safeTitle produces a filesystem-safe file name fragment from a title.
func safeTitle(title string) string {
	if len(title) > 50 {
		title = title[:50]
	}
	return reservedNameChars.ReplaceAllString(title, "_")
}

// YTDLPRetriever downloads clips with the yt-dlp command line tool.
type YTDLPRetriever struct {
	DownloadsDir string
	logger       *slog.Logger
}

// NewYTDLPRetriever creates a retriever writing into downloadsDir.
func NewYTDLPRetriever(downloadsDir string, logger *slog.Logger) (*YTDLPRetriever, error) {
	if err := os.MkdirAll(downloadsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory '%s': %v", downloadsDir, err)
	}
	return &YTDLPRetriever{DownloadsDir: downloadsDir, logger: logger}, nil
}

type ytdlpInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Duration   int    `json:"duration"`
	Uploader   string `json:"uploader"`
	ViewCount  int64  `json:"view_count"`
	UploadDate string `json:"upload_date"`
}

// Probe fetches metadata without downloading.
func (r *YTDLPRetriever) Probe(ctx context.Context, url string) (*models.VideoSource, error) {
	cmd := exec.CommandContext(ctx,
		"yt-dlp",
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		NormalizeWatchURL(url),
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: metadata lookup failed for %s: %v", ErrRetrieval, url, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata for %s: %v", ErrRetrieval, url, err)
	}
	return &models.VideoSource{
		ID:              info.ID,
		Title:           info.Title,
		URL:             url,
		Uploader:        info.Uploader,
		DurationSeconds: info.Duration,
		ViewCount:       info.ViewCount,
		UploadDate:      info.UploadDate,
	}, nil
}

// Fetch downloads the first maxDuration seconds of a video and returns
// the local path plus its metadata.
func (r *YTDLPRetriever) Fetch(ctx context.Context, url string, maxDuration int) (string, *models.VideoSource, error) {
	src, err := r.Probe(ctx, url)
	if err != nil {
		return "", nil, err
	}

	outPath := filepath.Join(r.DownloadsDir, fmt.Sprintf("%s_%s.mp4", src.ID, safeTitle(src.Title)))
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"-f", "best[ext=mp4]/best",
		"--recode-video", "mp4",
		"-o", outPath,
	}
	if maxDuration > 0 {
		args = append(args, "--download-sections", fmt.Sprintf("*0-%d", maxDuration))
	}
	args = append(args, NormalizeWatchURL(url))

	r.logger.Info("downloading clip", "title", src.Title, "seconds", maxDuration)
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", nil, fmt.Errorf("%w: download failed for %s: %v: %s", ErrRetrieval, url, err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", nil, fmt.Errorf("%w: downloaded file missing for %s", ErrRetrieval, url)
	}
	return outPath, src, nil
}

// Cleanup removes the downloads directory and everything in it.
func (r *YTDLPRetriever) Cleanup() error {
	return os.RemoveAll(r.DownloadsDir)
}
