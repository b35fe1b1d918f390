package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/iamsahilshukla/visual-breakdown/internal/models"
)

// ErrDecode marks failures to open or measure a media file.
var ErrDecode = errors.New("cannot open or measure video")

// Decodable is an opened video stream. The frame sampler drives it; the
// opener owns Close and must call it on all exit paths.
type Decodable interface {
	Info() models.VideoInfo
	// DecodeAt seeks to the given zero-based frame index and decodes a
	// single frame as JPEG bytes.
	DecodeAt(ctx context.Context, index int) ([]byte, error)
	Close() error
}

// Video decodes frames from a local file by shelling out to ffmpeg,
// with stream properties measured once via ffprobe.
type Video struct {
	path   string
	info   models.VideoInfo
	closed bool
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Open probes a video file and returns a decodable handle. It fails
// with ErrDecode when the file is missing, unreadable, or reports a
// zero frame rate or frame count.
func Open(ctx context.Context, path string) (*Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed for %s: %v", ErrDecode, path, err)
	}

	info, err := parseProbeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return &Video{path: path, info: info}, nil
}

func parseProbeOutput(data []byte) (models.VideoInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.VideoInfo{}, fmt.Errorf("invalid ffprobe output: %v", err)
	}
	if len(probe.Streams) == 0 {
		return models.VideoInfo{}, errors.New("no video stream found")
	}
	s := probe.Streams[0]

	fps := parseRational(s.AvgFrameRate)
	if fps == 0 {
		fps = parseRational(s.RFrameRate)
	}
	if fps == 0 {
		return models.VideoInfo{}, errors.New("zero frame rate reported")
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	frames, _ := strconv.Atoi(s.NbFrames)
	if frames == 0 && duration > 0 {
		// Some containers omit nb_frames; derive from duration.
		frames = int(fps * duration)
	}
	if frames == 0 {
		return models.VideoInfo{}, errors.New("zero frame count reported")
	}
	if duration == 0 {
		duration = float64(frames) / fps
	}

	return models.VideoInfo{
		FPS:             fps,
		TotalFrames:     frames,
		Width:           s.Width,
		Height:          s.Height,
		DurationSeconds: duration,
		Resolution:      fmt.Sprintf("%dx%d", s.Width, s.Height),
	}, nil
}

// parseRational converts an ffprobe rate like "30000/1001" to a float.
func parseRational(r string) float64 {
	if r == "" || r == "0/0" {
		return 0
	}
	parts := strings.SplitN(r, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// Info returns the measured stream properties.
func (v *Video) Info() models.VideoInfo {
	return v.info
}

// DecodeAt decodes the frame at the given index to JPEG bytes. Seeking
// is done with a coarse -ss jump ahead of the precise select filter so
// decoding stays fast on longer inputs.
func (v *Video) DecodeAt(ctx context.Context, index int) ([]byte, error) {
	if v.closed {
		return nil, fmt.Errorf("decode frame %d: video handle closed", index)
	}
	if index < 0 || index >= v.info.TotalFrames {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", index, v.info.TotalFrames)
	}

	seconds := float64(index) / v.info.FPS
	args := []string{"-v", "error"}
	// Keyframe-inaccurate fast seek to just before the target, then let
	// the select filter count frames from there.
	preSeek := seconds - 2.0
	framesToSkip := index
	if preSeek > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", preSeek))
		framesToSkip = index - int(preSeek*v.info.FPS)
		if framesToSkip < 0 {
			framesToSkip = 0
		}
	}
	args = append(args,
		"-i", v.path,
		"-vf", fmt.Sprintf("select=gte(n\\,%d)", framesToSkip),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode of frame %d failed: %v: %s", index, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no data for frame %d", index)
	}
	return stdout.Bytes(), nil
}

// Close releases the handle. Safe to call more than once.
func (v *Video) Close() error {
	v.closed = true
	return nil
}
