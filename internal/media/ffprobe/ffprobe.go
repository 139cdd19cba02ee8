package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"subtrove/internal/media"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// DurationSeconds returns the container duration rounded to whole seconds, or 0 when unavailable.
func (r Result) DurationSeconds() int64 {
	d := parseFloat(r.Format.Duration)
	if math.IsNaN(d) || d <= 0 {
		return 0
	}
	return int64(math.Round(d))
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func (r Result) primaryVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && stream.Height > 0 {
			return stream, true
		}
	}
	return Stream{}, false
}

// Resolution maps the first video stream onto the release-name vocabulary
// (720p, 1080p, 1440p, 2160p). Empty when no video stream reports a height.
func (r Result) Resolution() string {
	video, ok := r.primaryVideo()
	if !ok {
		return ""
	}
	// Scope and cropped encodes report short heights, so widths break ties.
	switch {
	case video.Height >= 2000 || video.Width >= 3800:
		return "2160p"
	case video.Height >= 1400 || video.Width >= 2500:
		return "1440p"
	case video.Height >= 1000 || video.Width >= 1900:
		return "1080p"
	case video.Height >= 700 || video.Width >= 1200:
		return "720p"
	default:
		return strconv.Itoa(video.Height) + "p"
	}
}

// VideoCodec returns the codec of the first video stream.
func (r Result) VideoCodec() string {
	video, ok := r.primaryVideo()
	if !ok {
		return ""
	}
	return video.CodecName
}

// Apply fills the blank technical fields of d from the probe result.
func (r Result) Apply(d media.Descriptor) media.Descriptor {
	if d.DurationSeconds == 0 {
		d.DurationSeconds = r.DurationSeconds()
	}
	if d.FileSize == 0 {
		d.FileSize = r.SizeBytes()
	}
	if d.Resolution == "" {
		d.Resolution = r.Resolution()
	}
	if d.VideoCodec == "" {
		d.VideoCodec = r.VideoCodec()
	}
	return d
}

// Enrich probes d.FilePath and returns d with blank technical fields filled.
func Enrich(ctx context.Context, binary string, d media.Descriptor) (media.Descriptor, error) {
	if strings.TrimSpace(d.FilePath) == "" {
		return d, errors.New("ffprobe enrich: descriptor has no file path")
	}
	result, err := Inspect(ctx, binary, d.FilePath)
	if err != nil {
		return d, err
	}
	return result.Apply(d), nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
