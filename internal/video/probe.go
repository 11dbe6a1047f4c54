package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable reports that the background video cannot be decoded.
var ErrUnavailable = errors.New("video unavailable")

// Probe holds stream metadata from ffprobe.
type Probe struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
}

type ffprobeResult struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeMedia asks ffprobe for the first video stream of url. A file or URL
// without a video stream is reported as ErrUnavailable.
func ProbeMedia(ctx context.Context, url string) (Probe, error) {
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe not found: %w", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-select_streams", "v:0",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe %s: %w", url, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (Probe, error) {
	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Probe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	secs, _ := strconv.ParseFloat(result.Format.Duration, 64)
	dur := time.Duration(secs * float64(time.Second))

	for _, s := range result.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps := parseFraction(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseFraction(s.RFrameRate)
		}
		if fps <= 0 {
			fps = 24
		}
		return Probe{Width: s.Width, Height: s.Height, FPS: fps, Duration: dur}, nil
	}
	return Probe{}, fmt.Errorf("no video stream: %w", ErrUnavailable)
}

// parseFraction parses "num/den" or a plain number.
func parseFraction(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
