package video

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DecodeFPS is the rate frames are decoded at.
const DecodeFPS = 15

// Session decodes a looping background video into rgb24 frames sized for the
// composer canvas.
type Session struct {
	url   string
	probe Probe

	mu     sync.Mutex
	width  int
	height int
	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc
	closed bool

	frame     []byte
	frameIdx  int64
	loopStart int64
	loops     int
}

// Open probes url and starts decoding at width x height.
func Open(ctx context.Context, url string, width, height int) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", width, height)
	}
	probe, err := ProbeMedia(ctx, url)
	if err != nil {
		return nil, err
	}
	s := &Session{
		url:      url,
		probe:    probe,
		width:    width,
		height:   height,
		frame:    make([]byte, width*height*3),
		frameIdx: -1,
	}
	if err := s.startDecode(0); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeArgs(url string, from time.Duration, width, height int) []string {
	args := []string{"-v", "quiet"}
	if from > 0 {
		args = append(args, "-ss", formatDuration(from))
	}
	return append(args,
		"-i", url,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-vf", fmt.Sprintf("scale=%d:%d,fps=%d", width, height, DecodeFPS),
		"-an",
		"pipe:1",
	)
}

func (s *Session) startDecode(from time.Duration) error {
	s.stopDecode()

	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", ErrUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpeg, decodeArgs(s.url, from, s.width, s.height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	return nil
}

func (s *Session) stopDecode() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cmd != nil {
		_ = s.cmd.Wait()
		s.cmd = nil
	}
	s.stdout = nil
}

func (s *Session) readNextFrame() bool {
	if s.stdout == nil {
		return false
	}
	if _, err := io.ReadFull(s.stdout, s.frame); err != nil {
		return false
	}
	s.frameIdx++
	return true
}

// FrameAt returns the rgb24 frame for elapsed playback time along with its
// size. The decoder is restarted at EOF so the video loops. ok is false until
// the first frame has been decoded or when the stream cannot be read.
func (s *Session) FrameAt(elapsed time.Duration) (frame []byte, width, height int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	target := int64(elapsed.Seconds() * DecodeFPS)

	for s.frameIdx < target {
		if s.readNextFrame() {
			continue
		}
		// A stream that ended without ever producing a frame cannot loop.
		if s.frameIdx < s.loopStart {
			break
		}
		s.loops++
		s.loopStart = s.frameIdx + 1
		if err := s.startDecode(0); err != nil {
			break
		}
		if !s.readNextFrame() {
			break
		}
	}

	if s.frameIdx < 0 {
		return nil, 0, 0, false
	}
	return s.frame, s.width, s.height, true
}

// Loops returns how many times the video restarted from the beginning.
func (s *Session) Loops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loops
}

// Resize restarts decoding at the new size, resuming at elapsed.
func (s *Session) Resize(width, height int, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session closed")
	}
	if width <= 0 || height <= 0 || (width == s.width && height == s.height) {
		return nil
	}
	s.width = width
	s.height = height
	s.frame = make([]byte, width*height*3)

	from := elapsed
	if d := s.probe.Duration; d > 0 {
		from = elapsed % d
	}
	if err := s.startDecode(from); err != nil {
		return err
	}
	s.frameIdx = int64(elapsed.Seconds()*DecodeFPS) - 1
	s.loopStart = s.frameIdx + 1 - int64(from.Seconds()*DecodeFPS)
	return nil
}

// Probe returns the probed stream metadata.
func (s *Session) Probe() Probe { return s.probe }

// Close stops the decoder.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.stopDecode()
	return nil
}

// formatDuration formats d for ffmpeg -ss (HH:MM:SS.mmm).
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := d.Seconds()
	h := int(total) / 3600
	m := (int(total) % 3600) / 60
	sec := total - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, sec)
}
