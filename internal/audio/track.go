package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bogem/id3v2/v2"
	"github.com/ebitengine/oto/v3"
)

const (
	// OutputRate is the sample rate of the shared playback context.
	OutputRate = 44100
	// TapSize is how many mono samples the analyzer tap keeps.
	TapSize = 4096

	maxTrackBytes = 256 << 20
)

// ErrClosed is returned when a closed track is used.
var ErrClosed = errors.New("audio: track closed")

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   OutputRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// Track is a decoded music loop. It plays through oto and keeps a tap of the
// most recent samples so it can serve as an analyzer source.
type Track struct {
	url    string
	title  string
	format Format

	// mu guards playback state. It is never held while oto reads.
	mu        sync.Mutex
	player    *oto.Player
	volume    float64
	playing   bool
	connected bool
	closed    bool

	// bufMu guards the sample cursor and the tap, touched by oto's reader.
	bufMu  sync.Mutex
	pcm    []int16
	frame  int
	loops  int
	tap    []float32
	tapIdx int
}

// OpenTrack loads url (a local path or an HTTP(S) URL) and decodes it fully.
func OpenTrack(ctx context.Context, url string, client *http.Client) (*Track, error) {
	data, err := load(ctx, url, client)
	if err != nil {
		return nil, err
	}
	return NewTrack(url, data)
}

// NewTrack decodes an in-memory file. name is used for format detection and
// as the fallback title.
func NewTrack(name string, data []byte) (*Track, error) {
	format := DetectFormat(name, data)
	pcm, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	pcm = Resample(pcm, OutputRate)
	if pcm.Frames() == 0 {
		return nil, fmt.Errorf("decode %s: no audio frames", name)
	}
	return &Track{
		url:    name,
		title:  readTitle(name, data, format),
		format: format,
		pcm:    pcm.Samples,
		volume: 1,
		tap:    make([]float32, TapSize),
	}, nil
}

func load(ctx context.Context, url string, client *http.Client) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		data, err := os.ReadFile(url)
		if err != nil {
			return nil, fmt.Errorf("read track: %w", err)
		}
		return data, nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build track request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch track: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch track: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes))
	if err != nil {
		return nil, fmt.Errorf("read track body: %w", err)
	}
	return data, nil
}

// readTitle reads the ID3 title, falling back to the file name.
func readTitle(name string, data []byte, format Format) string {
	if format == FormatMP3 {
		tag, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
		if err == nil {
			title := strings.TrimSpace(tag.Title())
			if artist := strings.TrimSpace(tag.Artist()); artist != "" && title != "" {
				title = artist + " - " + title
			}
			if title != "" {
				return title
			}
		}
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Title returns the display title.
func (t *Track) Title() string { return t.title }

// Format returns the detected container.
func (t *Track) Format() Format { return t.format }

// Play starts or resumes looping playback. It fails when no audio device is
// available; the caller may retry later.
func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.player == nil {
		ctx, err := initOto()
		if err != nil {
			return fmt.Errorf("audio output: %w", err)
		}
		t.player = ctx.NewPlayer(&loopReader{t: t})
		t.player.SetVolume(t.volume)
	}
	t.player.Play()
	t.playing = true
	return nil
}

// Pause stops playback and keeps the position.
func (t *Track) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player != nil {
		t.player.Pause()
	}
	t.playing = false
}

// Rewind moves the cursor back to the start. A paused track stays paused.
func (t *Track) Rewind() {
	t.bufMu.Lock()
	t.frame = 0
	t.bufMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player == nil || t.closed {
		return
	}
	// A fresh player drops whatever oto had already buffered.
	t.player.Pause()
	ctx, err := initOto()
	if err != nil {
		return
	}
	t.player = ctx.NewPlayer(&loopReader{t: t})
	t.player.SetVolume(t.volume)
	if t.playing {
		t.player.Play()
	}
}

// SetVolume sets the output gain, clamped to [0,1].
func (t *Track) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = v
	if t.player != nil {
		t.player.SetVolume(v)
	}
}

// Volume returns the output gain.
func (t *Track) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// Loops returns how many times playback wrapped around.
func (t *Track) Loops() int {
	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	return t.loops
}

// Connect attaches the analyzer tap.
func (t *Track) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.connected = true
	return nil
}

// Disconnect detaches the analyzer tap.
func (t *Track) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// Playing reports whether audio is currently being played.
func (t *Track) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing && !t.closed
}

// SampleRate returns the tap sample rate.
func (t *Track) SampleRate() float64 { return OutputRate }

// Samples returns the last n tapped mono samples, oldest first.
func (t *Track) Samples(n int) []float32 {
	out := make([]float32, n)
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected || n <= 0 {
		return out
	}

	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	if n > len(t.tap) {
		n = len(t.tap)
	}
	start := t.tapIdx - n
	if start < 0 {
		start += len(t.tap)
	}
	dst := out[len(out)-n:]
	for i := range dst {
		dst[i] = t.tap[(start+i)%len(t.tap)]
	}
	return out
}

// Close stops playback. It is safe to call more than once.
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false
	t.playing = false
	if t.player != nil {
		t.player.Pause()
		t.player = nil
	}
	return nil
}

// fill writes interleaved little-endian stereo frames into p, wrapping at the
// end of the track, and records the mono mix in the tap.
func (t *Track) fill(p []byte) int {
	t.bufMu.Lock()
	defer t.bufMu.Unlock()

	frames := len(p) / 4
	total := len(t.pcm) / 2
	if total == 0 {
		return 0
	}
	for i := 0; i < frames; i++ {
		l := t.pcm[t.frame*2]
		r := t.pcm[t.frame*2+1]
		p[i*4] = byte(l)
		p[i*4+1] = byte(uint16(l) >> 8)
		p[i*4+2] = byte(r)
		p[i*4+3] = byte(uint16(r) >> 8)

		t.tap[t.tapIdx] = (float32(l) + float32(r)) / 65536
		t.tapIdx = (t.tapIdx + 1) % len(t.tap)

		t.frame++
		if t.frame >= total {
			t.frame = 0
			t.loops++
		}
	}
	return frames * 4
}

type loopReader struct {
	t *Track
}

func (r *loopReader) Read(p []byte) (int, error) {
	return r.t.fill(p), nil
}
