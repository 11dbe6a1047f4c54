package analyzer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// ErrNoSource is returned by Start when the analyzer was built without a source.
var ErrNoSource = errors.New("analyzer: no audio source")

// Source is a live audio signal that can be attached to the analysis graph.
type Source interface {
	Connect() error
	Disconnect() error
	Samples(n int) []float32
	SampleRate() float64
	Playing() bool
}

// Config controls Analyzer behavior.
type Config struct {
	FFTSize        int
	MaxRate        float64
	Epsilon        float64
	Smoothing      float64
	MinDecibels    float64
	MaxDecibels    float64
	FallbackVolume float64
}

// DefaultConfig mirrors the browser analyser node the lobby page was tuned against.
func DefaultConfig() Config {
	return Config{
		FFTSize:        256,
		MaxRate:        30,
		Epsilon:        0.01,
		Smoothing:      0.3,
		MinDecibels:    -100,
		MaxDecibels:    -30,
		FallbackVolume: 0.2,
	}
}

// Analyzer turns a playing source into throttled frequency snapshots.
type Analyzer struct {
	cfg Config
	src Source

	started   bool
	connected bool
	interval  time.Duration
	lastTick  time.Time

	snapshot Snapshot

	window   []float64
	input    []float64
	smoothed []float64
	scratch  []uint8
}

// New creates an Analyzer for src. Zero config fields take their defaults.
func New(cfg Config, src Source) *Analyzer {
	def := DefaultConfig()
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = def.FFTSize
	}
	cfg.FFTSize = nextPow2(cfg.FFTSize)
	if cfg.FFTSize < 32 {
		cfg.FFTSize = 32
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = def.MaxRate
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		cfg.MinDecibels = def.MinDecibels
		cfg.MaxDecibels = def.MaxDecibels
	}
	if cfg.FallbackVolume <= 0 {
		cfg.FallbackVolume = def.FallbackVolume
	}

	bins := cfg.FFTSize / 2
	a := &Analyzer{
		cfg:      cfg,
		src:      src,
		interval: time.Duration(float64(time.Second) / cfg.MaxRate),
		window:   make([]float64, cfg.FFTSize),
		input:    make([]float64, cfg.FFTSize),
		smoothed: make([]float64, bins),
		scratch:  make([]uint8, bins),
	}
	size := float64(cfg.FFTSize)
	for i := range a.window {
		a.window[i] = blackman(float64(i), size)
	}
	a.snapshot = Snapshot{Bins: make([]uint8, bins)}
	return a
}

// BinCount returns the fixed number of frequency bins per snapshot.
func (a *Analyzer) BinCount() int { return a.cfg.FFTSize / 2 }

// Start attaches the source. A failed connection is not an error: the analyzer
// publishes a fallback snapshot instead so renderers keep animating.
func (a *Analyzer) Start() error {
	if a.src == nil {
		return ErrNoSource
	}
	if a.started {
		return nil
	}
	a.started = true
	a.connect()
	return nil
}

// Retry reattempts a connection that failed on Start.
func (a *Analyzer) Retry() bool {
	if !a.started || a.connected {
		return a.connected
	}
	a.connect()
	return a.connected
}

func (a *Analyzer) connect() {
	if err := a.src.Connect(); err != nil {
		a.connected = false
		a.publish(Snapshot{
			Bins:     make([]uint8, a.BinCount()),
			Volume:   a.cfg.FallbackVolume,
			Fallback: true,
		})
		return
	}
	a.connected = true
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}

// Stop detaches the source and releases the analysis graph.
func (a *Analyzer) Stop() error {
	if !a.started {
		return nil
	}
	a.started = false
	wasConnected := a.connected
	a.connected = false
	a.lastTick = time.Time{}
	a.publish(Snapshot{Bins: make([]uint8, a.BinCount())})
	if !wasConnected {
		return nil
	}
	if err := a.src.Disconnect(); err != nil {
		return fmt.Errorf("disconnect source: %w", err)
	}
	return nil
}

// Connected reports whether live data is flowing.
func (a *Analyzer) Connected() bool { return a.connected }

// Snapshot returns the most recently published snapshot.
func (a *Analyzer) Snapshot() Snapshot { return a.snapshot }

// Tick runs one analysis step if the rate limit allows it. It reports whether
// a new snapshot was published.
func (a *Analyzer) Tick(now time.Time) bool {
	if !a.started || !a.connected {
		return false
	}
	if !a.lastTick.IsZero() && now.Sub(a.lastTick) < a.interval {
		return false
	}
	a.lastTick = now

	a.analyze(a.src.Samples(a.cfg.FFTSize), a.scratch)
	volume := meanVolume(a.scratch)
	playing := a.src.Playing()

	prev := a.snapshot
	if !prev.Fallback && prev.IsPlaying == playing && math.Abs(prev.Volume-volume) <= a.cfg.Epsilon {
		return false
	}

	a.publish(NewSnapshot(a.scratch, playing))
	return true
}

func (a *Analyzer) publish(s Snapshot) {
	a.snapshot = s
}

// analyze fills out with byte magnitudes the same way a browser analyser does:
// blackman window, FFT, time smoothing, then decibel scaling into 0..255.
func (a *Analyzer) analyze(samples []float32, out []uint8) {
	size := a.cfg.FFTSize
	offset := len(samples) - size
	for i := 0; i < size; i++ {
		j := offset + i
		if j < 0 || j >= len(samples) {
			a.input[i] = 0
			continue
		}
		a.input[i] = float64(samples[j]) * a.window[i]
	}

	spectrum := fft.FFTReal(a.input)

	tau := a.cfg.Smoothing
	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	sizeF := float64(size)
	for k := range out {
		mag := cmag(spectrum[k]) / sizeF
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		db := -math.MaxFloat64
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		scaled := 255 * (db - a.cfg.MinDecibels) / span
		out[k] = uint8(clamp(math.Floor(scaled), 0, 255))
	}
}

func meanVolume(bins []uint8) float64 {
	if len(bins) == 0 {
		return 0
	}
	sum := 0
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

func blackman(i, size float64) float64 {
	const alpha = 0.16
	a0 := 0.5 * (1 - alpha)
	a1 := 0.5
	a2 := 0.5 * alpha
	x := 2 * math.Pi * i / size
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
