package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// CaptureConfig selects the live input device.
type CaptureConfig struct {
	DeviceName string
	BufferSize int
	Channels   int
}

const defaultBufferSize = TapSize

var (
	paMu    sync.Mutex
	paUsers int
)

func acquirePortAudio() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paUsers == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("init portaudio: %w", err)
		}
	}
	paUsers++
	return nil
}

func releasePortAudio() {
	paMu.Lock()
	defer paMu.Unlock()
	if paUsers == 0 {
		return
	}
	paUsers--
	if paUsers == 0 {
		_ = portaudio.Terminate()
	}
}

// Capture is a live input (loopback monitor or microphone) usable as an
// analyzer source. The stream is opened on Connect and closed on Disconnect.
type Capture struct {
	cfg CaptureConfig

	mu         sync.RWMutex
	stream     *portaudio.Stream
	device     *portaudio.DeviceInfo
	sampleRate float64
	buffer     []float32
	index      int
}

// NewCapture prepares a capture source. No device is touched until Connect.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Capture{
		cfg:        cfg,
		sampleRate: OutputRate,
		buffer:     make([]float32, cfg.BufferSize),
	}
}

// Connect opens and starts the input stream.
func (c *Capture) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	if err := acquirePortAudio(); err != nil {
		return err
	}
	device, err := findDevice(c.cfg.DeviceName)
	if err != nil {
		releasePortAudio()
		return err
	}

	framesPerBuffer := len(c.buffer) / c.cfg.Channels
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: c.cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, c.process)
	if err != nil {
		releasePortAudio()
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		releasePortAudio()
		return fmt.Errorf("start stream: %w", err)
	}

	c.stream = stream
	c.device = device
	c.sampleRate = device.DefaultSampleRate
	for i := range c.buffer {
		c.buffer[i] = 0
	}
	c.index = 0
	return nil
}

// Disconnect stops and closes the stream.
func (c *Capture) Disconnect() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	defer releasePortAudio()

	if err := stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		_ = stream.Close()
		return fmt.Errorf("stop stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Playing reports whether the input stream is running.
func (c *Capture) Playing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream != nil
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleRate
}

// DeviceName returns the name of the connected device, if any.
func (c *Capture) DeviceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.device == nil {
		return ""
	}
	return c.device.Name
}

// Samples returns the most recent n samples, oldest first.
func (c *Capture) Samples(n int) []float32 {
	out := make([]float32, n)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.buffer) {
		n = len(c.buffer)
	}
	start := c.index - n
	if start < 0 {
		start += len(c.buffer)
	}
	dst := out[len(out)-n:]
	for i := range dst {
		dst[i] = c.buffer[(start+i)%len(c.buffer)]
	}
	return out
}

func (c *Capture) process(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := c.cfg.Channels
	if channels > 1 {
		mono := make([]float32, len(in)/channels)
		for i := range mono {
			sum := float32(0)
			base := i * channels
			for ch := 0; ch < channels; ch++ {
				sum += in[base+ch]
			}
			mono[i] = sum / float32(channels)
		}
		c.mixIntoBuffer(mono)
		return
	}

	c.mixIntoBuffer(in)
}

func (c *Capture) mixIntoBuffer(in []float32) {
	if len(in) == 0 {
		return
	}

	if len(in) >= len(c.buffer) {
		copy(c.buffer, in[len(in)-len(c.buffer):])
		c.index = 0
		return
	}

	if c.index+len(in) <= len(c.buffer) {
		copy(c.buffer[c.index:], in)
		c.index += len(in)
		if c.index == len(c.buffer) {
			c.index = 0
		}
		return
	}

	remaining := len(c.buffer) - c.index
	copy(c.buffer[c.index:], in[:remaining])
	copy(c.buffer, in[remaining:])
	c.index = len(in) - remaining
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}
