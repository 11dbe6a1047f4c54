package app

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const fakeSampleRate = 44100

// fakeSource is a synthetic analyzer source: three drifting tones plus a
// little noise, used when no audio device is wanted.
type fakeSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	start     time.Time
	now       func() time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

func (f *fakeSource) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.start = f.now()
	return nil
}

func (f *fakeSource) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSource) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSource) SampleRate() float64 { return fakeSampleRate }

// Samples renders the n samples ending at the current instant. Tone levels
// swing slowly so the band energies rise and fall like music.
func (f *fakeSource) Samples(n int) []float32 {
	out := make([]float32, n)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || n <= 0 {
		return out
	}

	t := f.now().Sub(f.start).Seconds()
	bass := 0.5 + 0.5*math.Sin(t*0.7)
	mid := 0.4 + 0.4*math.Sin(t*1.2+0.5)
	treble := 0.3 + 0.3*math.Sin(t*2.1+1.0)
	// a kick every half second
	if math.Mod(t, 0.5) < 0.08 {
		bass = 1
	}

	dt := 1.0 / fakeSampleRate
	for i := range out {
		ts := t - float64(n-i)*dt
		v := bass*math.Sin(2*math.Pi*60*ts) +
			mid*0.6*math.Sin(2*math.Pi*1200*ts) +
			treble*0.4*math.Sin(2*math.Pi*9000*ts) +
			(f.rng.Float64()-0.5)*0.05
		out[i] = float32(clamp(v/2, -1, 1))
	}
	return out
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
