package analyzer

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeSource struct {
	connectErr  error
	connects    int
	disconnects int
	samples     []float32
	playing     bool
}

func (f *fakeSource) Connect() error {
	f.connects++
	return f.connectErr
}

func (f *fakeSource) Disconnect() error {
	f.disconnects++
	return nil
}

func (f *fakeSource) Samples(n int) []float32 {
	if len(f.samples) >= n {
		return f.samples[len(f.samples)-n:]
	}
	return f.samples
}

func (f *fakeSource) SampleRate() float64 { return 44_100 }
func (f *fakeSource) Playing() bool       { return f.playing }

func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/44_100))
	}
	return out
}

func noise(n int, amp float64) []float32 {
	out := make([]float32, n)
	seed := uint32(2463534242)
	for i := range out {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		out[i] = float32(amp * (float64(seed)/float64(math.MaxUint32)*2 - 1))
	}
	return out
}

func TestAverage(t *testing.T) {
	vals := []float64{0.2, 0.4, 0.6, 0.8}
	want := 0.5
	if got := average(vals); math.Abs(got-want) > 1e-6 {
		t.Fatalf("average=%f want=%f", got, want)
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{
		0:   1,
		1:   1,
		2:   2,
		3:   4,
		5:   8,
		16:  16,
		31:  32,
		257: 512,
	}
	for input, want := range cases {
		if got := nextPow2(input); got != want {
			t.Fatalf("nextPow2(%d)=%d want=%d", input, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(2, 0, 1) != 1 {
		t.Fatalf("expected clamp high to be 1")
	}
	if clamp(-1, 0, 1) != 0 {
		t.Fatalf("expected clamp low to be 0")
	}
	if clamp(0.5, 0, 1) != 0.5 {
		t.Fatalf("expected clamp middle to be unchanged")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	src := &fakeSource{samples: sine(256, 440, 0.5), playing: true}
	a := New(Config{}, src)
	for i := 0; i < 3; i++ {
		if err := a.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if src.connects != 1 {
		t.Fatalf("expected one connect, got %d", src.connects)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if src.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", src.disconnects)
	}
}

func TestStartWithoutSource(t *testing.T) {
	a := New(Config{}, nil)
	if err := a.Start(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestConnectFailurePublishesFallback(t *testing.T) {
	src := &fakeSource{connectErr: errors.New("autoplay blocked")}
	a := New(Config{}, src)
	if err := a.Start(); err != nil {
		t.Fatalf("start should not fail on connect error: %v", err)
	}
	snap := a.Snapshot()
	if !snap.Fallback {
		t.Fatalf("expected fallback snapshot")
	}
	if snap.Volume != DefaultConfig().FallbackVolume {
		t.Fatalf("fallback volume=%f", snap.Volume)
	}
	if len(snap.Bins) != a.BinCount() {
		t.Fatalf("fallback bins=%d want %d", len(snap.Bins), a.BinCount())
	}
	if a.Tick(time.Now()) {
		t.Fatalf("disconnected analyzer must not publish")
	}

	src.connectErr = nil
	if !a.Retry() {
		t.Fatalf("retry should connect")
	}
}

func TestBinCountIsPowerOfTwoAndStable(t *testing.T) {
	src := &fakeSource{samples: sine(512, 220, 0.8), playing: true}
	a := New(Config{FFTSize: 200}, src)
	if a.BinCount() != 128 {
		t.Fatalf("bin count=%d want 128", a.BinCount())
	}
	_ = a.Start()
	now := time.Now()
	for i := 0; i < 5; i++ {
		now = now.Add(50 * time.Millisecond)
		a.Tick(now)
		if got := len(a.Snapshot().Bins); got != 128 {
			t.Fatalf("tick %d bins=%d", i, got)
		}
	}
}

func TestTickThrottlesToMaxRate(t *testing.T) {
	src := &fakeSource{samples: sine(256, 440, 0.9), playing: true}
	a := New(Config{}, src)
	_ = a.Start()

	start := time.Now()
	if !a.Tick(start) {
		t.Fatalf("first tick should publish")
	}
	src.samples = noise(256, 0.5)
	if a.Tick(start.Add(5 * time.Millisecond)) {
		t.Fatalf("tick inside the rate window must be skipped")
	}
	if !a.Tick(start.Add(40 * time.Millisecond)) {
		t.Fatalf("tick after the rate window should publish a changed volume")
	}
}

func TestTickSuppressesTinyChanges(t *testing.T) {
	src := &fakeSource{samples: sine(256, 440, 0.5), playing: true}
	a := New(Config{Smoothing: 0.01}, src)
	_ = a.Start()

	now := time.Now()
	a.Tick(now)
	first := a.Snapshot()
	now = now.Add(100 * time.Millisecond)
	if a.Tick(now) {
		second := a.Snapshot()
		if math.Abs(second.Volume-first.Volume) <= 0.01 {
			t.Fatalf("published a change below epsilon: %f -> %f", first.Volume, second.Volume)
		}
	}
}

func TestSilenceYieldsZeroBins(t *testing.T) {
	src := &fakeSource{samples: make([]float32, 256), playing: true}
	a := New(Config{}, src)
	_ = a.Start()
	a.Tick(time.Now())
	for i, b := range a.Snapshot().Bins {
		if b != 0 {
			t.Fatalf("bin %d=%d on silence", i, b)
		}
	}
}
