package render

import (
	"math/rand"
	"testing"
	"time"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/particles"
)

func TestParticleThemes(t *testing.T) {
	cases := map[string]int{
		"wave-beach":          50,
		"funky-chaos":         80,
		"funky-glitch":        60,
		"groovie-psychedelic": 100,
		"metal-destruction":   120,
		"unknown":             30,
	}
	for id, want := range cases {
		if got := ParticleThemeFor(id).Cap; got != want {
			t.Fatalf("%s cap=%d want %d", id, got, want)
		}
	}
	if kinds := ParticleThemeFor("metal-destruction").Kinds; kinds[0] != particles.Explosion || kinds[1] != particles.Spark {
		t.Fatalf("unexpected metal kinds %v", kinds)
	}
}

func TestSpawnCountFollowsVolume(t *testing.T) {
	r := NewParticleRenderer(100, 500, rand.New(rand.NewSource(1)))
	c := NewCanvas(160, 90)
	got := r.Render(c, analyzer.BandEnergy{Volume: 0.5}, "groovie-psychedelic", 0.8, time.Now())
	if got != 40 {
		t.Fatalf("spawned %d want 40", got)
	}
	if r.Stats().Active != 40 {
		t.Fatalf("active=%d want 40", r.Stats().Active)
	}
}

func TestSilentVolumeSpawnsNothing(t *testing.T) {
	r := NewParticleRenderer(10, 50, rand.New(rand.NewSource(1)))
	c := NewCanvas(32, 18)
	if got := r.Render(c, analyzer.BandEnergy{}, "wave-beach", 1, time.Now()); got != 0 {
		t.Fatalf("spawned %d on silence", got)
	}
}

func TestLowFPSSkipsSpawning(t *testing.T) {
	r := NewParticleRenderer(100, 500, rand.New(rand.NewSource(3)))
	c := NewCanvas(64, 36)
	be := analyzer.BandEnergy{Volume: 1}
	now := time.Now()
	for i := 0; i < 12; i++ {
		now = now.Add(100 * time.Millisecond)
		r.Render(c, be, "default", 1, now)
	}
	if r.Skipped() == 0 {
		t.Fatalf("expected spawning to be shed at 10 fps")
	}
	before := r.Stats().Active
	now = now.Add(100 * time.Millisecond)
	if got := r.Render(c, be, "default", 1, now); got != 0 {
		t.Fatalf("spawned %d while under the fps floor", got)
	}
	if r.Stats().Active > before {
		t.Fatalf("active particles grew while shedding")
	}

	fast := NewParticleRenderer(100, 500, rand.New(rand.NewSource(3)))
	now = time.Now()
	spawned := 0
	for i := 0; i < 12; i++ {
		now = now.Add(16 * time.Millisecond)
		spawned += fast.Render(c, be, "default", 1, now)
	}
	if spawned == 0 || fast.Skipped() != 0 {
		t.Fatalf("60 fps should keep spawning: spawned=%d skipped=%d", spawned, fast.Skipped())
	}
}

func TestCloseClearsPool(t *testing.T) {
	r := NewParticleRenderer(10, 100, rand.New(rand.NewSource(1)))
	c := NewCanvas(32, 18)
	r.Render(c, analyzer.BandEnergy{Volume: 1}, "metal-destruction", 1, time.Now())
	r.Close()
	if r.Stats().Active != 0 {
		t.Fatalf("close should return every particle")
	}
}
