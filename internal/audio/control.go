package audio

import (
	"sync"
	"time"
)

const (
	fadeInSteps  = 20
	fadeOutSteps = 15

	// DefaultFadeIn and DefaultFadeOut are the lobby's fade durations.
	DefaultFadeIn  = 2 * time.Second
	DefaultFadeOut = 1500 * time.Millisecond
)

// Player is what a Control drives. *Track implements it.
type Player interface {
	SetVolume(v float64)
	Volume() float64
	Pause()
	Rewind()
}

// Control owns the volume of a player and its fades. Only one fade runs at a
// time; a fade requested while another is running is ignored. Volume changes
// made during a fade are recorded and applied when a fade in ends.
type Control struct {
	p Player

	mu      sync.Mutex
	target  float64
	dirty   bool
	fading  bool
	stop    chan struct{}
	done    chan struct{}
	stepDur time.Duration
}

// NewControl wraps p starting at volume.
func NewControl(p Player, volume float64) *Control {
	c := &Control{p: p, target: clampVolume(volume)}
	p.SetVolume(c.target)
	return c
}

// SetVolume records the desired volume and applies it unless a fade is
// running.
func (c *Control) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = clampVolume(v)
	if c.fading {
		c.dirty = true
		return
	}
	c.p.SetVolume(c.target)
}

// Volume returns the desired volume.
func (c *Control) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Fading reports whether a fade is in progress.
func (c *Control) Fading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fading
}

// FadeIn ramps the volume from zero to target over d in 20 steps. It reports
// whether the fade started.
func (c *Control) FadeIn(target float64, d time.Duration) bool {
	target = clampVolume(target)
	return c.run(fadeInSteps, d, func(step int) {
		c.p.SetVolume(min(target*float64(step)/fadeInSteps, target))
	}, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dirty {
			c.p.SetVolume(c.target)
			return
		}
		c.target = target
	})
}

// FadeOut ramps the current volume to zero over d in 15 steps, then pauses
// and rewinds. It reports whether the fade started.
func (c *Control) FadeOut(d time.Duration) bool {
	from := c.p.Volume()
	return c.run(fadeOutSteps, d, func(step int) {
		c.p.SetVolume(max(from-from*float64(step)/fadeOutSteps, 0))
	}, func() {
		c.p.Pause()
		c.p.Rewind()
	})
}

func (c *Control) run(steps int, d time.Duration, apply func(step int), finish func()) bool {
	c.mu.Lock()
	if c.fading {
		c.mu.Unlock()
		return false
	}
	if d <= 0 {
		d = time.Millisecond * time.Duration(steps)
	}
	c.fading = true
	c.dirty = false
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.stepDur = d / time.Duration(steps)
	stop, done, interval := c.stop, c.done, c.stepDur
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for step := 1; step <= steps; step++ {
			select {
			case <-stop:
				c.endFade()
				return
			case <-ticker.C:
			}
			apply(step)
		}
		finish()
		c.endFade()
	}()
	return true
}

func (c *Control) endFade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fading = false
}

// Wait blocks until the running fade, if any, has finished.
func (c *Control) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels any running fade.
func (c *Control) Close() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
