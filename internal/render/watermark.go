package render

import (
	"image"
	"math"

	"github.com/charmbracelet/harmonica"
)

// Transient detection and ripple animation constants.
const (
	transientDelta  = 0.05
	transientFloor  = 0.08
	strongHit       = 0.4
	rippleDecay     = 0.985
	rippleAlphaMin  = 0.02
	logoScaleGain   = 0.15
	logoScaleMax    = 1.15
	logoBaseSize    = 96
	logoMargin      = 32
	rippleReach     = 2.5
	rippleBaseSpeed = 1.5
)

// Ripple is an expanding ring emitted by the watermark on a bass hit.
type Ripple struct {
	X, Y      float64
	Radius    float64
	MaxRadius float64
	Alpha     float64
	Speed     float64
}

// Watermark is the reactive logo in the bottom-right corner.
type Watermark struct {
	logo     image.Image
	spring   harmonica.Spring
	scale    float64
	velocity float64
	prevBass float64
	ripples  []Ripple

	x, y float64
	size float64
	unit float64
}

// NewWatermark creates a watermark for logo. A nil logo draws a badge.
func NewWatermark(logo image.Image, fps int) *Watermark {
	if fps <= 0 {
		fps = 30
	}
	return &Watermark{
		logo:   logo,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0),
		scale:  1,
		size:   logoBaseSize,
		unit:   1,
	}
}

// Layout anchors the logo to the bottom-right of a width x height surface.
func (w *Watermark) Layout(width, height int) {
	u := math.Max(0.05, float64(min(width, height))/1080)
	w.unit = u
	w.size = math.Max(6, logoBaseSize*u)
	margin := logoMargin * u
	w.x = float64(width) - margin - w.size/2
	w.y = float64(height) - margin - w.size/2
}

// Update consumes one bass reading, animates ripples and returns how many new
// ripples were spawned.
func (w *Watermark) Update(bass float64) int {
	spawned := 0
	if bass > w.prevBass+transientDelta && bass > transientFloor {
		spawned = 1
		if bass > strongHit {
			spawned = 2
		}
		for i := 0; i < spawned; i++ {
			speed := (rippleBaseSpeed + bass*2) * w.unit
			if i == 1 {
				speed *= 0.6
			}
			w.ripples = append(w.ripples, Ripple{
				X:         w.x,
				Y:         w.y,
				Radius:    w.size / 2,
				MaxRadius: w.size * rippleReach,
				Alpha:     math.Min(0.9, 0.4+bass*0.6),
				Speed:     math.Max(0.1, speed),
			})
		}
	}
	w.prevBass = bass

	kept := w.ripples[:0]
	for _, r := range w.ripples {
		r.Radius += r.Speed
		r.Alpha *= rippleDecay
		if r.Alpha < rippleAlphaMin || r.Radius >= r.MaxRadius {
			continue
		}
		kept = append(kept, r)
	}
	w.ripples = kept

	target := clampFloat(1+bass*logoScaleGain, 1, logoScaleMax)
	w.scale, w.velocity = w.spring.Update(w.scale, w.velocity, target)
	w.scale = clampFloat(w.scale, 1, logoScaleMax)
	return spawned
}

// Ripples returns the live ripples.
func (w *Watermark) Ripples() []Ripple { return w.ripples }

// Scale returns the current smoothed logo scale.
func (w *Watermark) Scale() float64 { return w.scale }

// Draw paints the panel, the scaled logo and every ripple.
func (w *Watermark) Draw(c *Canvas) {
	prev := c.SetMode(SourceOver)
	defer c.SetMode(prev)

	for _, r := range w.ripples {
		c.StrokeCircle(r.X, r.Y, r.Radius, math.Max(1, 2*w.unit), whiteRGB, r.Alpha)
	}

	pad := w.size * 0.25
	half := w.size/2 + pad
	x0, y0, x1, y1 := c.bounds(w.x-half, w.y-half, w.x+half, w.y+half)
	for y := y0; y <= y1; y++ {
		t := 0.0
		if y1 > y0 {
			t = float64(y-y0) / float64(y1-y0)
		}
		a := lerp(0.5, 0.3, t)
		for x := x0; x <= x1; x++ {
			c.Blend(x, y, RGB{}, a)
		}
	}

	s := w.size * w.scale
	if w.logo != nil {
		c.DrawImage(w.logo, int(w.x-s/2), int(w.y-s/2), int(s), int(s), 0.95)
		return
	}
	c.FillCircle(w.x, w.y, s/2, whiteRGB, 0.9)
	c.FillCircle(w.x, w.y, s/3, RGB{R: 0.1, G: 0.1, B: 0.12}, 0.95)
	c.StrokeCircle(w.x, w.y, s/4, math.Max(1, s/12), whiteRGB, 0.95)
}
