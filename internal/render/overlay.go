package render

import (
	"math"
	"math/rand"
	"strings"

	"github.com/guidoenr/fantasia/internal/analyzer"
)

// OverlayKind identifies an ambient overlay branch.
type OverlayKind int

const (
	OverlayTunnel OverlayKind = iota
	OverlayWaves
	OverlayExplosion
)

func (k OverlayKind) String() string {
	switch k {
	case OverlayWaves:
		return "waves"
	case OverlayExplosion:
		return "explosion"
	default:
		return "tunnel"
	}
}

// DispatchOverlay maps an animation id to its overlay branch by keyword.
// Unknown ids get the tunnel so a new theme never renders nothing.
func DispatchOverlay(animationID string) OverlayKind {
	id := strings.ToLower(animationID)
	switch {
	case strings.Contains(id, "beach") || strings.Contains(id, "wave"):
		return OverlayWaves
	case strings.Contains(id, "metal") || strings.Contains(id, "destruction"):
		return OverlayExplosion
	default:
		return OverlayTunnel
	}
}

// Idle band values substituted when a branch has no live signal.
var (
	wavesIdle     = analyzer.BandEnergy{Bass: 0.5, Volume: 0.4}
	explosionIdle = analyzer.BandEnergy{Bass: 0.6, Treble: 0.5}
	tunnelIdle    = analyzer.BandEnergy{Bass: 0.3, Mid: 0.25, Treble: 0.2, Volume: 0.3}
	tunnelCap     = analyzer.BandEnergy{Bass: 0.6, Mid: 0.5, Treble: 0.4, Volume: 0.5}
)

var (
	cyan        = RGB{R: 0, G: 1, B: 1}
	skyBlue     = FromRGBA(MustHex("#87CEEB"))
	dodgerBlue  = FromRGBA(MustHex("#1E90FF"))
	pureRed     = RGB{R: 1}
	orangeRed   = FromRGBA(MustHex("#FF4500"))
	sparkYellow = RGB{R: 1, G: 1}
	deepPink    = FromRGBA(MustHex("#FF1493"))
	hotPink     = FromRGBA(MustHex("#FF69B4"))
	blueViolet  = FromRGBA(MustHex("#8A2BE2"))
	whiteRGB    = RGB{R: 1, G: 1, B: 1}
)

// Overlay draws the theme-specific ambient layer.
type Overlay struct {
	rng *rand.Rand
}

// NewOverlay returns an overlay whose spark jitter comes from rng.
func NewOverlay(rng *rand.Rand) *Overlay {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Overlay{rng: rng}
}

// Render draws one overlay frame. intensity also acts as the layer opacity.
func (o *Overlay) Render(c *Canvas, be analyzer.BandEnergy, animationID string, intensity, elapsed float64) {
	if intensity <= 0 {
		return
	}
	prev := c.SetMode(Screen)
	defer c.SetMode(prev)

	switch DispatchOverlay(animationID) {
	case OverlayWaves:
		o.drawWaves(c, be, intensity, elapsed)
	case OverlayExplosion:
		o.drawExplosion(c, be, intensity)
	default:
		o.drawTunnel(c, be, intensity, elapsed)
	}
}

func unitScale(c *Canvas) float64 {
	return math.Max(0.05, float64(min(c.Width(), c.Height()))/1080)
}

func (o *Overlay) drawWaves(c *Canvas, be analyzer.BandEnergy, intensity, elapsed float64) {
	t := elapsed * 2
	bass := analyzer.Or(be.Bass, wavesIdle.Bass)
	volume := analyzer.Or(be.Volume, wavesIdle.Volume)
	u := unitScale(c)
	w := float64(c.Width())
	h := float64(c.Height())

	wi := bass * intensity * 0.8
	if wi > 0.1 {
		c.FillVertical([]Stop{
			{Pos: 0, Color: cyan, Alpha: wi * 0.3 * intensity},
			{Pos: 0.5, Color: skyBlue, Alpha: wi * 0.2 * intensity},
			{Pos: 1, Color: dodgerBlue, Alpha: wi * 0.1 * intensity},
		})
	}

	alpha := volume * intensity * 0.6 * intensity
	amp := bass * 20 * intensity * u
	step := math.Max(1, 10*u)
	for i := 0; i < 5; i++ {
		base := h * (0.2 + float64(i)*0.15)
		pts := make([][2]float64, 0, int(w/step)+2)
		for x := 0.0; x <= w; x += step {
			y := base + math.Sin(x/u*0.01+t+float64(i)*0.5)*amp
			pts = append(pts, [2]float64{x, y})
		}
		c.Polyline(pts, 2*u, cyan, alpha)
	}
}

func (o *Overlay) drawExplosion(c *Canvas, be analyzer.BandEnergy, intensity float64) {
	bass := analyzer.Or(be.Bass, explosionIdle.Bass)
	treble := analyzer.Or(be.Treble, explosionIdle.Treble)
	u := unitScale(c)
	w := float64(c.Width())
	h := float64(c.Height())

	ei := bass * intensity
	if ei > 0.2 {
		c.FillRadial(w/2, h/2, 0, w/2, 0, []Stop{
			{Pos: 0, Color: pureRed, Alpha: ei * 0.4 * intensity},
			{Pos: 0.7, Color: orangeRed, Alpha: ei * 0.2 * intensity},
			{Pos: 1, Color: orangeRed, Alpha: 0},
		})
	}

	if treble > 0.2 {
		alpha := treble * intensity * 0.8 * intensity
		for i := 0.0; i < treble*8; i++ {
			sx := o.rng.Float64() * w
			sy := o.rng.Float64() * h
			ex := sx + (o.rng.Float64()-0.5)*100*u
			ey := sy + (o.rng.Float64()-0.5)*100*u
			c.Line(sx, sy, ex, ey, 2*u, sparkYellow, alpha)
		}
	}
}

func (o *Overlay) drawTunnel(c *Canvas, be analyzer.BandEnergy, intensity, elapsed float64) {
	t := elapsed * 1.5
	bass := math.Min(tunnelCap.Bass, analyzer.Or(be.Bass, tunnelIdle.Bass))
	mid := math.Min(tunnelCap.Mid, analyzer.Or(be.Mid, tunnelIdle.Mid))
	treble := math.Min(tunnelCap.Treble, analyzer.Or(be.Treble, tunnelIdle.Treble))
	volume := math.Min(tunnelCap.Volume, analyzer.Or(be.Volume, tunnelIdle.Volume))
	u := unitScale(c)
	w := float64(c.Width())
	h := float64(c.Height())
	cx, cy := w/2, h/2

	for layer := 0; layer < 3; layer++ {
		radius := (100 + float64(layer)*120) * u
		hue := math.Mod(t*20+float64(layer)*120, 360)
		c.StrokeCircle(cx, cy, radius, 2*u, HSL(hue, 0.7, 0.6), 0.15*volume*intensity)
	}

	c.FillRadial(cx, cy, 0, math.Max(w, h)/2, 0, []Stop{
		{Pos: 0, Color: deepPink, Alpha: bass * intensity * 0.25 * intensity},
		{Pos: 0.3, Color: hotPink, Alpha: mid * intensity * 0.18 * intensity},
		{Pos: 0.6, Color: blueViolet, Alpha: treble * intensity * 0.15 * intensity},
		{Pos: 1, Color: whiteRGB, Alpha: 0.04 * intensity},
	})

	for i := 0; i < 10; i++ {
		fi := float64(i)
		angle := t*0.3 + fi*2*math.Pi/10
		radius := (150 + math.Sin(t*0.7+fi)*90) * u
		x := cx + math.Cos(angle)*radius*volume
		y := cy + math.Sin(angle)*radius*volume
		size := (18 + math.Sin(t*1.2+fi)*10) * u
		hue := math.Mod(t*25+fi*36, 360)
		c.FillRadial(x, y, 0, size*2, size*2, []Stop{
			{Pos: 0, Color: HSL(hue, 0.85, 0.7), Alpha: 0.6 * intensity},
			{Pos: 0.5, Color: HSL(hue, 0.85, 0.6), Alpha: 0.3 * intensity},
			{Pos: 1, Color: HSL(hue, 0.85, 0.5), Alpha: 0},
		})
		c.FillCircle(x, y, size*0.5, HSL(hue, 1, 0.8), 0.6*intensity)
	}

	for i := 0; i < 8; i++ {
		fi := float64(i)
		angle := t*0.15 + fi*2*math.Pi/8
		radius := (280 + math.Sin(t*0.4+fi)*70) * u
		x := cx + math.Cos(angle)*radius*volume*0.7
		y := cy + math.Sin(angle)*radius*volume*0.7
		size := (8 + math.Sin(t*0.8+fi)*4) * u
		hue := math.Mod(t*18+fi*45, 360)
		c.FillRadial(x, y, 0, size*4, size*4, []Stop{
			{Pos: 0, Color: HSL(hue, 0.8, 0.7), Alpha: 0.5 * intensity},
			{Pos: 1, Color: HSL(hue, 0.8, 0.6), Alpha: 0},
		})
	}
}
