package render

import (
	"image/color"
	"math"
	"math/rand"
	"time"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/particles"
)

// ParticleTheme holds the spawn palette for one animation id.
type ParticleTheme struct {
	Colors []color.RGBA
	Cap    int
	Kinds  []particles.Kind
}

var particleThemes = map[string]ParticleTheme{
	"wave-beach": {
		Colors: hexes("#00FFFF", "#87CEEB", "#1E90FF", "#00BFFF"),
		Cap:    50,
		Kinds:  []particles.Kind{particles.Glow, particles.Trail},
	},
	"funky-chaos": {
		Colors: hexes("#FF1493", "#FF69B4", "#8A2BE2", "#FFD700"),
		Cap:    80,
		Kinds:  []particles.Kind{particles.Spark, particles.Explosion},
	},
	"funky-glitch": {
		Colors: hexes("#FFD700", "#FF4500", "#FFA500"),
		Cap:    60,
		Kinds:  []particles.Kind{particles.Spark, particles.Trail},
	},
	"groovie-psychedelic": {
		Colors: hexes("#9932CC", "#FF69B4", "#DA70D6", "#BA55D3"),
		Cap:    100,
		Kinds:  []particles.Kind{particles.Glow, particles.Explosion},
	},
	"metal-destruction": {
		Colors: hexes("#FF0000", "#FF4500", "#800000", "#B22222"),
		Cap:    120,
		Kinds:  []particles.Kind{particles.Explosion, particles.Spark},
	},
}

var defaultParticleTheme = ParticleTheme{
	Colors: hexes("#FFFFFF"),
	Cap:    30,
	Kinds:  []particles.Kind{particles.Glow},
}

func hexes(values ...string) []color.RGBA {
	out := make([]color.RGBA, len(values))
	for i, v := range values {
		out[i] = MustHex(v)
	}
	return out
}

// ParticleThemeFor returns the spawn palette for animationID.
func ParticleThemeFor(animationID string) ParticleTheme {
	if t, ok := particleThemes[animationID]; ok {
		return t
	}
	return defaultParticleTheme
}

const (
	minSpawnFPS  = 30
	fpsWindow    = 10
	idleVelocity = 0.5
	starSpikes   = 8
	trailStretch = 5
	rippleGrowth = 0.05
)

// ParticleRenderer spawns, advances and draws pooled particles. It owns its
// pool exclusively.
type ParticleRenderer struct {
	pool   *particles.Pool
	rng    *rand.Rand
	width  int
	height int

	last    time.Time
	deltas  [fpsWindow]float64
	nDeltas int
	next    int

	skipped int
}

// NewParticleRenderer builds a renderer with a fresh pool.
func NewParticleRenderer(initial, max int, rng *rand.Rand) *ParticleRenderer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ParticleRenderer{
		pool: particles.NewPool(initial, max),
		rng:  rng,
	}
}

// Resize changes the spawn bounds. Live particles are not rescaled.
func (r *ParticleRenderer) Resize(width, height int) {
	r.width = width
	r.height = height
}

// FPS returns the measured frame rate, or 0 before enough frames were seen.
func (r *ParticleRenderer) FPS() float64 {
	if r.nDeltas == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.nDeltas; i++ {
		sum += r.deltas[i]
	}
	if sum <= 0 {
		return 0
	}
	return float64(r.nDeltas) / sum
}

// Skipped returns how many frames shed spawning due to low frame rate.
func (r *ParticleRenderer) Skipped() int { return r.skipped }

// Stats reports pool occupancy.
func (r *ParticleRenderer) Stats() particles.Stats { return r.pool.Stats() }

func (r *ParticleRenderer) measure(now time.Time) {
	if !r.last.IsZero() {
		d := now.Sub(r.last).Seconds()
		if d > 0 {
			r.deltas[r.next] = d
			r.next = (r.next + 1) % fpsWindow
			if r.nDeltas < fpsWindow {
				r.nDeltas++
			}
		}
	}
	r.last = now
}

// Render runs one spawn/update/draw step and returns the number spawned.
func (r *ParticleRenderer) Render(c *Canvas, be analyzer.BandEnergy, animationID string, userIntensity float64, now time.Time) int {
	r.measure(now)
	theme := ParticleThemeFor(animationID)

	spawned := 0
	if fps := r.FPS(); fps > 0 && fps < minSpawnFPS {
		r.skipped++
	} else {
		spawned = r.spawn(c, theme, be.Volume, userIntensity)
	}

	r.pool.Update()
	r.draw(c)
	return spawned
}

func (r *ParticleRenderer) spawn(c *Canvas, theme ParticleTheme, volume, userIntensity float64) int {
	audioIntensity := volume * userIntensity
	count := int(math.Floor(audioIntensity * float64(theme.Cap)))
	if count <= 0 {
		return 0
	}

	w, h := r.width, r.height
	if w <= 0 || h <= 0 {
		w, h = c.Width(), c.Height()
	}
	u := unitScale(c)
	speed := analyzer.Or(volume, idleVelocity)

	spawned := 0
	for i := 0; i < count && len(r.pool.Active()) < theme.Cap*2; i++ {
		sp := particles.SpawnParams{
			X:      r.rng.Float64() * float64(w),
			Y:      r.rng.Float64() * float64(h),
			VX:     (r.rng.Float64() - 0.5) * 4 * speed * u,
			VY:     (r.rng.Float64() - 0.5) * 4 * speed * u,
			MaxAge: int(r.rng.Float64()*100) + 50,
			Size:   (r.rng.Float64()*8 + 2) * u,
			Color:  theme.Colors[r.rng.Intn(len(theme.Colors))],
			Kind:   theme.Kinds[r.rng.Intn(len(theme.Kinds))],
		}
		if _, ok := r.pool.Acquire(sp); !ok {
			break
		}
		spawned++
	}
	return spawned
}

func (r *ParticleRenderer) draw(c *Canvas) {
	prev := c.SetMode(Screen)
	defer c.SetMode(prev)

	for _, p := range r.pool.Active() {
		col := FromRGBA(p.Color)
		switch p.Kind {
		case particles.Spark:
			c.FillCircle(p.X, p.Y, p.Size, col, p.Alpha)
		case particles.Glow:
			c.FillRadial(p.X, p.Y, 0, p.Size*3, p.Size*3, []Stop{
				{Pos: 0, Color: col, Alpha: p.Alpha},
				{Pos: 1, Color: col, Alpha: 0},
			})
		case particles.Trail:
			c.Line(p.X-p.VX*trailStretch, p.Y-p.VY*trailStretch, p.X, p.Y, p.Size, col, p.Alpha)
		case particles.Explosion:
			c.FillPolygon(starPoints(p.X, p.Y, p.Size, p.Size*0.5), col, p.Alpha)
		case particles.Ripple:
			c.StrokeCircle(p.X, p.Y, p.Size*(1+float64(p.Age)*rippleGrowth), 1, col, p.Alpha)
		}
	}
}

func starPoints(x, y, outer, inner float64) [][2]float64 {
	pts := make([][2]float64, 0, starSpikes*2)
	for i := 0; i < starSpikes; i++ {
		angle := float64(i) / starSpikes * 2 * math.Pi
		pts = append(pts,
			[2]float64{x + math.Cos(angle)*outer, y + math.Sin(angle)*outer},
			[2]float64{x + math.Cos(angle+math.Pi/starSpikes)*inner, y + math.Sin(angle+math.Pi/starSpikes)*inner},
		)
	}
	return pts
}

// Close returns every particle to the pool.
func (r *ParticleRenderer) Close() {
	r.pool.Clear()
}
