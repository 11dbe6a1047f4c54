package render

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/guidoenr/fantasia/internal/params"
)

// ShaderLayer runs the fullscreen theme program over a canvas. When
// Initialize returns false the layer must be skipped.
type ShaderLayer interface {
	Name() string
	Initialize(c *Canvas) bool
	Render(c *Canvas, u params.Uniforms)
	Resize(width, height int)
	Close()
}

type qualityMode string

const (
	qualityHigh     qualityMode = "high"
	qualityBalanced qualityMode = "balanced"
	qualityEco      qualityMode = "eco"
)

var qualityModeNames = []string{
	string(qualityHigh),
	string(qualityBalanced),
	string(qualityEco),
}

// QualityModeNames returns the supported quality modes.
func QualityModeNames() []string {
	out := make([]string, len(qualityModeNames))
	copy(out, qualityModeNames)
	sort.Strings(out)
	return out
}

func parseQualityMode(name string) qualityMode {
	switch strings.ToLower(name) {
	case "eco", "low", "pi":
		return qualityEco
	case "balanced", "medium", "mid":
		return qualityBalanced
	case "high", "full", "max":
		return qualityHigh
	default:
		return qualityBalanced
	}
}

// block is the edge of the square of pixels that share one shader sample.
func (q qualityMode) block() int {
	switch q {
	case qualityEco:
		return 3
	case qualityBalanced:
		return 2
	default:
		return 1
	}
}

// NewShader picks a backend. "gl" tries the GPU program first and falls back
// to the CPU program when it is not compiled in.
func NewShader(backend, quality string) ShaderLayer {
	if strings.EqualFold(backend, "gl") {
		if s, ok := newGLShader(); ok {
			return s
		}
	}
	return NewCPUShader(quality)
}

// CPUShader evaluates the theme program per pixel on a row worker pool.
type CPUShader struct {
	quality qualityMode
	ready   bool
	viewW   int
	viewH   int
	resyncs int
	workers int
}

// NewCPUShader creates the software program.
func NewCPUShader(quality string) *CPUShader {
	return &CPUShader{
		quality: parseQualityMode(quality),
		workers: runtime.GOMAXPROCS(0),
	}
}

func (s *CPUShader) Name() string { return "cpu/" + string(s.quality) }

// Initialize binds the program to c.
func (s *CPUShader) Initialize(c *Canvas) bool {
	if c == nil {
		return false
	}
	s.ready = true
	s.Resize(c.Width(), c.Height())
	return true
}

// Resize updates the viewport.
func (s *CPUShader) Resize(width, height int) {
	s.viewW = width
	s.viewH = height
}

// resyncCount counts how often Render found the viewport out of step.
func (s *CPUShader) resyncCount() int { return s.resyncs }

// Viewport returns the current viewport size.
func (s *CPUShader) Viewport() (int, int) { return s.viewW, s.viewH }

// Render composites one frame source-over with alpha 0.8*intensity.
func (s *CPUShader) Render(c *Canvas, u params.Uniforms) {
	if !s.ready || c == nil {
		return
	}
	if s.viewW != c.Width() || s.viewH != c.Height() {
		s.resyncs++
		s.Resize(c.Width(), c.Height())
	}
	alpha := 0.8 * u.Intensity
	if alpha <= 0 {
		return
	}
	prev := c.SetMode(SourceOver)
	defer c.SetMode(prev)

	width, height := s.viewW, s.viewH
	blk := s.quality.block()
	rows := (height + blk - 1) / blk

	numWorkers := s.workers
	if numWorkers > rows {
		numWorkers = rows
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for by := range rowJobs {
				y0 := by * blk
				for x0 := 0; x0 < width; x0 += blk {
					uvx := (float64(x0) + float64(blk)/2) / float64(width)
					uvy := 1 - (float64(y0)+float64(blk)/2)/float64(height)
					col := shade(uvx, uvy, u)
					for y := y0; y < y0+blk && y < height; y++ {
						for x := x0; x < x0+blk && x < width; x++ {
							c.Blend(x, y, col, alpha)
						}
					}
				}
			}
		}()
	}
	for by := 0; by < rows; by++ {
		rowJobs <- by
	}
	close(rowJobs)
	wg.Wait()
}

// Close releases the program.
func (s *CPUShader) Close() {
	s.ready = false
}

func shade(x, y float64, u params.Uniforms) RGB {
	var col RGB
	switch u.Theme {
	case params.ThemeBeach:
		col = beachEffect(x, y, u)
	case params.ThemeMetal:
		col = metalEffect(x, y, u)
	case params.ThemeReggaeton:
		col = reggaetonEffect(x, y, u)
	default:
		col = groovieEffect(x, y, u)
	}
	return RGB{R: clamp01(col.R), G: clamp01(col.G), B: clamp01(col.B)}
}

var (
	shaderCyan   = RGB{R: 0, G: 1, B: 1}
	shaderBlue   = RGB{R: 0, G: 0.5, B: 1}
	shaderWhite  = RGB{R: 1, G: 1, B: 1}
	shaderRed    = RGB{R: 1}
	shaderOrange = RGB{R: 1, G: 0.4}
	shaderYellow = RGB{R: 1, G: 1}
	reggaeOrange = RGB{R: 1, G: 0.42, B: 0.21}
	reggaeYellow = RGB{R: 1, G: 0.82, B: 0.25}
	reggaeRed    = RGB{R: 0.91, G: 0.3, B: 0.24}
)

func beachEffect(x, y float64, u params.Uniforms) RGB {
	t := u.Time
	wx := x + math.Sin(y*3+t*2+u.Bass*5)*0.2*u.Intensity
	pattern := fbm(wx*2+t*0.5, y*2+t*0.5)
	col := Mix(shaderCyan, shaderBlue, pattern)
	col = Mix(col, shaderWhite, u.Bass*0.5)
	return col.Scale((0.3 + u.Volume*0.7) * u.Intensity)
}

func groovieEffect(x, y float64, u params.Uniforms) RGB {
	t := u.Time
	px, py := x-0.5, y-0.5
	angle := math.Atan2(py, px) + t + u.Bass*6.28
	radius := math.Hypot(px, py)

	spiral1 := math.Sin(radius*15-t*4+u.Mid*15)*0.5 + 0.5
	spiral2 := math.Cos(radius*8+t*2+u.Bass*10)*0.5 + 0.5
	rings := math.Sin(angle*4+u.Treble*20)*0.5 + 0.5

	hue1 := glslMod(t*0.3+radius*3+u.Volume*6.28, 6.28)
	hue2 := glslMod(t*0.2+angle+u.Bass*3.14, 6.28)
	c1 := RGB{R: math.Sin(hue1)*0.5 + 0.5, G: math.Sin(hue1+2.094)*0.5 + 0.5, B: math.Sin(hue1+4.188)*0.5 + 0.5}
	c2 := RGB{R: math.Cos(hue2)*0.5 + 0.5, G: math.Cos(hue2+2.094)*0.5 + 0.5, B: math.Cos(hue2+4.188)*0.5 + 0.5}

	col := Mix(c1, c2, spiral2).Scale(spiral1 * rings)
	return col.Scale((0.6 + u.Volume*0.8) * u.Intensity * 1.5)
}

func metalEffect(x, y float64, u params.Uniforms) RGB {
	t := u.Time
	dist := math.Hypot(x-0.5, y-0.5) * 1.5
	explosion := 1 - smoothstepRange(0, 1.2, dist-u.Bass*0.4)
	lightning := fbm(x*8+t*2+u.Treble*5, y*8+t*2+u.Treble*5)
	lightning = math.Pow(lightning, 2-u.Intensity*1.5)

	col := Mix(shaderRed, shaderOrange, explosion)
	col = Mix(col, shaderYellow, lightning*u.Treble)
	coverage := math.Min(1, dist*0.6+0.4)
	return col.Scale(coverage * (0.2 + u.Volume*0.8) * u.Intensity)
}

func reggaetonEffect(x, y float64, u params.Uniforms) RGB {
	t := u.Time
	bounce := math.Sin(t*4+u.Bass*15)*0.3 + 0.7
	pulse := math.Cos(t*6+u.Mid*10)*0.2 + 0.8

	wx := x + math.Sin(y*6+t*3+u.Treble*8)*0.1
	wy := y + math.Cos(x*4+t*2)*0.1
	pattern := fbm(wx*3+t*0.8, wy*3+t*0.8)

	col := Mix(reggaeOrange, reggaeYellow, pattern*bounce)
	col = Mix(col, reggaeRed, u.Bass*pulse*0.6)
	rhythm := (math.Sin(t*8+u.Volume*12)*0.2 + 0.8) * bounce
	col = col.Scale(rhythm)
	return col.Scale((0.4 + u.Volume*0.8) * u.Intensity * 1.2)
}

// fbm sums six octaves of value noise, roughly in [0,1).
func fbm(x, y float64) float64 {
	value := 0.0
	amp := 0.5
	for i := 0; i < 6; i++ {
		value += amp * valueNoise2(x, y)
		x *= 2
		y *= 2
		amp *= 0.5
	}
	return value
}

func valueNoise2(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	x1 := x0 + 1.0
	y1 := y0 + 1.0

	sx := smoothstep(x - x0)
	sy := smoothstep(y - y0)

	n00 := hash2(x0, y0)
	n10 := hash2(x1, y0)
	n01 := hash2(x0, y1)
	n11 := hash2(x1, y1)

	ix0 := lerp(n00, n10, sx)
	ix1 := lerp(n01, n11, sx)

	return lerp(ix0, ix1, sy)
}

func hash2(x, y float64) float64 {
	return frac(math.Sin(x*12.9898+y*78.233) * 43758.5453123)
}

func smoothstep(v float64) float64 {
	return v * v * (3 - 2*v)
}

func smoothstepRange(e0, e1, x float64) float64 {
	return smoothstep(clamp01((x - e0) / (e1 - e0)))
}

func glslMod(x, y float64) float64 {
	return x - y*math.Floor(x/y)
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}
