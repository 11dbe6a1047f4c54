package params

import (
	"math"
	"strings"

	"github.com/guidoenr/fantasia/internal/analyzer"
)

// Theme branch selectors understood by the shader program.
const (
	ThemeBeach     = 0
	ThemeGroovie   = 1
	ThemeMetal     = 2
	ThemeReggaeton = 3
)

// Gains amplify each band before clamping so quiet bands still register.
type Gains struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
	Volume float64 `json:"volume"`
}

// DefaultGains returns the per-band shader gains.
func DefaultGains() Gains {
	return Gains{Bass: 1.5, Mid: 1.3, Treble: 1.2, Volume: 2}
}

// ShaderIdle is substituted for every band without live signal.
const ShaderIdle = 0.3

// Uniforms is the per-frame input of the shader program.
type Uniforms struct {
	Time      float64
	Bass      float64
	Mid       float64
	Treble    float64
	Volume    float64
	Intensity float64
	Width     int
	Height    int
	Theme     int
}

// ThemeIndex maps an animation id to a shader branch. Unknown ids use groovie.
func ThemeIndex(animationID string) int {
	id := strings.ToLower(animationID)
	switch {
	case strings.Contains(id, "beach") || strings.Contains(id, "wave"):
		return ThemeBeach
	case strings.Contains(id, "groovie") || strings.Contains(id, "psychedelic"):
		return ThemeGroovie
	case strings.Contains(id, "metal") || strings.Contains(id, "destruction"):
		return ThemeMetal
	case strings.Contains(id, "reggaeton") || strings.Contains(id, "bounce"):
		return ThemeReggaeton
	default:
		return ThemeGroovie
	}
}

// Build derives shader uniforms from a frozen band reading.
func Build(be analyzer.BandEnergy, elapsed, intensity float64, width, height int, animationID string, g Gains) Uniforms {
	return Uniforms{
		Time:      elapsed,
		Bass:      clamp(analyzer.Or(be.Bass, ShaderIdle)*g.Bass, 0, 1),
		Mid:       clamp(analyzer.Or(be.Mid, ShaderIdle)*g.Mid, 0, 1),
		Treble:    clamp(analyzer.Or(be.Treble, ShaderIdle)*g.Treble, 0, 1),
		Volume:    clamp(analyzer.Or(be.Volume, ShaderIdle)*g.Volume, 0, 1),
		Intensity: clamp(intensity, 0, 1),
		Width:     width,
		Height:    height,
		Theme:     ThemeIndex(animationID),
	}
}

// Effects is the user-adjustable effects state.
type Effects struct {
	Enabled   bool    `json:"enabled"`
	Intensity float64 `json:"intensity"`
	Shader    bool    `json:"shader"`
	Overlay   bool    `json:"overlay"`
	Particles bool    `json:"particles"`
}

// IntensityStep is the increment used by keyboard and remote nudges.
const IntensityStep = 0.1

// DefaultEffects returns effects on at 80% intensity.
func DefaultEffects() Effects {
	return Effects{
		Enabled:   true,
		Intensity: 0.8,
		Shader:    true,
		Overlay:   true,
		Particles: true,
	}
}

// SetIntensity stores v clamped to [0,1] and rounded to one decimal.
func (e *Effects) SetIntensity(v float64) {
	e.Intensity = math.Round(clamp(v, 0, 1)*10) / 10
}

// Nudge moves intensity by steps increments.
func (e *Effects) Nudge(steps int) {
	e.SetIntensity(e.Intensity + float64(steps)*IntensityStep)
}

// Toggle flips the master switch.
func (e *Effects) Toggle() {
	e.Enabled = !e.Enabled
}

// Level returns the intensity to apply, zero when effects are off.
func (e Effects) Level() float64 {
	if !e.Enabled {
		return 0
	}
	return e.Intensity
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
