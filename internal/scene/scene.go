// Package scene composites every visual layer into one frame.
package scene

import (
	"image"
	"log"
	"math/rand"
	"time"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/params"
	"github.com/guidoenr/fantasia/internal/particles"
	"github.com/guidoenr/fantasia/internal/render"
)

const (
	videoUnavailableText = "video unavailable"
	tintOpacity          = 0.3
	tintStartAlpha       = float64(0x40) / 255
	tintEndAlpha         = float64(0x20) / 255
)

// SnapshotSource publishes the latest analysis result.
type SnapshotSource interface {
	Snapshot() analyzer.Snapshot
}

// FrameSource yields rgb24 background frames for an elapsed playback time.
type FrameSource interface {
	FrameAt(elapsed time.Duration) (frame []byte, width, height int, ok bool)
}

// VideoState tracks the background video lifecycle.
type VideoState int

const (
	VideoLoading VideoState = iota
	VideoReady
	VideoUnavailable
)

func (v VideoState) String() string {
	switch v {
	case VideoReady:
		return "ready"
	case VideoUnavailable:
		return "unavailable"
	default:
		return "loading"
	}
}

// Config sizes the composer.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Effects params.Effects
	Gains   params.Gains
	Log     *log.Logger

	// NoiseFloor gates band energy below this level to zero. 0 disables it.
	NoiseFloor float64
}

// Deps are the collaborators the composer reads from or draws with.
type Deps struct {
	Snapshots SnapshotSource
	Shader    render.ShaderLayer
	Logo      image.Image
	Rand      *rand.Rand
}

// UI is the static interface state drawn by the text layer.
type UI struct {
	Message string
	Prompt  bool
	Panel   []string
}

// Stats describes the most recent frame.
type Stats struct {
	Theme     string              `json:"theme"`
	Bands     analyzer.BandEnergy `json:"bands"`
	Playing   bool                `json:"playing"`
	Fallback  bool                `json:"fallback"`
	Silent    bool                `json:"silent"`
	Spawned   int                 `json:"spawned"`
	Shed      int                 `json:"shed"`
	Particles particles.Stats     `json:"particles"`
	Ripples   int                 `json:"ripples"`
	FPS       float64             `json:"fps"`
	Shader    string              `json:"shader"`
	Video     string              `json:"video"`
	Effects   params.Effects      `json:"effects"`
}

// Composer owns the canvas and every layer. It is driven from a single frame
// goroutine and is not safe for concurrent use.
type Composer struct {
	cfg   Config
	src   SnapshotSource
	log   *log.Logger
	start time.Time

	canvas    *render.Canvas
	overlay   *render.Overlay
	particles *render.ParticleRenderer
	shader    render.ShaderLayer
	shaderOK  bool
	watermark *render.Watermark
	text      *render.TextLayer

	meeting config.MeetingConfig
	bg      render.RGB
	primary render.RGB

	video      FrameSource
	videoState VideoState
	videoStart time.Time

	effects params.Effects
	ui      UI
	stats   Stats
}

// New builds a composer. A missing shader or a shader that fails to
// initialize leaves the layer disabled.
func New(cfg Config, deps Deps) *Composer {
	if cfg.Width <= 0 {
		cfg.Width = 1
	}
	if cfg.Height <= 0 {
		cfg.Height = 1
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Gains == (params.Gains{}) {
		cfg.Gains = params.DefaultGains()
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c := &Composer{
		cfg:       cfg,
		src:       deps.Snapshots,
		log:       cfg.Log,
		canvas:    render.NewCanvas(cfg.Width, cfg.Height),
		overlay:   render.NewOverlay(rng),
		particles: render.NewParticleRenderer(particles.DefaultInitial, particles.DefaultMax, rng),
		shader:    deps.Shader,
		watermark: render.NewWatermark(deps.Logo, cfg.FPS),
		text:      render.NewTextLayer(),
		effects:   cfg.Effects,
	}
	if c.shader != nil {
		c.shaderOK = c.shader.Initialize(c.canvas)
		if !c.shaderOK {
			c.logf("shader %s unavailable, layer disabled", c.shader.Name())
		}
	}
	c.particles.Resize(cfg.Width, cfg.Height)
	c.watermark.Layout(cfg.Width, cfg.Height)
	c.SetTheme(config.Builtin().Default())
	return c
}

// SetTheme switches the visual style. The background video is reset to the
// loading state until SetVideo reports on the new asset.
func (c *Composer) SetTheme(m config.MeetingConfig) {
	c.meeting = m
	c.bg = parseColor(m.Style.BackgroundColor, render.RGB{})
	c.primary = parseColor(m.Style.PrimaryColor, render.RGB{R: 1, G: 1, B: 1})
	c.video = nil
	c.videoState = VideoLoading
}

// Theme returns the active meeting configuration.
func (c *Composer) Theme() config.MeetingConfig { return c.meeting }

// SetVideo attaches the background frame source. A nil source marks the
// video unavailable.
func (c *Composer) SetVideo(v FrameSource) {
	c.video = v
	c.videoStart = time.Time{}
	if v == nil {
		c.videoState = VideoUnavailable
		return
	}
	c.videoState = VideoReady
}

// VideoElapsed returns the playback position of the attached video.
func (c *Composer) VideoElapsed(now time.Time) time.Duration {
	if c.videoStart.IsZero() {
		return 0
	}
	return now.Sub(c.videoStart)
}

// VideoState reports the background video state.
func (c *Composer) VideoState() VideoState { return c.videoState }

// SetEffects toggles the effect layers and sets their intensity.
func (c *Composer) SetEffects(enabled bool, intensity float64) {
	c.effects.Enabled = enabled
	c.effects.SetIntensity(intensity)
}

// Effects returns the current effects settings.
func (c *Composer) Effects() params.Effects { return c.effects }

// SetUI replaces the text layer state.
func (c *Composer) SetUI(ui UI) { c.ui = ui }

// Frame draws one frame for now and returns the composited canvas. The
// snapshot is read once and its band energy is shared by every layer.
func (c *Composer) Frame(now time.Time) *render.Canvas {
	if c.start.IsZero() {
		c.start = now
	}
	elapsed := now.Sub(c.start)
	secs := elapsed.Seconds()

	var snap analyzer.Snapshot
	if c.src != nil {
		snap = c.src.Snapshot()
	}
	be := analyzer.Gate(analyzer.ComputeBandEnergy(snap), c.cfg.NoiseFloor)
	anim := c.meeting.Style.TextAnimation
	cv := c.canvas

	cv.SetMode(render.SourceOver)
	cv.Clear(c.bg)
	c.drawVideo(cv, now)
	cv.FillVertical([]render.Stop{
		{Pos: 0, Color: c.bg, Alpha: tintStartAlpha * tintOpacity},
		{Pos: 1, Color: c.primary, Alpha: tintEndAlpha * tintOpacity},
	})

	spawned := 0
	if c.effects.Enabled {
		level := c.effects.Level()
		if c.effects.Shader && c.shaderOK {
			c.shader.Render(cv, params.Build(be, secs, level, cv.Width(), cv.Height(), anim, c.cfg.Gains))
		}
		if c.effects.Overlay {
			c.overlay.Render(cv, be, anim, level, secs)
		}
		if c.effects.Particles {
			spawned = c.particles.Render(cv, be, anim, level, now)
		}
	}

	c.text.Draw(cv, render.TextState{
		Animation: anim,
		Primary:   c.primary,
		Volume:    be.Volume,
		Bins:      snap.Bins,
		Elapsed:   secs,
		Message:   c.ui.Message,
		Prompt:    c.ui.Prompt,
		Panel:     c.ui.Panel,
	})

	c.watermark.Update(be.Bass)
	c.watermark.Draw(cv)

	c.stats = Stats{
		Theme:     c.meeting.ID,
		Bands:     be,
		Playing:   snap.IsPlaying,
		Fallback:  snap.Fallback,
		Silent:    be.Silent(),
		Spawned:   spawned,
		Shed:      c.particles.Skipped(),
		Particles: c.particles.Stats(),
		Ripples:   len(c.watermark.Ripples()),
		FPS:       c.particles.FPS(),
		Shader:    c.shaderName(),
		Video:     c.videoState.String(),
		Effects:   c.effects,
	}
	return cv
}

func (c *Composer) drawVideo(cv *render.Canvas, now time.Time) {
	switch c.videoState {
	case VideoReady:
		if c.videoStart.IsZero() {
			c.videoStart = now
		}
		frame, fw, fh, ok := c.video.FrameAt(now.Sub(c.videoStart))
		if ok {
			cv.DrawRGB24(frame, fw, fh)
		}
	case VideoUnavailable:
		c.text.Notice(cv, videoUnavailableText)
	}
}

func (c *Composer) shaderName() string {
	if !c.shaderOK {
		return "off"
	}
	return c.shader.Name()
}

// Canvas returns the composited canvas of the last frame.
func (c *Composer) Canvas() *render.Canvas { return c.canvas }

// Resize resizes the canvas and every size-dependent layer.
func (c *Composer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if width == c.canvas.Width() && height == c.canvas.Height() {
		return
	}
	c.canvas.Resize(width, height)
	if c.shaderOK {
		c.shader.Resize(width, height)
	}
	c.particles.Resize(width, height)
	c.watermark.Layout(width, height)
}

// Stats returns telemetry for the last frame.
func (c *Composer) Stats() Stats { return c.stats }

// Close releases the shader program and the particle pool.
func (c *Composer) Close() {
	if c.shader != nil {
		c.shader.Close()
	}
	c.shaderOK = false
	c.particles.Close()
}

func (c *Composer) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}

func parseColor(hex string, fallback render.RGB) render.RGB {
	col, err := render.ParseHex(hex)
	if err != nil {
		return fallback
	}
	return render.FromRGBA(col)
}
