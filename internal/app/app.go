package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/assets"
	"github.com/guidoenr/fantasia/internal/audio"
	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/params"
	"github.com/guidoenr/fantasia/internal/remote"
	"github.com/guidoenr/fantasia/internal/render"
	"github.com/guidoenr/fantasia/internal/scene"
	"github.com/guidoenr/fantasia/internal/schedule"
	"github.com/guidoenr/fantasia/internal/video"
)

const (
	volumeStep       = 0.05
	messageTTL       = 6 * time.Second
	effectsPanelTTL  = 4 * time.Second
	volumePanelTTL   = 3 * time.Second
	selectionRefresh = 60 * time.Second
)

var errNoOverrides = errors.New("overrides are disabled")

// Config configures the application runtime.
type Config struct {
	Width         int
	Height        int
	TargetFPS     float64
	Backend       string
	ColorMode     string
	Palette       string
	WindowWidth   int
	WindowHeight  int
	ShowStatusBar bool
	Shader        string
	Quality       string
	Volume        float64
	Effects       params.Effects

	Capture      bool
	DeviceName   string
	BufferSize   int
	DisableAudio bool
	NoiseFloor   float64

	AssetBase    string
	Logo         image.Image
	Table        config.Table
	TableUpdates <-chan config.Table
	Query        string
	Overrides    *override.Store
	Commands     <-chan remote.Command
	Board        *remote.Board

	ProfilePath string
	HTTPClient  *http.Client
	Log         *log.Logger
}

// App ties together audio, schedule selection, composition and output.
type App struct {
	cfg      Config
	log      *log.Logger
	renderer *render.Renderer
	composer *scene.Composer
	resolver *schedule.Resolver
	checker  *assets.Checker
	prof     *profiler
	rng      *rand.Rand

	source          analyzer.Source
	analyzer        *analyzer.Analyzer
	analyzerStarted bool
	track           *audio.Track
	control         *audio.Control
	video           *video.Session

	ctx        context.Context
	media      chan mediaResult
	gen        int
	cancelLoad context.CancelFunc
	loading    bool
	wg         sync.WaitGroup

	current    config.MeetingConfig
	reason     schedule.Reason
	interacted bool
	volume     float64

	typed        []rune
	message      string
	messageUntil time.Time
	panelUntil   time.Time

	width        int
	height       int
	renderHeight int
	inputEvents  chan inputEvent
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 30
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	if cfg.Effects == (params.Effects{}) {
		cfg.Effects = params.DefaultEffects()
	}
	if len(cfg.Table) == 0 {
		cfg.Table = config.Builtin()
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	renderer, err := render.New(cfg.Width, renderHeight, cfg.Palette, cfg.ColorMode, cfg.Backend, cfg.WindowWidth, cfg.WindowHeight)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	app := &App{
		cfg:          cfg,
		log:          cfg.Log,
		renderer:     renderer,
		checker:      assets.NewChecker(cfg.HTTPClient, cfg.Log),
		prof:         newProfiler(cfg.ProfilePath, cfg.Log),
		rng:          rng,
		ctx:          context.Background(),
		media:        make(chan mediaResult, 4),
		volume:       clamp(cfg.Volume, 0, 1),
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
	}

	var shader render.ShaderLayer
	if !strings.EqualFold(cfg.Shader, "off") {
		shader = render.NewShader(cfg.Shader, cfg.Quality)
	}
	cw, ch := renderer.CanvasSize()
	app.composer = scene.New(scene.Config{
		Width:   cw,
		Height:  ch,
		FPS:     int(math.Round(cfg.TargetFPS)),
		Effects: cfg.Effects,
		Log:     cfg.Log,

		NoiseFloor: cfg.NoiseFloor,
	}, scene.Deps{
		Snapshots: app,
		Shader:    shader,
		Logo:      cfg.Logo,
		Rand:      rng,
	})

	var overrides schedule.Overrides
	if cfg.Overrides != nil {
		overrides = cfg.Overrides
	}
	app.resolver = schedule.NewResolver(cfg.Table, cfg.Query, overrides, rng)

	switch {
	case cfg.DisableAudio:
		app.source = newFakeSource()
		app.log.Println("audio disabled, using synthetic generator")
	case cfg.Capture:
		app.source = audio.NewCapture(audio.CaptureConfig{
			DeviceName: cfg.DeviceName,
			BufferSize: cfg.BufferSize,
			Channels:   2,
		})
	}
	if app.source != nil {
		app.attachSource(app.source)
		if c, ok := app.source.(*audio.Capture); ok && app.analyzer.Connected() {
			app.log.Printf("audio capture started on %q @ %.0f Hz", c.DeviceName(), c.SampleRate())
		}
	}
	return app, nil
}

// Snapshot returns the latest analysis, or an idle snapshot when no source
// is attached.
func (a *App) Snapshot() analyzer.Snapshot {
	if a.analyzer == nil {
		return analyzer.Snapshot{}
	}
	return a.analyzer.Snapshot()
}

// Table returns the live meeting table. It is safe for concurrent use.
func (a *App) Table() config.Table { return a.resolver.Table() }

// Run starts the render loop until context cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx

	frameDuration := time.Duration(float64(time.Second) / a.cfg.TargetFPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	refresh := time.NewTicker(selectionRefresh)
	defer refresh.Stop()

	if !a.renderer.Windowed() {
		enterAltScreen()
		clearScreen()
		hideCursor()
		defer func() {
			showCursor()
			exitAltScreen()
		}()
	}

	a.startInputListener(ctx)
	a.ensureDimensions(time.Now())
	a.resolve(time.Now())

	tables := a.cfg.TableUpdates
	for {
		select {
		case <-ctx.Done():
			moveCursorHome()
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if a.handleInput(evt, time.Now()) {
				moveCursorHome()
				return nil
			}
		case cmd := <-a.cfg.Commands:
			err := a.applyCommand(cmd, time.Now())
			if cmd.Reply != nil {
				cmd.Reply <- err
			} else if err != nil {
				a.log.Printf("remote %s: %v", cmd.Kind, err)
			}
		case t, ok := <-tables:
			if !ok {
				tables = nil
				continue
			}
			a.reloadTable(t, time.Now())
		case res := <-a.media:
			a.installMedia(res)
		case now := <-refresh.C:
			a.resolve(now)
		case now := <-ticker.C:
			if err := a.step(now); err != nil {
				if errors.Is(err, render.ErrRendererQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases held resources. The playing track fades out first.
func (a *App) Close() error {
	if a.cancelLoad != nil {
		a.cancelLoad()
	}
	a.retireTrack()
	a.detachSource()
	a.wg.Wait()
drain:
	for {
		select {
		case res := <-a.media:
			res.release()
		default:
			break drain
		}
	}
	if a.video != nil {
		a.video.Close()
		a.video = nil
	}
	a.composer.Close()
	a.prof.Close()
	return a.renderer.Close()
}

func (a *App) step(now time.Time) error {
	a.prof.beginFrame(now)
	a.ensureDimensions(now)

	if a.analyzer != nil {
		a.analyzer.Tick(now)
	}
	a.prof.markSection("analyze")

	a.composer.SetUI(a.ui(now))
	cv := a.composer.Frame(now)
	a.prof.markSection("compose")

	st := a.composer.Stats()
	frame := a.renderer.Render(cv, a.rendererStatus(st))
	if frame.Present != nil {
		if err := frame.Present(frame.Status); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		for _, line := range frame.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if a.cfg.ShowStatusBar {
			b.WriteString(a.renderer.StatusLine(frame.Status, a.width))
		}
		moveCursorHome()
		os.Stdout.WriteString(b.String())
	}
	a.prof.markSection("present")
	a.prof.endFrame()

	a.publishStatus(now, st)
	return nil
}

func (a *App) rendererStatus(st scene.Stats) render.Status {
	out := render.Status{
		Theme:     a.current.ID,
		Volume:    a.volume,
		Bass:      st.Bands.Bass,
		FPS:       st.FPS,
		Particles: st.Particles.Active,
		Shader:    st.Shader,
		Intensity: st.Effects.Intensity,
		Effects:   st.Effects.Enabled,
		Fallback:  st.Fallback,
	}
	switch src := a.source.(type) {
	case *audio.Capture:
		out.Title = "mic=" + src.DeviceName()
	default:
		if a.track != nil {
			out.Title = a.track.Title()
		}
	}
	return out
}

func (a *App) publishStatus(now time.Time, st scene.Stats) {
	if a.cfg.Board == nil {
		return
	}
	s := remote.Status{
		Theme:   a.current.ID,
		Name:    a.current.Name,
		Reason:  string(a.reason),
		Volume:  a.volume,
		FPS:     st.FPS,
		Playing: st.Playing,
		Silent:  st.Silent,
		Bands:   st.Bands,
		Effects: st.Effects,
		Video:   st.Video,
		Shed:    st.Shed,
		Updated: now,
	}
	if a.track != nil {
		s.Title = a.track.Title()
	}
	if a.cfg.Overrides != nil {
		if f, ok := a.cfg.Overrides.Current(now); ok {
			s.Override = &f
		}
	}
	if now.Before(a.messageUntil) {
		s.Message = a.message
	}
	a.cfg.Board.Set(s)
}

// resolve re-runs package selection and switches theme when it changed.
func (a *App) resolve(now time.Time) {
	m, why := a.resolver.Resolve(now)
	a.reason = why
	if a.gen > 0 && m.ID == a.current.ID {
		return
	}
	a.switchTheme(m, why)
}

func (a *App) switchTheme(m config.MeetingConfig, why schedule.Reason) {
	a.current = m
	a.composer.SetTheme(m)
	a.gen++
	a.loading = true
	if a.cancelLoad != nil {
		a.cancelLoad()
	}
	if a.video != nil {
		a.video.Close()
		a.video = nil
	}

	ctx, cancel := mediaContext(a.ctx)
	a.cancelLoad = cancel
	cv := a.composer.Canvas()
	gen, w, h := a.gen, cv.Width(), cv.Height()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		a.loadMedia(ctx, gen, m, w, h)
	}()
	a.log.Printf("theme -> %s (%s)", m.ID, why)
}

func (a *App) reloadTable(t config.Table, now time.Time) {
	a.resolver.SetTable(t)
	if a.cfg.Overrides != nil {
		a.cfg.Overrides.SetTable(t)
	}
	a.log.Printf("table reloaded: %d packages", len(t))
	a.resolve(now)
}

func (a *App) applyCommand(cmd remote.Command, now time.Time) error {
	switch cmd.Kind {
	case remote.CmdForce:
		if a.cfg.Overrides == nil {
			return errNoOverrides
		}
		if _, err := a.cfg.Overrides.Force(cmd.ID, cmd.Duration, now); err != nil {
			return err
		}
		a.resolve(now)
	case remote.CmdClear:
		if a.cfg.Overrides == nil {
			return errNoOverrides
		}
		if err := a.cfg.Overrides.Clear(); err != nil {
			return err
		}
		a.resolve(now)
	case remote.CmdVolume:
		a.setVolume(cmd.Volume, now)
	case remote.CmdEffects:
		a.composer.SetEffects(cmd.Enabled, cmd.Intensity)
		a.panelUntil = now.Add(effectsPanelTTL)
	case remote.CmdMessage:
		if strings.TrimSpace(cmd.Text) == "" {
			a.messageUntil = time.Time{}
			return nil
		}
		a.showMessage(strings.TrimSpace(cmd.Text), now)
	default:
		return fmt.Errorf("unknown command %d", cmd.Kind)
	}
	return nil
}

// handleInput applies one key event and reports whether the app should quit.
func (a *App) handleInput(evt inputEvent, now time.Time) bool {
	if evt.kind == inputQuit {
		return true
	}
	a.interact()

	fx := a.composer.Effects()
	switch evt.kind {
	case inputChar:
		a.typed = append(a.typed, evt.ch)
		a.messageUntil = time.Time{}
	case inputBackspace:
		if len(a.typed) > 0 {
			a.typed = a.typed[:len(a.typed)-1]
		}
		a.messageUntil = time.Time{}
	case inputClearText:
		a.typed = nil
	case inputEnter:
		if text := strings.TrimSpace(string(a.typed)); text != "" {
			a.showMessage(text, now)
		}
	case inputVolumeUp:
		a.setVolume(a.volume+volumeStep, now)
	case inputVolumeDown:
		a.setVolume(a.volume-volumeStep, now)
	case inputIntensityUp:
		a.composer.SetEffects(fx.Enabled, fx.Intensity+params.IntensityStep)
		a.panelUntil = now.Add(effectsPanelTTL)
	case inputIntensityDown:
		a.composer.SetEffects(fx.Enabled, fx.Intensity-params.IntensityStep)
		a.panelUntil = now.Add(effectsPanelTTL)
	case inputToggleEffects:
		a.composer.SetEffects(!fx.Enabled, fx.Intensity)
		a.panelUntil = now.Add(effectsPanelTTL)
	}
	return false
}

// interact records a user interaction: playback starts on the first one and
// a failed audio start is retried on every later one.
func (a *App) interact() {
	if !a.interacted {
		a.interacted = true
		a.log.Println("interaction: starting audio")
	}
	a.startPlayback()
	a.retryAudio()
	if a.analyzer == nil {
		return
	}
	if !a.analyzerStarted {
		a.startAnalyzer()
		return
	}
	if !a.analyzer.Connected() && a.analyzer.Retry() {
		a.log.Println("audio source connected")
	}
}

func (a *App) setVolume(v float64, now time.Time) {
	a.volume = math.Round(clamp(v, 0, 1)*100) / 100
	if a.control != nil {
		a.control.SetVolume(a.volume)
	}
	a.panelUntil = now.Add(volumePanelTTL)
}

func (a *App) showMessage(text string, now time.Time) {
	a.message = text
	a.messageUntil = now.Add(messageTTL)
}

func (a *App) ui(now time.Time) scene.UI {
	ui := scene.UI{Prompt: !a.interacted}
	if now.Before(a.messageUntil) {
		ui.Message = a.message
	}
	if now.Before(a.panelUntil) {
		fx := a.composer.Effects()
		state := "off"
		if fx.Enabled {
			state = fmt.Sprintf("%.0f%%", fx.Intensity*100)
		}
		ui.Panel = append(ui.Panel,
			"effects "+state,
			fmt.Sprintf("volume %.0f%%", a.volume*100),
		)
	}
	if len(a.typed) > 0 {
		ui.Panel = append(ui.Panel, "> "+string(a.typed))
	}
	return ui
}

func (a *App) attachSource(src analyzer.Source) {
	a.detachSource()
	a.analyzer = analyzer.New(analyzer.DefaultConfig(), src)
	a.analyzerStarted = false
	if a.interacted || a.cfg.Capture || a.cfg.DisableAudio {
		a.startAnalyzer()
	}
}

func (a *App) startAnalyzer() {
	if err := a.analyzer.Start(); err != nil {
		a.log.Printf("analyzer: %v", err)
		return
	}
	a.analyzerStarted = true
	if !a.analyzer.Connected() {
		a.log.Println("audio source unavailable, using idle values")
	}
}

func (a *App) detachSource() {
	if a.analyzer == nil {
		return
	}
	if err := a.analyzer.Stop(); err != nil {
		a.log.Printf("analyzer: %v", err)
	}
	a.analyzer = nil
	a.analyzerStarted = false
}

func (a *App) ensureDimensions(now time.Time) {
	if a.renderer.Windowed() {
		return
	}
	fd := int(os.Stdout.Fd())
	if fd < 0 {
		return
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if renderHeight <= 0 {
		renderHeight = 1
	}

	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.renderer.Resize(w, renderHeight)
	cw, ch := a.renderer.CanvasSize()
	a.composer.Resize(cw, ch)
	if a.video != nil {
		if err := a.video.Resize(cw, ch, a.composer.VideoElapsed(now)); err != nil {
			a.log.Printf("video resize: %v", err)
		}
	}
}

func clearScreen() {
	fmt.Print("\x1b[2J")
	moveCursorHome()
}

func moveCursorHome() {
	fmt.Print("\x1b[H")
}

func hideCursor() {
	fmt.Print("\x1b[?25l")
}

func showCursor() {
	fmt.Print("\x1b[?25h")
}

func enterAltScreen() {
	fmt.Print("\x1b[?1049h")
}

func exitAltScreen() {
	fmt.Print("\x1b[?1049l\x1b[0m")
}
