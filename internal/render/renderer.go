package render

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ErrRendererQuit is returned by Present when the window was closed.
var ErrRendererQuit = errors.New("renderer quit")

type colorMode string

const (
	colorModeANSI256   colorMode = "ansi256"
	colorModeTrueColor colorMode = "truecolor"
	colorModeMono      colorMode = "mono"
)

var colorModeNames = []string{
	string(colorModeANSI256),
	string(colorModeTrueColor),
	string(colorModeMono),
}

// ColorModeNames returns the supported color modes.
func ColorModeNames() []string {
	out := make([]string, len(colorModeNames))
	copy(out, colorModeNames)
	sort.Strings(out)
	return out
}

func parseColorMode(name string) colorMode {
	switch strings.ToLower(name) {
	case "truecolor", "24bit", "rgb":
		return colorModeTrueColor
	case "mono", "monochrome", "bw", "none":
		return colorModeMono
	default:
		return colorModeANSI256
	}
}

type backend int

const (
	backendTerminal backend = iota
	backendSDL
)

// Renderer presents a composited canvas either as terminal half-block cells
// or in an SDL window.
type Renderer struct {
	cols        int
	rows        int
	palette     []rune
	paletteName string
	colorMode   colorMode
	mode        backend
	sdl         *sdlState
	winW        int
	winH        int
	statusStyle lipgloss.Style
}

// Frame contains the rendered lines and status. Present is set for windowed
// backends and must be called to show the frame.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

// Status is the telemetry shown in the status bar.
type Status struct {
	Theme     string
	Title     string
	Volume    float64
	Bass      float64
	FPS       float64
	Particles int
	Shader    string
	Intensity float64
	Effects   bool
	Fallback  bool
}

const halfBlock = '▀'

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
	precomputedBG   [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
		precomputedBG[i] = "\x1b[48;5;" + strconv.Itoa(i) + "m"
	}
}

// New creates a Renderer. backendName "sdl" opens a window of winW x winH.
func New(cols, rows int, paletteName, colorModeName, backendName string, winW, winH int) (*Renderer, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", cols, rows)
	}
	r := &Renderer{
		cols:      cols,
		rows:      rows,
		winW:      winW,
		winH:      winH,
		colorMode: parseColorMode(colorModeName),
		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}).
			Background(lipgloss.AdaptiveColor{Light: "#DDDDDD", Dark: "#1A1A1A"}),
	}
	r.SetPalette(paletteName)
	if strings.EqualFold(backendName, "sdl") {
		if r.winW <= 0 || r.winH <= 0 {
			r.winW, r.winH = 960, 540
		}
		if err := r.initSDL(r.winW, r.winH); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetPalette selects the glyph palette used in mono mode.
func (r *Renderer) SetPalette(name string) {
	if name == "" {
		name = "default"
	}
	r.palette = Palette(name)
	r.paletteName = name
}

func (r *Renderer) PaletteName() string   { return r.paletteName }
func (r *Renderer) ColorModeName() string { return string(r.colorMode) }

// Windowed reports whether frames go to a window instead of the terminal.
func (r *Renderer) Windowed() bool { return r.mode == backendSDL }

// CanvasSize returns the pixel size the composer should render at.
func (r *Renderer) CanvasSize() (int, int) {
	if r.mode == backendSDL {
		return r.winW, r.winH
	}
	if r.colorMode == colorModeMono {
		return r.cols, r.rows
	}
	return r.cols, r.rows * 2
}

// Resize updates the terminal cell grid.
func (r *Renderer) Resize(cols, rows int) {
	if cols > 0 {
		r.cols = cols
	}
	if rows > 0 {
		r.rows = rows
	}
	r.resizeSDL()
}

// Render converts the canvas into a presentable frame.
func (r *Renderer) Render(c *Canvas, st Status) Frame {
	status := buildStatus(st)
	if r.mode == backendSDL {
		return r.renderSDL(c, status)
	}
	if c == nil || r.cols <= 0 || r.rows <= 0 {
		return Frame{Status: status}
	}

	height := r.rows
	lines := make([]string, height)

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
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
			var builder strings.Builder
			for y := range rowJobs {
				builder.Reset()
				r.encodeRow(&builder, c, y)
				lines[y] = builder.String()
			}
		}()
	}
	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return Frame{Lines: lines, Status: status}
}

func (r *Renderer) encodeRow(b *strings.Builder, c *Canvas, y int) {
	width := r.cols
	switch r.colorMode {
	case colorModeMono:
		b.Grow(width)
		for x := 0; x < width; x++ {
			p := c.At(x, y)
			lum := 0.2126*p.R + 0.7152*p.G + 0.0722*p.B
			idx := clampInt(int(lum*float64(len(r.palette)-1)+0.5), 0, len(r.palette)-1)
			b.WriteRune(r.palette[idx])
		}
		return
	case colorModeTrueColor:
		b.Grow(width * 40)
		var lastTop, lastBot [3]int
		lastTop[0], lastBot[0] = -1, -1
		for x := 0; x < width; x++ {
			top := quantize(c.At(x, 2*y))
			bot := quantize(c.At(x, 2*y+1))
			if top != lastTop {
				fmt.Fprintf(b, "\x1b[38;2;%d;%d;%dm", top[0], top[1], top[2])
				lastTop = top
			}
			if bot != lastBot {
				fmt.Fprintf(b, "\x1b[48;2;%d;%d;%dm", bot[0], bot[1], bot[2])
				lastBot = bot
			}
			b.WriteRune(halfBlock)
		}
	default:
		b.Grow(width * 12)
		lastFG, lastBG := -1, -1
		for x := 0; x < width; x++ {
			top := c.At(x, 2*y)
			bot := c.At(x, 2*y+1)
			fg := rgbToANSI(top.R, top.G, top.B)
			bg := rgbToANSI(bot.R, bot.G, bot.B)
			if fg != lastFG {
				b.WriteString(colorCode(fg))
				lastFG = fg
			}
			if bg != lastBG {
				b.WriteString(precomputedBG[clampInt(bg, 0, 255)])
				lastBG = bg
			}
			b.WriteRune(halfBlock)
		}
	}
	b.WriteString(resetANSI)
}

func quantize(p RGB) [3]int {
	return [3]int{
		int(clampFloat(p.R*255+0.5, 0, 255)),
		int(clampFloat(p.G*255+0.5, 0, 255)),
		int(clampFloat(p.B*255+0.5, 0, 255)),
	}
}

// StatusLine pads or truncates text to width and styles it.
func (r *Renderer) StatusLine(text string, width int) string {
	if width <= 0 {
		return r.statusStyle.Render(text)
	}
	runes := []rune(text)
	if len(runes) >= width {
		text = string(runes[:width])
	} else {
		text += strings.Repeat(" ", width-len(runes))
	}
	return r.statusStyle.Render(text)
}

// Close tears down any window resources.
func (r *Renderer) Close() error {
	return r.closeSDL()
}

func colorCode(index int) string {
	if index < 0 {
		index = 0
	} else if index >= len(precomputedANSI) {
		index = len(precomputedANSI) - 1
	}
	return precomputedANSI[index]
}

func rgbToANSI(r, g, b float64) int {
	r = clamp01(r)
	g = clamp01(g)
	b = clamp01(b)

	// Grayscale palette for low saturation/contrast
	if math.Abs(r-g) < 0.02 && math.Abs(g-b) < 0.02 {
		gray := int(clampFloat(math.Round(r*23), 0, 23))
		return 232 + gray
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func buildStatus(st Status) string {
	var builder strings.Builder
	builder.Grow(128)
	builder.WriteString(strings.ToUpper(st.Theme))
	if st.Title != "" {
		builder.WriteString(" | ")
		builder.WriteString(st.Title)
	}
	builder.WriteString(" | vol ")
	appendFloat(&builder, st.Volume, 2)
	builder.WriteString(" bass ")
	appendFloat(&builder, st.Bass, 2)
	if st.Fallback {
		builder.WriteString(" (idle)")
	}
	builder.WriteString(" | fx ")
	if st.Effects {
		appendFloat(&builder, st.Intensity*100, 0)
		builder.WriteString("%")
	} else {
		builder.WriteString("off")
	}
	builder.WriteString(" shader=")
	if st.Shader == "" {
		builder.WriteString("none")
	} else {
		builder.WriteString(st.Shader)
	}
	builder.WriteString(" particles ")
	builder.WriteString(strconv.Itoa(st.Particles))
	builder.WriteString(" fps ")
	appendFloat(&builder, st.FPS, 1)
	return builder.String()
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}
