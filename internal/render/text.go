package render

import (
	"image"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	headline     = "STARTING SOON"
	promptText   = "press any key to start audio"
	eqBars       = 8
	glyphWidth   = 7
	glyphHeight  = 13
	glyphAscent  = 11
	messageLimit = 0.8
)

// AnimationIntensity maps volume to the headline animation strength.
func AnimationIntensity(volume float64) float64 {
	return clampFloat(0.4+volume*0.3, 0.4, 0.7)
}

// AnimationPeriod returns the headline animation cycle in seconds.
func AnimationPeriod(a float64) float64 {
	return math.Max(1.5, 3-a*0.5)
}

// HeadlineOpacity returns the headline opacity for intensity a.
func HeadlineOpacity(a float64) float64 {
	return 0.9 + a*0.05
}

// TextState is everything the text layer needs for one frame.
type TextState struct {
	Animation string
	Primary   RGB
	Volume    float64
	Bins      []uint8
	Elapsed   float64
	Message   string
	Prompt    bool
	Panel     []string
}

// TextLayer draws the headline, equalizer, prompt, live message and the
// effects panel using a fixed bitmap font.
type TextLayer struct {
	face   font.Face
	glyphs map[rune]*image.Alpha
}

// NewTextLayer builds a text layer on basicfont.
func NewTextLayer() *TextLayer {
	return &TextLayer{
		face:   basicfont.Face7x13,
		glyphs: make(map[rune]*image.Alpha),
	}
}

func (t *TextLayer) glyph(r rune) *image.Alpha {
	if g, ok := t.glyphs[r]; ok {
		return g
	}
	mask := image.NewAlpha(image.Rect(0, 0, glyphWidth, glyphHeight))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.White,
		Face: t.face,
		Dot:  fixed.P(0, glyphAscent),
	}
	d.DrawString(string(r))
	t.glyphs[r] = mask
	return mask
}

// Draw renders every text element for st.
func (t *TextLayer) Draw(c *Canvas, st TextState) {
	prev := c.SetMode(SourceOver)
	defer c.SetMode(prev)

	u := unitScale(c)
	w := float64(c.Width())
	h := float64(c.Height())

	a := AnimationIntensity(st.Volume)
	period := AnimationPeriod(a)
	phase := 2 * math.Pi * st.Elapsed / period
	opacity := HeadlineOpacity(a)

	scale := math.Max(1, 96*u/glyphHeight)
	if fit := w * 0.95 / float64(len(headline)*glyphWidth); scale > fit {
		scale = math.Max(0.5, fit)
	}
	baseY := h - 128*u - glyphHeight*scale - 22*u
	if baseY < 0 {
		baseY = h * 0.6
	}
	t.drawHeadline(c, st.Animation, w/2, baseY, scale, phase, st.Primary, opacity)
	t.drawEqualizer(c, st.Bins, w/2, baseY+glyphHeight*scale+math.Max(1, 24*u), u, st.Primary)

	if st.Prompt {
		ps := math.Max(1, 14*u/glyphHeight)
		pulse := 0.8 * (0.75 + 0.25*math.Cos(st.Elapsed*math.Pi))
		t.drawPanel(c, []string{promptText}, w/2, math.Max(1, 24*u), ps, pulse)
	}
	if len(st.Panel) > 0 {
		ps := math.Max(1, 14*u/glyphHeight)
		lineH := float64(glyphHeight) * ps
		t.drawPanelAt(c, st.Panel, 16*u, h-64*u-lineH*float64(len(st.Panel)), ps, 0.9)
	}
	if st.Message != "" {
		t.drawMessage(c, st.Message, u)
	}
}

func (t *TextLayer) drawHeadline(c *Canvas, animation string, cx, y, scale, phase float64, col RGB, opacity float64) {
	anim := strings.ToLower(animation)
	adv := glyphWidth * scale
	x0 := cx - adv*float64(len(headline))/2
	for i, r := range headline {
		fi := float64(i)
		dx, dy, gs := 0.0, 0.0, 1.0
		switch {
		case strings.Contains(anim, "wave"):
			dy = math.Sin(phase+fi*0.5) * 3 * scale / 4
		case strings.Contains(anim, "glitch") || strings.Contains(anim, "metal"):
			if math.Sin(phase*3+fi*1.7) > 0.85 {
				dx = math.Copysign(scale, math.Sin(fi+phase*7))
			}
		case strings.Contains(anim, "bounce"):
			dy = -math.Abs(math.Sin(phase)) * 2 * scale
		case strings.Contains(anim, "chaos"):
			dy = math.Sin(phase*2+fi) * scale / 2
			dx = math.Cos(phase*2+fi) * scale / 2
		default:
			gs = 1 + 0.04*math.Sin(phase)
		}
		gx := x0 + fi*adv + dx - (gs-1)*adv/2
		gy := y + dy - (gs-1)*glyphHeight*scale/2
		if strings.Contains(anim, "psychedelic") || strings.Contains(anim, "groovie") {
			// glow halo
			t.blitGlyph(c, r, gx-scale/2, gy-scale/2, scale*gs*1.08, col, opacity*0.25)
		}
		t.blitGlyph(c, r, gx, gy, scale*gs, col, opacity)
	}
}

func (t *TextLayer) blitGlyph(c *Canvas, r rune, x, y, scale float64, col RGB, alpha float64) {
	if r == ' ' {
		return
	}
	mask := t.glyph(r)
	gw := int(math.Ceil(glyphWidth * scale))
	gh := int(math.Ceil(glyphHeight * scale))
	ix, iy := int(math.Round(x)), int(math.Round(y))
	for dy := 0; dy < gh; dy++ {
		sy := int(float64(dy) / scale)
		if sy >= glyphHeight {
			break
		}
		for dx := 0; dx < gw; dx++ {
			sx := int(float64(dx) / scale)
			if sx >= glyphWidth {
				break
			}
			if a := mask.AlphaAt(sx, sy).A; a > 0 {
				c.Blend(ix+dx, iy+dy, col, alpha*float64(a)/255)
			}
		}
	}
}

func (t *TextLayer) drawString(c *Canvas, s string, x, y, scale float64, col RGB, alpha float64) {
	for i, r := range []rune(s) {
		t.blitGlyph(c, r, x+float64(i)*glyphWidth*scale, y, scale, col, alpha)
	}
}

func (t *TextLayer) drawEqualizer(c *Canvas, bins []uint8, cx, y, u float64, col RGB) {
	barW := math.Max(1, 4*u)
	gap := math.Max(1, 4*u)
	total := eqBars*barW + (eqBars-1)*gap
	x := cx - total/2
	for i := 0; i < eqBars; i++ {
		v := 0.0
		if i < len(bins) {
			v = float64(bins[i]) / 255
		}
		bh := math.Max(1, math.Max(6, math.Min(16, v*12))*u)
		bx := x + float64(i)*(barW+gap)
		for py := int(y); py < int(y+bh); py++ {
			for px := int(bx); px < int(bx+barW); px++ {
				c.Blend(px, py, col, 0.7+v*0.2)
			}
		}
	}
}

func (t *TextLayer) drawPanel(c *Canvas, lines []string, cx, y, scale, alpha float64) {
	longest := 0
	for _, l := range lines {
		longest = max(longest, len([]rune(l)))
	}
	x := cx - float64(longest)*glyphWidth*scale/2
	t.drawPanelAt(c, lines, x, y, scale, alpha)
}

func (t *TextLayer) drawPanelAt(c *Canvas, lines []string, x, y, scale, alpha float64) {
	longest := 0
	for _, l := range lines {
		longest = max(longest, len([]rune(l)))
	}
	pad := math.Max(1, 4*scale)
	pw := float64(longest)*glyphWidth*scale + 2*pad
	lineH := glyphHeight * scale
	ph := lineH*float64(len(lines)) + 2*pad
	x0, y0, x1, y1 := c.bounds(x-pad, y-pad, x-pad+pw, y-pad+ph)
	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			c.Blend(px, py, RGB{}, 0.5)
		}
	}
	for i, l := range lines {
		t.drawString(c, l, x, y+float64(i)*lineH, scale, whiteRGB, alpha)
	}
}

func (t *TextLayer) drawMessage(c *Canvas, msg string, u float64) {
	w := float64(c.Width())
	h := float64(c.Height())
	c.FillRadial(w/2, h/2, 0, math.Hypot(w, h)/2, 0, []Stop{
		{Pos: 0, Color: RGB{}, Alpha: 0.4},
		{Pos: 1, Color: RGB{}, Alpha: 0.7},
	})

	scale := math.Max(1, 64*u/glyphHeight)
	perLine := int(w * messageLimit / (glyphWidth * scale))
	if perLine < 4 {
		scale = math.Max(0.5, w*messageLimit/(4*glyphWidth))
		perLine = 4
	}
	lines := wrapText(msg, perLine)
	lineH := glyphHeight * scale * 1.2
	top := h/2 - lineH*float64(len(lines))/2
	longest := 0
	for _, l := range lines {
		longest = max(longest, len([]rune(l)))
	}
	pad := 24 * u
	half := float64(longest)*glyphWidth*scale/2 + pad
	x0, y0, x1, y1 := c.bounds(w/2-half, top-pad, w/2+half, top+lineH*float64(len(lines))+pad)
	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			c.Blend(px, py, whiteRGB, 0.08)
		}
	}
	for i, l := range lines {
		lw := float64(len([]rune(l))) * glyphWidth * scale
		t.drawString(c, l, w/2-lw/2, top+float64(i)*lineH, scale, whiteRGB, 1)
	}
}

// Notice draws a centered single-line panel, used for fallback states such as
// a missing background video.
func (t *TextLayer) Notice(c *Canvas, msg string) {
	prev := c.SetMode(SourceOver)
	defer c.SetMode(prev)

	u := unitScale(c)
	scale := math.Max(1, 24*u/glyphHeight)
	t.drawPanel(c, []string{msg}, float64(c.Width())/2, float64(c.Height())/2-glyphHeight*scale/2, scale, 1)
}

// wrapText breaks s into lines of at most width runes on word boundaries.
func wrapText(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		wr := []rune(word)
		for len(wr) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(wr[:width]))
			wr = wr[width:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, wr...)
		case len(cur)+1+len(wr) <= width:
			cur = append(cur, ' ')
			cur = append(cur, wr...)
		default:
			lines = append(lines, string(cur))
			cur = append([]rune(nil), wr...)
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
