package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// RGB is a linear color with channels in [0,1].
type RGB struct {
	R, G, B float64
}

// FromRGBA converts an 8-bit color, ignoring alpha.
func FromRGBA(c color.RGBA) RGB {
	return RGB{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// RGBA converts to an opaque 8-bit color.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{
		R: uint8(clampFloat(c.R*255+0.5, 0, 255)),
		G: uint8(clampFloat(c.G*255+0.5, 0, 255)),
		B: uint8(clampFloat(c.B*255+0.5, 0, 255)),
		A: 255,
	}
}

// Scale multiplies every channel by f.
func (c RGB) Scale(f float64) RGB {
	return RGB{R: c.R * f, G: c.G * f, B: c.B * f}
}

// Mix linearly interpolates between a and b.
func Mix(a, b RGB, t float64) RGB {
	return RGB{R: lerp(a.R, b.R, t), G: lerp(a.G, b.G, t), B: lerp(a.B, b.B, t)}
}

// ParseHex parses #RGB or #RRGGBB.
func ParseHex(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	alpha := uint8(255)
	if len(hex) == 8 {
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: alpha}, nil
}

// MustHex is ParseHex for compile-time palettes.
func MustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// HSL converts hue in degrees plus saturation and lightness in [0,1].
func HSL(h, s, l float64) RGB {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp01(s)
	l = clamp01(l)
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return RGB{R: r + m, G: g + m, B: b + m}
}

// BlendMode selects how drawing operations combine with the canvas.
type BlendMode int

const (
	SourceOver BlendMode = iota
	Screen
)

// Stop is one gradient color stop.
type Stop struct {
	Pos   float64
	Color RGB
	Alpha float64
}

// Canvas is an opaque RGB framebuffer that layers draw into.
type Canvas struct {
	width  int
	height int
	pix    []RGB
	mode   BlendMode
}

// NewCanvas allocates a width x height canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	return c
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Resize reallocates the framebuffer when dimensions change.
func (c *Canvas) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width == c.width && height == c.height {
		return
	}
	c.width = width
	c.height = height
	c.pix = make([]RGB, width*height)
}

// SetMode switches the blend mode and returns the previous one.
func (c *Canvas) SetMode(m BlendMode) BlendMode {
	prev := c.mode
	c.mode = m
	return prev
}

// Clear overwrites every pixel.
func (c *Canvas) Clear(col RGB) {
	for i := range c.pix {
		c.pix[i] = col
	}
}

// At returns the pixel at x, y or black outside the canvas.
func (c *Canvas) At(x, y int) RGB {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return RGB{}
	}
	return c.pix[y*c.width+x]
}

// Row exposes one row of pixels for read-only consumers.
func (c *Canvas) Row(y int) []RGB {
	return c.pix[y*c.width : (y+1)*c.width]
}

// Blend composites col with alpha a onto the pixel at x, y.
func (c *Canvas) Blend(x, y int, col RGB, a float64) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height || a <= 0 {
		return
	}
	if a > 1 {
		a = 1
	}
	i := y*c.width + x
	c.pix[i] = blendPixel(c.pix[i], col, a, c.mode)
}

func blendPixel(dst, src RGB, a float64, mode BlendMode) RGB {
	if mode == Screen {
		src = RGB{
			R: 1 - (1-dst.R)*(1-clamp01(src.R)),
			G: 1 - (1-dst.G)*(1-clamp01(src.G)),
			B: 1 - (1-dst.B)*(1-clamp01(src.B)),
		}
	}
	return RGB{
		R: clamp01(src.R*a + dst.R*(1-a)),
		G: clamp01(src.G*a + dst.G*(1-a)),
		B: clamp01(src.B*a + dst.B*(1-a)),
	}
}

// Fill composites a flat color over the whole canvas.
func (c *Canvas) Fill(col RGB, a float64) {
	if a <= 0 {
		return
	}
	for i := range c.pix {
		c.pix[i] = blendPixel(c.pix[i], col, clamp01(a), c.mode)
	}
}

// FillVertical paints a top-to-bottom linear gradient over the canvas.
func (c *Canvas) FillVertical(stops []Stop) {
	if len(stops) == 0 || c.height == 0 {
		return
	}
	for y := 0; y < c.height; y++ {
		t := 0.0
		if c.height > 1 {
			t = float64(y) / float64(c.height-1)
		}
		col, a := sampleStops(stops, t)
		for x := 0; x < c.width; x++ {
			c.Blend(x, y, col, a)
		}
	}
}

// FillRadial paints a radial gradient from r0 to r1 around cx, cy. When clip is
// positive only pixels within clip of the center are touched; otherwise the
// outer stop extends over the whole canvas.
func (c *Canvas) FillRadial(cx, cy, r0, r1, clip float64, stops []Stop) {
	if len(stops) == 0 || r1 <= r0 {
		return
	}
	x0, y0, x1, y1 := 0, 0, c.width-1, c.height-1
	if clip > 0 {
		x0, y0, x1, y1 = c.bounds(cx-clip, cy-clip, cx+clip, cy+clip)
	}
	span := r1 - r0
	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - cx
			d := math.Hypot(dx, dy)
			if clip > 0 && d > clip {
				continue
			}
			col, a := sampleStops(stops, (d-r0)/span)
			c.Blend(x, y, col, a)
		}
	}
}

// FillCircle paints a solid disc.
func (c *Canvas) FillCircle(cx, cy, r float64, col RGB, a float64) {
	if r <= 0 {
		return
	}
	x0, y0, x1, y1 := c.bounds(cx-r, cy-r, cx+r, cy+r)
	r2 := r * r
	hit := false
	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				c.Blend(x, y, col, a)
				hit = true
			}
		}
	}
	// sub-pixel discs still leave a mark
	if !hit {
		c.Blend(int(math.Floor(cx)), int(math.Floor(cy)), col, a*math.Min(1, r))
	}
}

// StrokeCircle paints a ring of the given line width.
func (c *Canvas) StrokeCircle(cx, cy, r, width float64, col RGB, a float64) {
	if r <= 0 {
		return
	}
	half := math.Max(0.5, width/2)
	outer := r + half
	x0, y0, x1, y1 := c.bounds(cx-outer, cy-outer, cx+outer, cy+outer)
	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - cx
			if math.Abs(math.Hypot(dx, dy)-r) <= half {
				c.Blend(x, y, col, a)
			}
		}
	}
}

// Line paints a segment with the given width.
func (c *Canvas) Line(x0, y0, x1, y1, width float64, col RGB, a float64) {
	half := math.Max(0.5, width/2)
	bx0, by0, bx1, by1 := c.bounds(math.Min(x0, x1)-half, math.Min(y0, y1)-half, math.Max(x0, x1)+half, math.Max(y0, y1)+half)
	dx := x1 - x0
	dy := y1 - y0
	lenSq := dx*dx + dy*dy
	for y := by0; y <= by1; y++ {
		py := float64(y) + 0.5
		for x := bx0; x <= bx1; x++ {
			px := float64(x) + 0.5
			t := 0.0
			if lenSq > 0 {
				t = clamp01(((px-x0)*dx + (py-y0)*dy) / lenSq)
			}
			if math.Hypot(px-(x0+t*dx), py-(y0+t*dy)) <= half {
				c.Blend(x, y, col, a)
			}
		}
	}
}

// Polyline strokes consecutive points.
func (c *Canvas) Polyline(pts [][2]float64, width float64, col RGB, a float64) {
	for i := 1; i < len(pts); i++ {
		c.Line(pts[i-1][0], pts[i-1][1], pts[i][0], pts[i][1], width, col, a)
	}
}

// FillPolygon paints a closed polygon using the even-odd rule.
func (c *Canvas) FillPolygon(pts [][2]float64, col RGB, a float64) {
	if len(pts) < 3 {
		return
	}
	minX, minY := pts[0][0], pts[0][1]
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	x0, y0, x1, y1 := c.bounds(minX, minY, maxX, maxY)
	for y := y0; y <= y1; y++ {
		py := float64(y) + 0.5
		for x := x0; x <= x1; x++ {
			if insidePolygon(pts, float64(x)+0.5, py) {
				c.Blend(x, y, col, a)
			}
		}
	}
}

func insidePolygon(pts [][2]float64, x, y float64) bool {
	inside := false
	j := len(pts) - 1
	for i := range pts {
		xi, yi := pts[i][0], pts[i][1]
		xj, yj := pts[j][0], pts[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// DrawImage scales src into the rectangle at x, y of size w x h using nearest
// sampling. Source alpha is honored and multiplied by a.
func (c *Canvas) DrawImage(src image.Image, x, y, w, h int, a float64) {
	if src == nil || w <= 0 || h <= 0 {
		return
	}
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return
	}
	for dy := 0; dy < h; dy++ {
		ty := y + dy
		if ty < 0 || ty >= c.height {
			continue
		}
		sy := b.Min.Y + dy*sh/h
		for dx := 0; dx < w; dx++ {
			tx := x + dx
			if tx < 0 || tx >= c.width {
				continue
			}
			sx := b.Min.X + dx*sw/w
			r, g, bb, al := src.At(sx, sy).RGBA()
			if al == 0 {
				continue
			}
			alpha := float64(al) / 0xffff
			// un-premultiply
			col := RGB{R: float64(r) / float64(al), G: float64(g) / float64(al), B: float64(bb) / float64(al)}
			c.Blend(tx, ty, col, alpha*a)
		}
	}
}

// DrawRGB24 scales a packed rgb24 frame over the whole canvas.
func (c *Canvas) DrawRGB24(frame []byte, fw, fh int) {
	if fw <= 0 || fh <= 0 || len(frame) < fw*fh*3 {
		return
	}
	for y := 0; y < c.height; y++ {
		sy := y * fh / c.height
		row := c.pix[y*c.width : (y+1)*c.width]
		for x := range row {
			sx := x * fw / c.width
			o := (sy*fw + sx) * 3
			row[x] = RGB{R: float64(frame[o]) / 255, G: float64(frame[o+1]) / 255, B: float64(frame[o+2]) / 255}
		}
	}
}

// Image snapshots the canvas as an 8-bit RGBA image.
func (c *Canvas) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	c.WriteRGBA(img.Pix, img.Stride)
	return img
}

// WriteRGBA encodes the canvas into an RGBA byte buffer with the given stride.
func (c *Canvas) WriteRGBA(buf []byte, stride int) {
	for y := 0; y < c.height; y++ {
		row := c.Row(y)
		off := y * stride
		for x, p := range row {
			o := off + x*4
			if o+3 >= len(buf) {
				return
			}
			buf[o] = byte(clampFloat(p.R*255+0.5, 0, 255))
			buf[o+1] = byte(clampFloat(p.G*255+0.5, 0, 255))
			buf[o+2] = byte(clampFloat(p.B*255+0.5, 0, 255))
			buf[o+3] = 255
		}
	}
}

func (c *Canvas) bounds(fx0, fy0, fx1, fy1 float64) (int, int, int, int) {
	x0 := clampInt(int(math.Floor(fx0)), 0, c.width-1)
	y0 := clampInt(int(math.Floor(fy0)), 0, c.height-1)
	x1 := clampInt(int(math.Ceil(fx1)), 0, c.width-1)
	y1 := clampInt(int(math.Ceil(fy1)), 0, c.height-1)
	if fx1 < 0 || fy1 < 0 || fx0 >= float64(c.width) || fy0 >= float64(c.height) {
		return 0, 0, -1, -1
	}
	return x0, y0, x1, y1
}

func sampleStops(stops []Stop, t float64) (RGB, float64) {
	if t <= stops[0].Pos {
		return stops[0].Color, stops[0].Alpha
	}
	last := stops[len(stops)-1]
	if t >= last.Pos {
		return last.Color, last.Alpha
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].Pos {
			a, b := stops[i-1], stops[i]
			span := b.Pos - a.Pos
			if span <= 0 {
				return b.Color, b.Alpha
			}
			f := (t - a.Pos) / span
			return Mix(a.Color, b.Color, f), lerp(a.Alpha, b.Alpha, f)
		}
	}
	return last.Color, last.Alpha
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
