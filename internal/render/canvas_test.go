package render

import (
	"math"
	"testing"
)

func TestParseHex(t *testing.T) {
	cases := map[string][3]uint8{
		"#FF4500": {255, 69, 0},
		"00ffff":  {0, 255, 255},
		"#fff":    {255, 255, 255},
	}
	for in, want := range cases {
		c, err := ParseHex(in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", in, err)
		}
		if c.R != want[0] || c.G != want[1] || c.B != want[2] || c.A != 255 {
			t.Fatalf("ParseHex(%q)=%v want %v", in, c, want)
		}
	}
	if c, err := ParseHex("#3f1f0180"); err != nil || c.R != 0x3f || c.A != 0x80 {
		t.Fatalf("ParseHex with alpha = %v, %v", c, err)
	}
	if _, err := ParseHex("#12"); err == nil {
		t.Fatalf("expected error for short hex")
	}
	if _, err := ParseHex("#zzzzzz"); err == nil {
		t.Fatalf("expected error for non-hex digits")
	}
}

func TestSourceOverBlend(t *testing.T) {
	c := NewCanvas(2, 2)
	c.Clear(RGB{R: 1})
	c.Blend(0, 0, RGB{B: 1}, 0.25)
	got := c.At(0, 0)
	if math.Abs(got.R-0.75) > 1e-9 || math.Abs(got.B-0.25) > 1e-9 {
		t.Fatalf("unexpected blend result %+v", got)
	}
	if c.At(1, 1) != (RGB{R: 1}) {
		t.Fatalf("untouched pixel changed")
	}
}

func TestScreenBlendNeverDarkens(t *testing.T) {
	c := NewCanvas(1, 1)
	c.Clear(RGB{R: 0.5, G: 0.5, B: 0.5})
	c.SetMode(Screen)
	c.Blend(0, 0, RGB{R: 0.2}, 1)
	got := c.At(0, 0)
	if got.R < 0.5 || got.G < 0.5 || got.B < 0.5 {
		t.Fatalf("screen blend darkened pixel: %+v", got)
	}
}

func TestBlendOutsideIsIgnored(t *testing.T) {
	c := NewCanvas(2, 2)
	c.Blend(-1, 0, RGB{R: 1}, 1)
	c.Blend(0, 5, RGB{R: 1}, 1)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if c.At(x, y) != (RGB{}) {
				t.Fatalf("pixel %d,%d changed", x, y)
			}
		}
	}
}

func TestFillCircleStaysInBounds(t *testing.T) {
	c := NewCanvas(20, 20)
	c.FillCircle(10, 10, 3, RGB{G: 1}, 1)
	if c.At(10, 10).G != 1 {
		t.Fatalf("center should be filled")
	}
	if c.At(0, 0).G != 0 || c.At(19, 19).G != 0 {
		t.Fatalf("corners should be untouched")
	}
}

func TestHSLPrimaries(t *testing.T) {
	cases := map[float64]RGB{
		0:   {R: 1},
		120: {G: 1},
		240: {B: 1},
	}
	for h, want := range cases {
		got := HSL(h, 1, 0.5)
		if math.Abs(got.R-want.R) > 1e-9 || math.Abs(got.G-want.G) > 1e-9 || math.Abs(got.B-want.B) > 1e-9 {
			t.Fatalf("HSL(%f)=%+v want %+v", h, got, want)
		}
	}
}

func TestDrawRGB24Scales(t *testing.T) {
	frame := []byte{255, 0, 0, 0, 0, 255}
	c := NewCanvas(4, 2)
	c.DrawRGB24(frame, 2, 1)
	if c.At(0, 1).R != 1 || c.At(3, 0).B != 1 {
		t.Fatalf("unexpected scaled frame %+v %+v", c.At(0, 1), c.At(3, 0))
	}
}

func TestSampleStopsInterpolates(t *testing.T) {
	stops := []Stop{
		{Pos: 0, Color: RGB{}, Alpha: 0},
		{Pos: 1, Color: RGB{R: 1}, Alpha: 1},
	}
	col, a := sampleStops(stops, 0.5)
	if math.Abs(col.R-0.5) > 1e-9 || math.Abs(a-0.5) > 1e-9 {
		t.Fatalf("unexpected midpoint %+v %f", col, a)
	}
	if _, a := sampleStops(stops, 2); a != 1 {
		t.Fatalf("stops should clamp past the end")
	}
}
