package render

import "testing"

func TestWatermarkTransients(t *testing.T) {
	cases := map[string]struct {
		bass float64
		want int
	}{
		"small rise": {bass: 0.16, want: 1},
		"strong hit": {bass: 0.6, want: 2},
		"no rise":    {bass: 0.12, want: 0},
	}
	for name, tc := range cases {
		w := NewWatermark(nil, 30)
		w.Layout(1920, 1080)
		w.Update(0.1)
		before := len(w.Ripples())
		if got := w.Update(tc.bass); got != tc.want {
			t.Fatalf("%s: spawned %d want %d", name, got, tc.want)
		}
		if len(w.Ripples()) != before+tc.want {
			t.Fatalf("%s: ripples=%d want %d", name, len(w.Ripples()), before+tc.want)
		}
	}
}

func TestWatermarkIgnoresQuietBass(t *testing.T) {
	w := NewWatermark(nil, 30)
	w.Layout(1920, 1080)
	if got := w.Update(0.07); got != 0 {
		t.Fatalf("bass under the floor spawned %d ripples", got)
	}
}

func TestRipplesDecayAndExpire(t *testing.T) {
	w := NewWatermark(nil, 30)
	w.Layout(1920, 1080)
	w.Update(0.9)
	first := w.Ripples()[0]
	w.Update(0.9)
	next := w.Ripples()[0]
	if next.Alpha >= first.Alpha || next.Radius <= first.Radius {
		t.Fatalf("ripple did not advance: %+v -> %+v", first, next)
	}
	for i := 0; i < 400; i++ {
		w.Update(0.9)
	}
	if len(w.Ripples()) != 0 {
		t.Fatalf("ripples should expire, %d left", len(w.Ripples()))
	}
}

func TestWatermarkScaleBounded(t *testing.T) {
	w := NewWatermark(nil, 60)
	w.Layout(640, 360)
	for i := 0; i < 120; i++ {
		bass := 0.0
		if i%4 == 0 {
			bass = 1
		}
		w.Update(bass)
		if s := w.Scale(); s < 1 || s > logoScaleMax {
			t.Fatalf("scale %v outside [1, %v]", s, logoScaleMax)
		}
	}
}

func TestWatermarkDrawsBadge(t *testing.T) {
	c := NewCanvas(320, 180)
	w := NewWatermark(nil, 30)
	w.Layout(c.Width(), c.Height())
	w.Update(0.5)
	w.Draw(c)
	if canvasesEqual(c, NewCanvas(320, 180)) {
		t.Fatalf("watermark drew nothing")
	}
}
