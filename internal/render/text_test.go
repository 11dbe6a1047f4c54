package render

import (
	"math"
	"strings"
	"testing"
)

func TestAnimationCurves(t *testing.T) {
	cases := map[float64]struct{ intensity, period, opacity float64 }{
		0:   {0.4, 2.8, 0.92},
		0.5: {0.55, 2.725, 0.9275},
		1:   {0.7, 2.65, 0.935},
		3:   {0.7, 2.65, 0.935},
	}
	for volume, want := range cases {
		a := AnimationIntensity(volume)
		if math.Abs(a-want.intensity) > 1e-9 {
			t.Fatalf("volume %v intensity=%v want %v", volume, a, want.intensity)
		}
		if p := AnimationPeriod(a); math.Abs(p-want.period) > 1e-9 {
			t.Fatalf("volume %v period=%v want %v", volume, p, want.period)
		}
		if o := HeadlineOpacity(a); math.Abs(o-want.opacity) > 1e-9 {
			t.Fatalf("volume %v opacity=%v want %v", volume, o, want.opacity)
		}
	}
}

func TestWrapText(t *testing.T) {
	cases := map[string]struct {
		in    string
		width int
		want  []string
	}{
		"fits":  {in: "be right back", width: 20, want: []string{"be right back"}},
		"wraps": {in: "be right back", width: 8, want: []string{"be right", "back"}},
		"long":  {in: "supercalifragilistic", width: 8, want: []string{"supercal", "ifragili", "stic"}},
		"empty": {in: "   ", width: 8, want: nil},
	}
	for name, tc := range cases {
		got := wrapText(tc.in, tc.width)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Fatalf("%s: got %q want %q", name, got, tc.want)
		}
	}
}

func TestTextLayerDraws(t *testing.T) {
	layer := NewTextLayer()
	for _, anim := range []string{"wave-beach", "funky-chaos", "funky-glitch", "groovie-psychedelic", "metal-destruction", "reggaeton-bounce"} {
		c := NewCanvas(320, 180)
		layer.Draw(c, TextState{
			Animation: anim,
			Primary:   FromRGBA(MustHex("#FF69B4")),
			Volume:    0.4,
			Bins:      []uint8{200, 180, 120, 90, 60, 40, 20, 10},
			Elapsed:   1.2,
			Prompt:    true,
			Message:   "back in five",
			Panel:     []string{"effects: on"},
		})
		if canvasesEqual(c, NewCanvas(320, 180)) {
			t.Fatalf("%s: text layer drew nothing", anim)
		}
	}
}

func TestNoticeDraws(t *testing.T) {
	c := NewCanvas(320, 180)
	NewTextLayer().Notice(c, "video unavailable")
	if canvasesEqual(c, NewCanvas(320, 180)) {
		t.Fatalf("notice drew nothing")
	}
}
