package render

import (
	"testing"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/params"
)

func shaderUniforms(theme string, elapsed, intensity float64, w, h int) params.Uniforms {
	return params.Build(analyzer.BandEnergy{}, elapsed, intensity, w, h, theme, params.DefaultGains())
}

func TestQualityModeBlock(t *testing.T) {
	cases := map[string]int{"high": 1, "balanced": 2, "eco": 3, "bogus": 2}
	for name, want := range cases {
		if got := parseQualityMode(name).block(); got != want {
			t.Fatalf("%s block=%d want %d", name, got, want)
		}
	}
}

func TestNewShaderFallsBackToCPU(t *testing.T) {
	s := NewShader("gl", "eco")
	if !SupportsGL() {
		if _, ok := s.(*CPUShader); !ok {
			t.Fatalf("expected CPU fallback, got %s", s.Name())
		}
	}
	if _, ok := NewShader("cpu", "eco").(*CPUShader); !ok {
		t.Fatalf("cpu backend should build the software program")
	}
}

func TestIdleShaderAnimates(t *testing.T) {
	for _, theme := range []string{"wave-beach", "groovie-psychedelic", "metal-destruction", "reggaeton-bounce"} {
		s := NewCPUShader("balanced")
		a := NewCanvas(48, 27)
		b := NewCanvas(48, 27)
		if !s.Initialize(a) {
			t.Fatalf("initialize failed")
		}
		s.Render(a, shaderUniforms(theme, 1, 0.8, 48, 27))
		s.Render(b, shaderUniforms(theme, 2.5, 0.8, 48, 27))
		if canvasesEqual(a, b) {
			t.Fatalf("%s: idle shader did not change over time", theme)
		}
		if canvasesEqual(a, NewCanvas(48, 27)) {
			t.Fatalf("%s: idle shader drew nothing", theme)
		}
	}
}

func TestZeroIntensityLeavesCanvas(t *testing.T) {
	s := NewCPUShader("high")
	c := NewCanvas(16, 9)
	s.Initialize(c)
	s.Render(c, shaderUniforms("metal-destruction", 3, 0, 16, 9))
	if !canvasesEqual(c, NewCanvas(16, 9)) {
		t.Fatalf("zero intensity should leave the canvas untouched")
	}
}

func TestViewportResync(t *testing.T) {
	s := NewCPUShader("eco")
	small := NewCanvas(10, 10)
	s.Initialize(small)
	s.Render(small, shaderUniforms("wave-beach", 0, 1, 10, 10))
	if s.resyncCount() != 0 {
		t.Fatalf("unexpected resync")
	}
	big := NewCanvas(30, 20)
	s.Render(big, shaderUniforms("wave-beach", 0, 1, 30, 20))
	if s.resyncCount() != 1 {
		t.Fatalf("resyncs=%d want 1", s.resyncCount())
	}
	if w, h := s.Viewport(); w != 30 || h != 20 {
		t.Fatalf("viewport=%dx%d want 30x20", w, h)
	}
}

func TestUninitializedShaderIsNoop(t *testing.T) {
	s := NewCPUShader("eco")
	c := NewCanvas(8, 8)
	s.Render(c, shaderUniforms("wave-beach", 1, 1, 8, 8))
	if !canvasesEqual(c, NewCanvas(8, 8)) {
		t.Fatalf("render before initialize should draw nothing")
	}
}

func TestFBMRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := fbm(float64(i)*0.37, float64(i)*0.11)
		if v < 0 || v > 1 {
			t.Fatalf("fbm out of range: %v", v)
		}
	}
}
