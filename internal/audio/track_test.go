package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestTrack(t *testing.T) *Track {
	t.Helper()
	data := writeWAV(t, OutputRate, 2, []int{100, 300, -100, -300, 200, 200})
	tr, err := NewTrack("lobby-loop.wav", data)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	return tr
}

func TestTrackLoopsAndTaps(t *testing.T) {
	tr := newTestTrack(t)
	if tr.Title() != "lobby-loop" {
		t.Fatalf("title=%q", tr.Title())
	}
	buf := make([]byte, 4*7)
	if n := tr.fill(buf); n != len(buf) {
		t.Fatalf("filled %d bytes", n)
	}
	if tr.Loops() != 2 {
		t.Fatalf("loops=%d want 2", tr.Loops())
	}
	if got := int16(uint16(buf[0]) | uint16(buf[1])<<8); got != 100 {
		t.Fatalf("first left sample=%d", got)
	}
	if got := int16(uint16(buf[12]) | uint16(buf[13])<<8); got != 100 {
		t.Fatalf("loop did not restart at frame 0: %d", got)
	}

	if s := tr.Samples(3); s[0] != 0 || s[2] != 0 {
		t.Fatalf("disconnected tap should be silent: %v", s)
	}
	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := tr.Samples(3)
	want := []float32{-400.0 / 65536, 400.0 / 65536, 400.0 / 65536}
	for i := range want {
		if s[i] != want[i] {
			t.Fatalf("tap=%v want %v", s, want)
		}
	}
	if len(tr.Samples(TapSize*2)) != TapSize*2 {
		t.Fatalf("samples should honour the requested length")
	}
}

func TestTrackCloseRejectsConnect(t *testing.T) {
	tr := newTestTrack(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Connect(); !errors.Is(err, ErrClosed) {
		t.Fatalf("connect after close: %v", err)
	}
	if err := tr.Play(); !errors.Is(err, ErrClosed) {
		t.Fatalf("play after close: %v", err)
	}
	if tr.Playing() {
		t.Fatalf("closed track reports playing")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestTrackVolumeClamped(t *testing.T) {
	tr := newTestTrack(t)
	tr.SetVolume(2)
	if tr.Volume() != 1 {
		t.Fatalf("volume=%v want 1", tr.Volume())
	}
	tr.SetVolume(-1)
	if tr.Volume() != 0 {
		t.Fatalf("volume=%v want 0", tr.Volume())
	}
}

func TestRewindResetsCursor(t *testing.T) {
	tr := newTestTrack(t)
	tr.fill(make([]byte, 8))
	tr.Rewind()
	buf := make([]byte, 4)
	tr.fill(buf)
	if got := int16(uint16(buf[0]) | uint16(buf[1])<<8); got != 100 {
		t.Fatalf("rewind did not reset: %d", got)
	}
}

func TestOpenTrackSources(t *testing.T) {
	data := writeWAV(t, OutputRate, 1, []int{1, 2, 3, 4})

	path := filepath.Join(t.TempDir(), "local.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenTrack(context.Background(), path, nil); err != nil {
		t.Fatalf("open local: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/music/loop" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	tr, err := OpenTrack(context.Background(), srv.URL+"/music/loop", srv.Client())
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	if tr.Format() != FormatWAV {
		t.Fatalf("remote format=%s", tr.Format())
	}
	if _, err := OpenTrack(context.Background(), srv.URL+"/missing.mp3", srv.Client()); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := OpenTrack(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
