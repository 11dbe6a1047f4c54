package video

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseFraction(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"24000/1001": 24000.0 / 1001.0,
		"25":         25,
		"1/0":        0,
		"":           0,
	}
	for in, want := range cases {
		if got := parseFraction(in); got != want {
			t.Fatalf("parseFraction(%q)=%v want %v", in, got, want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30/1","avg_frame_rate":"0/0"}],"format":{"duration":"12.5"}}`)
	p, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Width != 1920 || p.Height != 1080 || p.FPS != 30 || p.Duration != 12500*time.Millisecond {
		t.Fatalf("unexpected probe %+v", p)
	}

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("audio-only media should be unavailable, got %v", err)
	}
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "00:00:00.000",
		1500 * time.Millisecond: "00:00:01.500",
		3723 * time.Second:      "01:02:03.000",
		-time.Second:            "00:00:00.000",
	}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%v)=%q want %q", in, got, want)
		}
	}
}

func TestDecodeArgs(t *testing.T) {
	args := strings.Join(decodeArgs("lobby.mp4", 0, 160, 90), " ")
	if strings.Contains(args, "-ss") {
		t.Fatalf("start from zero should not seek: %s", args)
	}
	if !strings.Contains(args, "scale=160:90,fps=15") || !strings.Contains(args, "-pix_fmt rgb24") {
		t.Fatalf("unexpected args: %s", args)
	}
	if seek := strings.Join(decodeArgs("lobby.mp4", 2*time.Second, 160, 90), " "); !strings.HasPrefix(seek, "-v quiet -ss 00:00:02.000 -i lobby.mp4") {
		t.Fatalf("unexpected seek args: %s", seek)
	}
}

func TestOpenRejectsEmptySize(t *testing.T) {
	if _, err := Open(context.Background(), "lobby.mp4", 0, 90); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestClosedSessionHasNoFrames(t *testing.T) {
	s := &Session{width: 4, height: 4, frame: make([]byte, 48), frameIdx: -1}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, _, ok := s.FrameAt(time.Second); ok {
		t.Fatalf("closed session returned a frame")
	}
	if err := s.Resize(8, 8, 0); err == nil {
		t.Fatalf("resize after close should fail")
	}
}

func TestFrameAtWithoutStream(t *testing.T) {
	s := &Session{width: 4, height: 4, frame: make([]byte, 48), frameIdx: -1}
	if _, _, _, ok := s.FrameAt(2 * time.Second); ok {
		t.Fatalf("session without decoder should not report a frame")
	}
	if s.Loops() != 0 {
		t.Fatalf("empty stream must not loop")
	}
}
