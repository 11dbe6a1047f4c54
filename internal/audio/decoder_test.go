package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, channels int, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"song.MP3", nil, FormatMP3},
		{"https://cdn.example.com/loop.ogg?v=2", nil, FormatOGG},
		{"track.flac", nil, FormatFLAC},
		{"track.wav", nil, FormatWAV},
		{"stream", []byte("RIFF...."), FormatWAV},
		{"stream", []byte("fLaC"), FormatFLAC},
		{"stream", []byte("OggS"), FormatOGG},
		{"stream", []byte("ID3\x04"), FormatMP3},
		{"stream", []byte{0xFF, 0xFB, 0x90}, FormatMP3},
		{"stream", []byte("hello"), FormatUnknown},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.name, tc.data); got != tc.want {
			t.Fatalf("DetectFormat(%q)=%s want %s", tc.name, got, tc.want)
		}
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	if _, err := Decode([]byte("hello"), FormatUnknown); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestToInt16(t *testing.T) {
	cases := []struct {
		sample, depth int
		want          int16
	}{
		{128, 8, 0},
		{255, 8, 32512},
		{1 << 23, 24, 32767},
		{-(1 << 23), 24, -32768},
		{1000, 16, 1000},
		{100000, 16, 32767},
	}
	for _, tc := range cases {
		if got := toInt16(tc.sample, tc.depth); got != tc.want {
			t.Fatalf("toInt16(%d, %d)=%d want %d", tc.sample, tc.depth, got, tc.want)
		}
	}
}

func TestToStereo(t *testing.T) {
	mono := toStereo([]int16{1, 2, 3}, 1)
	if want := []int16{1, 1, 2, 2, 3, 3}; !equalInt16(mono, want) {
		t.Fatalf("mono=%v want %v", mono, want)
	}
	surround := toStereo([]int16{1, 2, 9, 3, 4, 9}, 3)
	if want := []int16{1, 2, 3, 4}; !equalInt16(surround, want) {
		t.Fatalf("surround=%v want %v", surround, want)
	}
}

func TestResample(t *testing.T) {
	p := PCM{Samples: []int16{0, 0, 100, 100, 200, 200, 300, 300}, Rate: 22050}
	out := Resample(p, 44100)
	if out.Rate != 44100 || out.Frames() != 8 {
		t.Fatalf("unexpected resample %d frames at %d", out.Frames(), out.Rate)
	}
	if out.Samples[2] != 50 || out.Samples[4] != 100 {
		t.Fatalf("interpolation wrong: %v", out.Samples)
	}
	if same := Resample(p, 22050); same.Frames() != p.Frames() {
		t.Fatalf("same-rate resample should be a no-op")
	}
}

func TestDecodeWAV(t *testing.T) {
	data := writeWAV(t, 22050, 1, []int{0, 1000, -1000, 2000})
	if f := DetectFormat("", data); f != FormatWAV {
		t.Fatalf("detected %s", f)
	}
	pcm, err := Decode(data, FormatWAV)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pcm.Rate != 22050 || pcm.Frames() != 4 {
		t.Fatalf("got %d frames at %d", pcm.Frames(), pcm.Rate)
	}
	if want := []int16{0, 0, 1000, 1000, -1000, -1000, 2000, 2000}; !equalInt16(pcm.Samples, want) {
		t.Fatalf("samples=%v want %v", pcm.Samples, want)
	}
	if _, err := Decode(bytes.Repeat([]byte{0}, 64), FormatWAV); err == nil {
		t.Fatalf("expected error for invalid WAV")
	}
}

func equalInt16(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
