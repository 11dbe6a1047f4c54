package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// Format is a supported audio container.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatWAV
	FormatFLAC
	FormatOGG
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatMP3:     "mp3",
	FormatWAV:     "wav",
	FormatFLAC:    "flac",
	FormatOGG:     "ogg",
}

func (f Format) String() string { return formatNames[f] }

// DetectFormat picks a decoder from the file extension of name, falling back
// to the leading magic bytes of data.
func DetectFormat(name string, data []byte) Format {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return FormatMP3
	case ".wav", ".wave":
		return FormatWAV
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatOGG
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// PCM is interleaved 16-bit stereo audio.
type PCM struct {
	Samples []int16
	Rate    int
}

// Frames returns the number of stereo sample frames.
func (p PCM) Frames() int { return len(p.Samples) / 2 }

// Decode converts a whole encoded file into stereo PCM.
func Decode(data []byte, f Format) (PCM, error) {
	switch f {
	case FormatMP3:
		return decodeMP3(data)
	case FormatWAV:
		return decodeWAV(data)
	case FormatFLAC:
		return decodeFLAC(data)
	case FormatOGG:
		return decodeOGG(data)
	default:
		return PCM{}, fmt.Errorf("unsupported format: %s", f)
	}
}

func decodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decoding MP3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil && len(raw) == 0 {
		return PCM{}, fmt.Errorf("decoding MP3: %w", err)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return PCM{Samples: samples, Rate: dec.SampleRate()}, nil
}

func decodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("reading WAV PCM data: %w", err)
	}
	channels := buf.Format.NumChannels
	depth := int(dec.BitDepth)
	interleaved := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		interleaved[i] = toInt16(s, depth)
	}
	return PCM{Samples: toStereo(interleaved, channels), Rate: buf.Format.SampleRate}, nil
}

func decodeFLAC(data []byte) (PCM, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decoding FLAC: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bps := int(stream.Info.BitsPerSample)
	var interleaved []int16
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return PCM{}, fmt.Errorf("decoding FLAC frame: %w", err)
		}
		n := int(frame.Subframes[0].NSamples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				interleaved = append(interleaved, toInt16(int(frame.Subframes[ch].Samples[i]), bps))
			}
		}
	}
	return PCM{Samples: toStereo(interleaved, channels), Rate: int(stream.Info.SampleRate)}, nil
}

func decodeOGG(data []byte) (PCM, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decoding OGG: %w", err)
	}
	interleaved := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		interleaved[i] = int16(s * 32767)
	}
	return PCM{Samples: toStereo(interleaved, format.Channels), Rate: format.SampleRate}, nil
}

// toInt16 rescales a signed sample of the given bit depth to 16 bits.
func toInt16(sample, depth int) int16 {
	switch {
	case depth == 8:
		// 8-bit PCM is unsigned.
		sample = (sample - 128) << 8
	case depth > 16:
		sample >>= depth - 16
	case depth > 0 && depth < 16:
		sample <<= 16 - depth
	}
	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}
	return int16(sample)
}

// toStereo duplicates mono and drops channels beyond the first two.
func toStereo(in []int16, channels int) []int16 {
	if channels == 2 {
		return in
	}
	if channels <= 0 {
		channels = 1
	}
	frames := len(in) / channels
	out := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		l := in[i*channels]
		r := l
		if channels > 1 {
			r = in[i*channels+1]
		}
		out[i*2] = l
		out[i*2+1] = r
	}
	return out
}

// Resample converts p to rate with linear interpolation.
func Resample(p PCM, rate int) PCM {
	if p.Rate == rate || p.Rate <= 0 || rate <= 0 || p.Frames() == 0 {
		if p.Rate <= 0 {
			p.Rate = rate
		}
		return p
	}
	srcFrames := p.Frames()
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(p.Rate))
	out := make([]int16, dstFrames*2)
	step := float64(p.Rate) / float64(rate)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		k := j + 1
		if k >= srcFrames {
			k = srcFrames - 1
		}
		for ch := 0; ch < 2; ch++ {
			a := float64(p.Samples[j*2+ch])
			b := float64(p.Samples[k*2+ch])
			out[i*2+ch] = int16(a + (b-a)*frac)
		}
	}
	return PCM{Samples: out, Rate: rate}
}
