package analyzer

// Snapshot is one published analysis result. It is never mutated after
// publication; Bins is owned by the snapshot.
type Snapshot struct {
	Bins      []uint8
	Volume    float64
	IsPlaying bool
	Fallback  bool
}

// NewSnapshot builds a snapshot from raw bins, deriving volume as mean energy.
func NewSnapshot(bins []uint8, playing bool) Snapshot {
	cp := make([]uint8, len(bins))
	copy(cp, bins)
	return Snapshot{Bins: cp, Volume: meanVolume(cp), IsPlaying: playing}
}

// BandEnergy describes normalized spectral energy per band, each in [0,1].
type BandEnergy struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
	Volume float64 `json:"volume"`
}

// Silent reports whether every band is zero.
func (b BandEnergy) Silent() bool {
	return b.Bass == 0 && b.Mid == 0 && b.Treble == 0 && b.Volume == 0
}

// BandRanges splits n bins into [0,bassEnd), [bassEnd,midEnd), [midEnd,n).
func BandRanges(n int) (bassEnd, midEnd int) {
	if n <= 0 {
		return 0, 0
	}
	bassEnd = n / 10
	midEnd = n * 6 / 10
	return bassEnd, midEnd
}

// ComputeBandEnergy is the single band splitter shared by every renderer.
func ComputeBandEnergy(s Snapshot) BandEnergy {
	n := len(s.Bins)
	bassEnd, midEnd := BandRanges(n)
	return BandEnergy{
		Bass:   binMean(s.Bins[:bassEnd]),
		Mid:    binMean(s.Bins[bassEnd:midEnd]),
		Treble: binMean(s.Bins[midEnd:]),
		Volume: clamp(s.Volume, 0, 1),
	}
}

func binMean(bins []uint8) float64 {
	if len(bins) == 0 {
		return 0
	}
	vals := make([]float64, len(bins))
	for i, b := range bins {
		vals[i] = float64(b) / 255
	}
	return average(vals)
}

// Or substitutes an idle value for a band reading of zero.
func Or(v, idle float64) float64 {
	if v == 0 {
		return idle
	}
	return v
}

// Gate applies a simple noise floor so weak signals are ignored.
func Gate(b BandEnergy, floor float64) BandEnergy {
	if floor <= 0 || floor >= 1 {
		return b
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp((v-floor)/(1.0-floor), 0, 1)
	}
	b.Bass = gate(b.Bass)
	b.Mid = gate(b.Mid)
	b.Treble = gate(b.Treble)
	b.Volume = gate(b.Volume)
	return b
}
