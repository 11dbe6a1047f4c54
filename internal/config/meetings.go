package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// MeetingType classifies a meeting package.
type MeetingType string

const (
	TypeDaily    MeetingType = "daily"
	TypeCatchUp  MeetingType = "catch-up"
	TypeCreative MeetingType = "creative"
	TypeDefault  MeetingType = "default"
)

// DefaultID is the package shown when nothing else applies.
const DefaultID = "metal"

// TimeSlot is a weekly window. DayOfWeek follows time.Weekday (Sunday = 0).
// Missing minutes default to 0 for the start and 59 for the end.
type TimeSlot struct {
	DayOfWeek   int  `json:"dayOfWeek"`
	StartHour   int  `json:"startHour"`
	EndHour     int  `json:"endHour"`
	StartMinute *int `json:"startMinute,omitempty"`
	EndMinute   *int `json:"endMinute,omitempty"`
}

// StartMinutes returns the slot start as minutes since midnight.
func (s TimeSlot) StartMinutes() int {
	m := 0
	if s.StartMinute != nil {
		m = *s.StartMinute
	}
	return s.StartHour*60 + m
}

// EndMinutes returns the inclusive slot end as minutes since midnight.
func (s TimeSlot) EndMinutes() int {
	m := 59
	if s.EndMinute != nil {
		m = *s.EndMinute
	}
	return s.EndHour*60 + m
}

// Assets are the background video and music loop of a package.
type Assets struct {
	Video string `json:"video"`
	Audio string `json:"audio"`
}

// Resolve joins root-relative asset paths onto base, which may be a
// directory or an HTTP(S) origin. Absolute URLs are kept.
func (a Assets) Resolve(base string) Assets {
	return Assets{Video: resolveAsset(base, a.Video), Audio: resolveAsset(base, a.Audio)}
}

func resolveAsset(base, asset string) string {
	if asset == "" || strings.Contains(asset, "://") || base == "" {
		return asset
	}
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		u, err := url.JoinPath(base, asset)
		if err != nil {
			return asset
		}
		return u
	}
	return filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(asset, "/")))
}

// ThemeVisualConfig is the visual style of a package.
type ThemeVisualConfig struct {
	FontFamily      string `json:"fontFamily"`
	FallbackFont    string `json:"fallbackFont"`
	PrimaryColor    string `json:"primaryColor"`
	BackgroundColor string `json:"backgroundColor"`
	TextAnimation   string `json:"textAnimation"`
}

// MeetingConfig is one themed package.
type MeetingConfig struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     MeetingType       `json:"type"`
	Schedule []TimeSlot        `json:"schedule"`
	Assets   Assets            `json:"assets"`
	Style    ThemeVisualConfig `json:"style"`
}

// Table is the ordered list of packages.
type Table []MeetingConfig

var textAnimations = map[string]bool{
	"wave-beach":          true,
	"funky-chaos":         true,
	"funky-glitch":        true,
	"groovie-psychedelic": true,
	"metal-destruction":   true,
	"reggaeton-bounce":    true,
}

// Find returns the package with id.
func (t Table) Find(id string) (MeetingConfig, bool) {
	for _, c := range t {
		if c.ID == id {
			return c, true
		}
	}
	return MeetingConfig{}, false
}

// NonDaily returns every package that may be picked at random or forced.
func (t Table) NonDaily() Table {
	out := make(Table, 0, len(t))
	for _, c := range t {
		if c.Type != TypeDaily {
			out = append(out, c)
		}
	}
	return out
}

// Default returns the "metal" package, or the first entry if it is missing.
func (t Table) Default() MeetingConfig {
	if c, ok := t.Find(DefaultID); ok {
		return c
	}
	if len(t) > 0 {
		return t[0]
	}
	return MeetingConfig{}
}

// Validate checks ids, types, slots and animations.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("meeting table is empty")
	}
	seen := make(map[string]bool, len(t))
	var errs []error
	for i, c := range t {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("entry %d: missing id", i))
			continue
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id", c.ID))
		}
		seen[c.ID] = true
		switch c.Type {
		case TypeDaily, TypeCatchUp, TypeCreative, TypeDefault:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown type %q", c.ID, c.Type))
		}
		if !textAnimations[c.Style.TextAnimation] {
			errs = append(errs, fmt.Errorf("%s: unknown text animation %q", c.ID, c.Style.TextAnimation))
		}
		for j, s := range c.Schedule {
			if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
				errs = append(errs, fmt.Errorf("%s: slot %d: day %d out of range", c.ID, j, s.DayOfWeek))
			}
			if s.StartMinutes() < 0 || s.EndMinutes() >= 24*60 || s.StartMinutes() > s.EndMinutes() {
				errs = append(errs, fmt.Errorf("%s: slot %d: invalid window", c.ID, j))
			}
		}
	}
	return errors.Join(errs...)
}

func minute(m int) *int { return &m }

func weekdays(startHour, endHour, startMinute, endMinute int, days ...int) []TimeSlot {
	slots := make([]TimeSlot, len(days))
	for i, d := range days {
		slots[i] = TimeSlot{DayOfWeek: d, StartHour: startHour, EndHour: endHour, StartMinute: minute(startMinute), EndMinute: minute(endMinute)}
	}
	return slots
}

func assets(name string) Assets {
	return Assets{Video: "/assets/videos/" + name + ".mp4", Audio: "/assets/audio/" + name + ".mp3"}
}

func style(font, fallback, primary, background, animation string) ThemeVisualConfig {
	return ThemeVisualConfig{FontFamily: font, FallbackFont: fallback, PrimaryColor: primary, BackgroundColor: background, TextAnimation: animation}
}

const (
	fontBungee = "Bungee"
	fallImpact = "Impact, sans-serif"
)

// Builtin returns the shipped meeting table.
func Builtin() Table {
	return Table{
		{
			ID: "beach", Name: "Beach Vibes Daily", Type: TypeDaily,
			Schedule: weekdays(9, 9, 0, 59, 1, 2, 3, 4, 5),
			Assets:   assets("beach"),
			Style:    style(fontBungee, fallImpact, "#00FFFF", "#004080", "wave-beach"),
		},
		{
			ID: "synth", Name: "Synth Vibes", Type: TypeCatchUp,
			Assets: assets("synths"),
			Style:  style(fontBungee, fallImpact, "#cccccc", "#004080", "metal-destruction"),
		},
		{
			ID: "autumn", Name: "Autumn Vibes", Type: TypeCatchUp,
			Assets: assets("autumn"),
			Style:  style(fontBungee, fallImpact, "#3f1f01ff", "#dfb017ff", "wave-beach"),
		},
		{
			ID: "flamenco", Name: "Flamenco Vibes", Type: TypeCatchUp,
			Assets: assets("flamenco"),
			Style:  style(fontBungee, fallImpact, "#3f1f01ff", "#dfb017ff", "funky-glitch"),
		},
		{
			ID: "reggae", Name: "Reggae Vibes", Type: TypeCatchUp,
			Assets: assets("reggae"),
			Style:  style(fontBungee, fallImpact, "#264404ff", "#0cff18ff", "funky-glitch"),
		},
		{
			ID: "coco", Name: "Coco Vibes", Type: TypeCatchUp,
			Assets: assets("coco"),
			Style:  style(fontBungee, fallImpact, "#fdffeeff", "#00ff80ff", "wave-beach"),
		},
		{
			ID: "australian", Name: "Australian Vibes", Type: TypeCatchUp,
			Assets: assets("australian"),
			Style:  style(fontBungee, fallImpact, "#FF8C00", "#8B4513", "wave-beach"),
		},
		{
			ID: "catch-up", Name: "Team Catch-up", Type: TypeCatchUp,
			Schedule: []TimeSlot{
				{DayOfWeek: 2, StartHour: 14, EndHour: 15, StartMinute: minute(45), EndMinute: minute(30)},
			},
			Assets: assets("funky"),
			Style:  style(fontBungee, fallImpact, "#FF1493", "#8A2BE2", "funky-chaos"),
		},
		{
			ID: "funky", Name: "Funky Session", Type: TypeCreative,
			Assets: assets("funky"),
			Style:  style("Monoton", "Courier New, monospace", "#FFD700", "#FF4500", "funky-glitch"),
		},
		{
			ID: "groovie", Name: "Groovie Vibes", Type: TypeCreative,
			Assets: assets("groovie"),
			Style:  style("Dancing Script", "Brush Script MT, cursive", "#FF1493", "#9932CC", "groovie-psychedelic"),
		},
		{
			ID: "metal", Name: "Metal Power", Type: TypeDefault,
			Schedule: []TimeSlot{
				{DayOfWeek: 0, StartHour: 0, EndHour: 23},
				{DayOfWeek: 1, StartHour: 0, EndHour: 8},
				{DayOfWeek: 1, StartHour: 11, EndHour: 23},
				{DayOfWeek: 2, StartHour: 0, EndHour: 8},
				{DayOfWeek: 2, StartHour: 11, EndHour: 14, StartMinute: minute(0), EndMinute: minute(44)},
				{DayOfWeek: 2, StartHour: 15, EndHour: 23, StartMinute: minute(31)},
				{DayOfWeek: 3, StartHour: 0, EndHour: 8},
				{DayOfWeek: 3, StartHour: 11, EndHour: 23},
				{DayOfWeek: 4, StartHour: 0, EndHour: 8},
				{DayOfWeek: 4, StartHour: 11, EndHour: 23},
				{DayOfWeek: 5, StartHour: 0, EndHour: 8},
				{DayOfWeek: 5, StartHour: 11, EndHour: 23},
				{DayOfWeek: 6, StartHour: 0, EndHour: 23},
			},
			Assets: assets("metal"),
			Style:  style("Black Ops One", fallImpact, "#FF0000", "#000000", "metal-destruction"),
		},
		{
			ID: "reggaeton", Name: "Reggaeton Fiesta", Type: TypeCreative,
			Assets: assets("reggaeton"),
			Style:  style("Righteous", "Arial Black, sans-serif", "#FF6B35", "#1A1A2E", "reggaeton-bounce"),
		},
	}
}
