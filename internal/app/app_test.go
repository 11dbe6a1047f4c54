package app

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eiannone/keyboard"

	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/remote"
	"github.com/guidoenr/fantasia/internal/scene"
	"github.com/guidoenr/fantasia/internal/schedule"
)

// monday noon falls in a metal slot of the builtin table.
var mondayNoon = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.Local)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	table := config.Builtin()
	a, err := New(Config{
		Width:        40,
		Height:       12,
		DisableAudio: true,
		Volume:       0.05,
		AssetBase:    dir,
		Table:        table,
		Overrides:    override.NewStore(filepath.Join(dir, "override.json"), table),
		Board:        &remote.Board{},
		Log:          log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestTranslateKey(t *testing.T) {
	cases := map[string]struct {
		char rune
		key  keyboard.Key
		want inputEvent
	}{
		"esc":       {0, keyboard.KeyEsc, inputEvent{kind: inputQuit}},
		"ctrl-c":    {0, keyboard.KeyCtrlC, inputEvent{kind: inputQuit}},
		"enter":     {0, keyboard.KeyEnter, inputEvent{kind: inputEnter}},
		"backspace": {0, keyboard.KeyBackspace2, inputEvent{kind: inputBackspace}},
		"space":     {0, keyboard.KeySpace, inputEvent{kind: inputChar, ch: ' '}},
		"letter":    {'q', 0, inputEvent{kind: inputChar, ch: 'q'}},
		"accent":    {'ñ', 0, inputEvent{kind: inputChar, ch: 'ñ'}},
		"up":        {0, keyboard.KeyArrowUp, inputEvent{kind: inputVolumeUp}},
		"down":      {0, keyboard.KeyArrowDown, inputEvent{kind: inputVolumeDown}},
		"right":     {0, keyboard.KeyArrowRight, inputEvent{kind: inputIntensityUp}},
		"left":      {0, keyboard.KeyArrowLeft, inputEvent{kind: inputIntensityDown}},
		"ctrl-e":    {0, keyboard.KeyCtrlE, inputEvent{kind: inputToggleEffects}},
		"ctrl-u":    {0, keyboard.KeyCtrlU, inputEvent{kind: inputClearText}},
		"function":  {0, keyboard.KeyF5, inputEvent{kind: inputOther}},
	}
	for name, tc := range cases {
		if got := translateKey(tc.char, tc.key); got != tc.want {
			t.Fatalf("%s: got %+v want %+v", name, got, tc.want)
		}
	}
}

func TestTypingAndMessage(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon

	if !a.ui(now).Prompt {
		t.Fatalf("prompt should show before the first interaction")
	}
	for _, r := range "hola!" {
		a.handleInput(inputEvent{kind: inputChar, ch: r}, now)
	}
	a.handleInput(inputEvent{kind: inputBackspace}, now)
	a.handleInput(inputEvent{kind: inputEnter}, now)

	ui := a.ui(now.Add(time.Second))
	if ui.Prompt {
		t.Fatalf("prompt should hide after interaction")
	}
	if ui.Message != "hola" {
		t.Fatalf("expected message %q, got %q", "hola", ui.Message)
	}
	if got := a.ui(now.Add(messageTTL + time.Millisecond)).Message; got != "" {
		t.Fatalf("message should auto-hide, got %q", got)
	}

	a.handleInput(inputEvent{kind: inputChar, ch: 'x'}, now.Add(2*time.Second))
	if got := a.ui(now.Add(3 * time.Second)).Message; got != "" {
		t.Fatalf("typing should hide the message, got %q", got)
	}
	a.handleInput(inputEvent{kind: inputClearText}, now)
	if len(a.typed) != 0 {
		t.Fatalf("ctrl-u should clear the input")
	}
	if a.handleInput(inputEvent{kind: inputQuit}, now) != true {
		t.Fatalf("quit should stop the app")
	}
}

func TestVolumeKeys(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon

	a.handleInput(inputEvent{kind: inputVolumeUp}, now)
	a.handleInput(inputEvent{kind: inputVolumeUp}, now)
	if a.volume != 0.15 {
		t.Fatalf("expected 0.15, got %v", a.volume)
	}
	for i := 0; i < 10; i++ {
		a.handleInput(inputEvent{kind: inputVolumeDown}, now)
	}
	if a.volume != 0 {
		t.Fatalf("volume should clamp at 0, got %v", a.volume)
	}
	panel := a.ui(now.Add(time.Second)).Panel
	if len(panel) != 2 || panel[1] != "volume 0%" {
		t.Fatalf("unexpected panel %q", panel)
	}
	if len(a.ui(now.Add(volumePanelTTL+time.Millisecond)).Panel) != 0 {
		t.Fatalf("volume panel should auto-hide")
	}
}

func TestEffectsKeys(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon

	a.handleInput(inputEvent{kind: inputIntensityUp}, now)
	a.handleInput(inputEvent{kind: inputIntensityUp}, now)
	a.handleInput(inputEvent{kind: inputIntensityUp}, now)
	if fx := a.composer.Effects(); fx.Intensity != 1 {
		t.Fatalf("intensity should cap at 1, got %v", fx.Intensity)
	}
	a.handleInput(inputEvent{kind: inputIntensityDown}, now)
	a.handleInput(inputEvent{kind: inputToggleEffects}, now)
	fx := a.composer.Effects()
	if fx.Enabled || fx.Intensity != 0.9 {
		t.Fatalf("unexpected effects %+v", fx)
	}
	if panel := a.ui(now.Add(time.Second)).Panel; len(panel) == 0 || panel[0] != "effects off" {
		t.Fatalf("unexpected panel %q", panel)
	}
}

func TestForceAndClearCommands(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon

	a.resolve(now)
	if a.current.ID != "metal" || a.reason != schedule.ReasonSchedule {
		t.Fatalf("expected scheduled metal, got %s (%s)", a.current.ID, a.reason)
	}

	if err := a.applyCommand(remote.Command{Kind: remote.CmdForce, ID: "groovie", Duration: time.Hour}, now); err != nil {
		t.Fatalf("force: %v", err)
	}
	if a.current.ID != "groovie" || a.reason != schedule.ReasonOverride {
		t.Fatalf("expected forced groovie, got %s (%s)", a.current.ID, a.reason)
	}
	if a.composer.Theme().ID != "groovie" {
		t.Fatalf("composer theme not switched")
	}

	err := a.applyCommand(remote.Command{Kind: remote.CmdForce, ID: "beach", Duration: time.Hour}, now)
	if !errors.Is(err, override.ErrNotForceable) {
		t.Fatalf("expected ErrNotForceable, got %v", err)
	}

	if err := a.applyCommand(remote.Command{Kind: remote.CmdClear}, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if a.current.ID != "metal" {
		t.Fatalf("expected metal after clear, got %s", a.current.ID)
	}

	if err := a.applyCommand(remote.Command{Kind: remote.CmdVolume, Volume: 0.42}, now); err != nil || a.volume != 0.42 {
		t.Fatalf("volume command: %v %v", err, a.volume)
	}
	if err := a.applyCommand(remote.Command{Kind: remote.CmdMessage, Text: "  brb  "}, now); err != nil {
		t.Fatalf("message: %v", err)
	}
	if got := a.ui(now).Message; got != "brb" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestReloadTableSwitchesTheme(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon
	a.resolve(now)

	only := config.Table{{
		ID:   "solo",
		Name: "Solo",
		Type: config.TypeDefault,
	}}
	a.reloadTable(only, now)
	if a.current.ID != "solo" {
		t.Fatalf("expected solo after reload, got %s", a.current.ID)
	}
}

func TestStaleMediaIgnored(t *testing.T) {
	a := newTestApp(t)
	a.resolve(mondayNoon)
	gen := a.gen

	a.installMedia(mediaResult{gen: gen - 1, id: "old"})
	if a.composer.VideoState().String() != "loading" {
		t.Fatalf("stale media should not touch the composer")
	}
	a.installMedia(mediaResult{gen: gen, id: a.current.ID})
	if a.composer.VideoState().String() != "unavailable" {
		t.Fatalf("missing video should be reported unavailable, got %v", a.composer.VideoState())
	}
}

func TestMissingTrackRetriedOnInteraction(t *testing.T) {
	a := newTestApp(t)
	a.cfg.DisableAudio = false
	a.resolve(mondayNoon)

	waitMedia := func() mediaResult {
		t.Helper()
		select {
		case res := <-a.media:
			return res
		case <-time.After(5 * time.Second):
			t.Fatalf("no media result delivered")
		}
		return mediaResult{}
	}

	a.installMedia(waitMedia())
	if a.track != nil || a.loading {
		t.Fatalf("missing asset should leave no track and no load in flight")
	}

	a.handleInput(inputEvent{kind: inputChar, ch: 'x'}, mondayNoon)
	if !a.loading {
		t.Fatalf("interaction should queue an audio reload")
	}
	a.handleInput(inputEvent{kind: inputChar, ch: 'y'}, mondayNoon)

	res := waitMedia()
	if !res.audioOnly || res.gen != a.gen || res.id != a.current.ID {
		t.Fatalf("unexpected reload result %+v", res)
	}
	select {
	case extra := <-a.media:
		t.Fatalf("only one reload should be in flight, got %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	state := a.composer.VideoState()
	a.installMedia(res)
	if a.loading {
		t.Fatalf("installed reload should clear the in-flight flag")
	}
	if a.composer.VideoState() != state {
		t.Fatalf("audio reload should not touch the video state")
	}
}

func TestPublishStatus(t *testing.T) {
	a := newTestApp(t)
	now := mondayNoon
	a.resolve(now)
	if err := a.applyCommand(remote.Command{Kind: remote.CmdForce, ID: "funky", Duration: time.Hour}, now); err != nil {
		t.Fatalf("force: %v", err)
	}
	a.publishStatus(now, a.composer.Stats())

	st := a.cfg.Board.Get()
	if st.Theme != "funky" || st.Reason != "override" || st.Volume != 0.05 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Override == nil || st.Override.ConfigID != "funky" {
		t.Fatalf("override missing from status: %+v", st.Override)
	}

	a.publishStatus(now, scene.Stats{Silent: true, Shed: 3})
	if st := a.cfg.Board.Get(); !st.Silent || st.Shed != 3 {
		t.Fatalf("frame stats not surfaced: silent=%v shed=%d", st.Silent, st.Shed)
	}
}

func TestFakeSource(t *testing.T) {
	f := newFakeSource()
	if out := f.Samples(64); out[10] != 0 {
		t.Fatalf("disconnected source should be silent")
	}
	base := time.Unix(1700000000, 0)
	f.now = func() time.Time { return base }
	if err := f.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	f.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	out := f.Samples(256)
	nonZero := 0
	for _, v := range out {
		if v < -1 || v > 1 {
			t.Fatalf("sample out of range: %v", v)
		}
		if v != 0 {
			nonZero++
		}
	}
	if nonZero == 0 || !f.Playing() {
		t.Fatalf("connected source should produce signal")
	}
	f.Disconnect()
	if f.Playing() {
		t.Fatalf("disconnect should stop the source")
	}
}

func TestProfilerWritesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.csv")
	p := newProfiler(path, log.New(io.Discard, "", 0))
	if p == nil {
		t.Fatalf("profiler should open %s", path)
	}
	for i := 0; i < 2; i++ {
		p.beginFrame(time.Now())
		p.markSection("analyze")
		p.markSection("compose")
		p.endFrame()
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 7 || lines[0] != "timestamp,frame,section,delta_ms" {
		t.Fatalf("unexpected csv: %q", lines)
	}
	if !strings.Contains(lines[6], ",2,frame_total,") {
		t.Fatalf("last row should be frame 2 total, got %q", lines[6])
	}

	var nilProfiler *profiler
	nilProfiler.beginFrame(time.Now())
	if newProfiler("", nil) != nil || nilProfiler.Close() != nil {
		t.Fatalf("empty path should disable profiling")
	}
}
