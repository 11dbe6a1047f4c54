package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/params"
	"github.com/guidoenr/fantasia/internal/remote"
)

type staticTable config.Table

func (t staticTable) Table() config.Table { return config.Table(t) }

// loop answers commands like the frame loop would, rejecting daily forces.
func loop(t *testing.T, cmds chan remote.Command, seen chan<- remote.Command) {
	t.Helper()
	table := config.Builtin()
	go func() {
		for cmd := range cmds {
			var err error
			if cmd.Kind == remote.CmdForce {
				if m, ok := table.Find(cmd.ID); !ok || m.Type == config.TypeDaily {
					err = override.ErrNotForceable
				}
			}
			seen <- cmd
			cmd.Reply <- err
		}
	}()
}

func newTestServer(t *testing.T) (*Server, *remote.Board, chan remote.Command, chan remote.Command) {
	t.Helper()
	board := &remote.Board{}
	board.Set(remote.Status{Theme: "metal", Volume: 0.05, Effects: params.DefaultEffects()})
	cmds := make(chan remote.Command)
	seen := make(chan remote.Command, 8)
	loop(t, cmds, seen)
	t.Cleanup(func() { close(cmds) })

	now := time.Date(2024, time.January, 2, 14, 50, 0, 0, time.Local)
	s := NewServer(board, staticTable(config.Builtin()), cmds, Options{
		SavePath: filepath.Join(t.TempDir(), "settings.json"),
		Now:      func() time.Time { return now },
	})
	return s, board, cmds, seen
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var st remote.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Theme != "metal" || st.Volume != 0.05 {
		t.Fatalf("unexpected status %+v", st)
	}
	if rec := do(t, s.Handler(), http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status should be rejected, got %d", rec.Code)
	}
}

func TestConfigs(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/configs", "")
	var entries []ConfigEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != len(config.Builtin()) {
		t.Fatalf("expected %d entries, got %d", len(config.Builtin()), len(entries))
	}
	byID := make(map[string]ConfigEntry)
	for _, e := range entries {
		byID[e.ID] = e
	}
	if byID["beach"].Forceable {
		t.Fatalf("daily config should not be forceable")
	}
	if !byID["catch-up"].Active {
		t.Fatalf("catch-up should be active on Tuesday 14:50")
	}
	if byID["metal"].NextStart == nil {
		t.Fatalf("metal should have a next start")
	}
}

func TestForce(t *testing.T) {
	s, _, _, seen := newTestServer(t)
	h := s.Handler()

	cases := map[string]struct {
		method string
		body   string
		code   int
		kind   remote.CommandKind
		sent   bool
	}{
		"force groovie": {http.MethodPost, `{"id":"groovie","minutes":5}`, http.StatusOK, remote.CmdForce, true},
		"force daily":   {http.MethodPost, `{"id":"beach"}`, http.StatusBadRequest, remote.CmdForce, true},
		"missing id":    {http.MethodPost, `{}`, http.StatusBadRequest, 0, false},
		"bad json":      {http.MethodPost, `{`, http.StatusBadRequest, 0, false},
		"clear":         {http.MethodDelete, ``, http.StatusOK, remote.CmdClear, true},
		"wrong method":  {http.MethodPut, ``, http.StatusMethodNotAllowed, 0, false},
	}
	for name, tc := range cases {
		rec := do(t, h, tc.method, "/api/force", tc.body)
		if rec.Code != tc.code {
			t.Fatalf("%s: code %d want %d (%s)", name, rec.Code, tc.code, rec.Body.String())
		}
		if !tc.sent {
			continue
		}
		cmd := <-seen
		if cmd.Kind != tc.kind {
			t.Fatalf("%s: kind %v want %v", name, cmd.Kind, tc.kind)
		}
		if name == "force groovie" && cmd.Duration != 5*time.Minute {
			t.Fatalf("%s: duration %v", name, cmd.Duration)
		}
	}
}

func TestEffectsPartialUpdate(t *testing.T) {
	s, _, _, seen := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/effects", `{"intensity":0.3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	cmd := <-seen
	if cmd.Kind != remote.CmdEffects || !cmd.Enabled || cmd.Intensity != 0.3 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	rec = do(t, h, http.MethodGet, "/api/effects", "")
	var fx params.Effects
	if err := json.NewDecoder(rec.Body).Decode(&fx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fx.Intensity != 0.8 {
		t.Fatalf("GET should report the board, got %+v", fx)
	}
}

func TestVolumeAndMessage(t *testing.T) {
	s, _, _, seen := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/volume", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing volume should be rejected, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/volume", `{"volume":0.4}`); rec.Code != http.StatusOK {
		t.Fatalf("volume code %d", rec.Code)
	}
	if cmd := <-seen; cmd.Kind != remote.CmdVolume || cmd.Volume != 0.4 {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if rec := do(t, h, http.MethodPost, "/api/message", `{"text":"five minutes"}`); rec.Code != http.StatusOK {
		t.Fatalf("message code %d", rec.Code)
	}
	if cmd := <-seen; cmd.Kind != remote.CmdMessage || cmd.Text != "five minutes" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestBusyLoop(t *testing.T) {
	board := &remote.Board{}
	s := NewServer(board, staticTable(nil), make(chan remote.Command), Options{SavePath: filepath.Join(t.TempDir(), "s.json")})
	rec := do(t, s.Handler(), http.MethodDelete, "/api/force", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no frame loop, got %d", rec.Code)
	}
}

func TestSaveAndLoadSettings(t *testing.T) {
	s, board, _, _ := newTestServer(t)
	board.Set(remote.Status{Volume: 0.25, Effects: params.Effects{Enabled: false, Intensity: 0.4}})

	rec := do(t, s.Handler(), http.MethodPost, "/api/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save code %d: %s", rec.Code, rec.Body.String())
	}
	got, err := LoadSettings(s.opts.SavePath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Volume != 0.25 || got.Effects.Enabled || got.Effects.Intensity != 0.4 {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestWebSocketSendsStatus(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st remote.Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read: %v", err)
	}
	if st.Theme != "metal" {
		t.Fatalf("unexpected status %+v", st)
	}
}
