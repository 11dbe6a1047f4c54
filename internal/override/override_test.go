package override

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guidoenr/fantasia/internal/config"
)

func TestForcePersistsAndExpires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "override.json")
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	s := NewStore(path, config.Builtin())
	f, err := s.Force("groovie", 30*time.Minute, now)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	if !f.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expiry=%v", f.ExpiresAt)
	}

	reopened := NewStore(path, config.Builtin())
	if id, ok := reopened.Active(now.Add(10 * time.Minute)); !ok || id != "groovie" {
		t.Fatalf("flag not persisted: %q %v", id, ok)
	}
	if _, ok := reopened.Active(now.Add(31 * time.Minute)); ok {
		t.Fatalf("expired flag still active")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired flag should be removed from disk, stat err=%v", err)
	}
	if _, ok := reopened.Active(now); ok {
		t.Fatalf("cleared flag came back")
	}
}

func TestForceRejects(t *testing.T) {
	s := NewStore("", config.Builtin())
	now := time.Now()
	cases := map[string]struct {
		id  string
		d   time.Duration
		err error
	}{
		"daily":    {"beach", time.Minute, ErrNotForceable},
		"unknown":  {"polka", time.Minute, ErrNotForceable},
		"duration": {"metal", 0, ErrInvalidDuration},
	}
	for name, tc := range cases {
		if _, err := s.Force(tc.id, tc.d, now); !errors.Is(err, tc.err) {
			t.Fatalf("%s: err=%v want %v", name, err, tc.err)
		}
	}
	if _, ok := s.Active(now); ok {
		t.Fatalf("rejected force must not set a flag")
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.json")
	s := NewStore(path, config.Builtin())
	now := time.Now()
	if _, err := s.Force("metal", time.Hour, now); err != nil {
		t.Fatalf("force: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.Active(now); ok {
		t.Fatalf("flag survived clear")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestCorruptFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewStore(path, config.Builtin())
	if _, ok := s.Active(time.Now()); ok {
		t.Fatalf("corrupt file produced a flag")
	}
}

func TestSetTableRestrictsForce(t *testing.T) {
	s := NewStore("", config.Builtin())
	s.SetTable(config.Table{{ID: "only", Type: config.TypeCreative}})
	if _, err := s.Force("metal", time.Minute, time.Now()); !errors.Is(err, ErrNotForceable) {
		t.Fatalf("metal should no longer be forceable: %v", err)
	}
	if _, err := s.Force("only", time.Minute, time.Now()); err != nil {
		t.Fatalf("force only: %v", err)
	}
}
