package override

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guidoenr/fantasia/internal/config"
)

// DefaultDuration is how long a force lasts when no duration is given.
const DefaultDuration = 60 * time.Minute

var (
	// ErrNotForceable is returned for unknown or daily packages.
	ErrNotForceable = errors.New("override: package cannot be forced")
	// ErrInvalidDuration is returned for non-positive durations.
	ErrInvalidDuration = errors.New("override: duration must be positive")
)

// Flag is the persisted force.
type Flag struct {
	ConfigID  string    `json:"configId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store keeps a single expiring force flag in a JSON file.
type Store struct {
	path string

	mu      sync.Mutex
	flag    *Flag
	allowed map[string]bool
}

// DefaultPath returns the flag file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "fantasia", "override.json"), nil
}

// NewStore opens the store at path. An unreadable or corrupt file is treated
// as no flag. An empty path keeps the flag in memory only.
func NewStore(path string, table config.Table) *Store {
	s := &Store{path: path}
	s.SetTable(table)
	if path == "" {
		return s
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var f Flag
	if err := json.Unmarshal(data, &f); err == nil && f.ConfigID != "" {
		s.flag = &f
	}
	return s
}

// SetTable updates which packages may be forced.
func (s *Store) SetTable(table config.Table) {
	allowed := make(map[string]bool, len(table))
	for _, c := range table.NonDaily() {
		allowed[c.ID] = true
	}
	s.mu.Lock()
	s.allowed = allowed
	s.mu.Unlock()
}

// Force pins id for d starting at now.
func (s *Store) Force(id string, d time.Duration, now time.Time) (Flag, error) {
	if d <= 0 {
		return Flag{}, ErrInvalidDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.allowed[id] {
		return Flag{}, fmt.Errorf("%w: %q", ErrNotForceable, id)
	}
	f := Flag{ConfigID: id, ExpiresAt: now.Add(d)}
	if err := s.write(&f); err != nil {
		return Flag{}, err
	}
	s.flag = &f
	return f, nil
}

// Clear removes the flag.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.flag = nil
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove override: %w", err)
	}
	return nil
}

// Active returns the forced id while the flag is live. An expired flag is
// cleared as a side effect.
func (s *Store) Active(now time.Time) (string, bool) {
	f, ok := s.Current(now)
	return f.ConfigID, ok
}

// Current returns the live flag.
func (s *Store) Current(now time.Time) (Flag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flag == nil {
		return Flag{}, false
	}
	if now.After(s.flag.ExpiresAt) {
		_ = s.clearLocked()
		return Flag{}, false
	}
	return *s.flag, true
}

func (s *Store) write(f *Flag) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create override dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write override: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace override: %w", err)
	}
	return nil
}
