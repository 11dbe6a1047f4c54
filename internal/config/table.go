package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LoadTable reads a JSON meeting table. An empty path yields the built-in table.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table %s: %w", path, err)
	}
	return t, nil
}

// SaveTable writes t as indented JSON.
func SaveTable(path string, t Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the table at path whenever it changes and delivers every
// valid version on the returned channel. Invalid edits are logged and
// skipped. The channel is closed when ctx ends.
func Watch(ctx context.Context, path string, logger *log.Logger) (<-chan Table, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	out := make(chan Table, 1)
	target := filepath.Clean(path)
	go func() {
		defer close(out)
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(reloadDebounce)
				}
			case <-pending:
				pending = nil
				t, err := LoadTable(path)
				if err != nil {
					if logger != nil {
						logger.Printf("table reload skipped: %v", err)
					}
					continue
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Printf("watcher error: %v", err)
				}
			}
		}
	}()
	return out, nil
}
