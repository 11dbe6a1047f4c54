package app

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// profiler appends per-section frame timings to a CSV file.
type profiler struct {
	mu      sync.Mutex
	file    *os.File
	logger  *log.Logger
	frame   int64
	start   time.Time
	last    time.Time
	totalMs float64
	worstMs float64
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{file: f, logger: logger}
	fmt.Fprintln(p.file, "timestamp,frame,section,delta_ms")
	return p
}

func (p *profiler) beginFrame(now time.Time) {
	if p == nil {
		return
	}
	p.frame++
	p.start = now
	p.last = now
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := time.Now()
	delta := now.Sub(p.last).Seconds() * 1000
	p.last = now
	p.write(now, name, delta)
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	total := now.Sub(p.start).Seconds() * 1000
	p.totalMs += total
	p.worstMs = max(p.worstMs, total)
	p.write(now, "frame_total", total)
}

// Close logs a summary and closes the file.
func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	if p.logger != nil && p.frame > 0 {
		p.logger.Printf("profile: %d frames, avg %.2fms, worst %.2fms", p.frame, p.totalMs/float64(p.frame), p.worstMs)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *profiler) write(now time.Time, section string, deltaMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	fmt.Fprintf(p.file, "%s,%d,%s,%.3f\n", now.Format(time.RFC3339Nano), p.frame, section, deltaMs)
}
