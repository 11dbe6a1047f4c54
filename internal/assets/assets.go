package assets

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guidoenr/fantasia/internal/config"
)

// Kind is the expected media type of an asset.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Result is the outcome of validating a package's assets.
type Result struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// Checker validates asset URLs and remembers the ones that passed.
type Checker struct {
	client *http.Client
	log    *log.Logger

	mu   sync.Mutex
	seen map[Kind]map[string]bool
}

// NewChecker creates a checker. A nil client gets a 10s timeout default.
func NewChecker(client *http.Client, logger *log.Logger) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{client: client, log: logger, seen: make(map[Kind]map[string]bool)}
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Available reports whether url points at media of the given kind. Remote
// assets need a successful HEAD with a matching content type; local assets
// need to be a regular file.
func (c *Checker) Available(ctx context.Context, url string, kind Kind) bool {
	if url == "" {
		return false
	}
	c.mu.Lock()
	ok := c.seen[kind][url]
	c.mu.Unlock()
	if ok {
		return true
	}

	if err := c.check(ctx, url, kind); err != nil {
		c.logf("asset %s unavailable: %v", url, err)
		return false
	}
	c.mu.Lock()
	if c.seen[kind] == nil {
		c.seen[kind] = make(map[string]bool)
	}
	c.seen[kind][url] = true
	c.mu.Unlock()
	return true
}

func (c *Checker) check(ctx context.Context, url string, kind Kind) error {
	if !isRemote(url) {
		info, err := os.Stat(url)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("not a regular file")
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, string(kind)+"/") {
		return fmt.Errorf("content type %q is not %s", ct, kind)
	}
	return nil
}

// Preload validates both assets concurrently. Failures are logged and
// reported in the result, never returned.
func (c *Checker) Preload(ctx context.Context, a config.Assets) Result {
	var (
		g   errgroup.Group
		res Result
	)
	g.Go(func() error {
		res.Video = c.Available(ctx, a.Video, KindVideo)
		return nil
	})
	g.Go(func() error {
		res.Audio = c.Available(ctx, a.Audio, KindAudio)
		return nil
	})
	_ = g.Wait()
	return res
}

func (c *Checker) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}
