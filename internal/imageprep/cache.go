package imageprep

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Cache memoizes Transform by source digest and options. With a directory
// set, results survive across runs.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]Result
	hits    int
}

// NewCache creates a cache. An empty dir keeps results in memory only.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{dir: dir, logger: logger, entries: make(map[string]Result)}
}

type cacheMeta struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Quality int    `json:"quality"`
	Digest  string `json:"digest"`
}

// Transform returns the cached result for raw and opts, computing it on a miss.
func (c *Cache) Transform(raw []byte, opts Options) (Result, error) {
	key := fmt.Sprintf("%s-%d-%d", Digest(raw), opts.MaxDimension, opts.MaxBytes)

	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	if r, ok := c.load(key); ok {
		c.store(key, r, true)
		return r, nil
	}

	r, err := Transform(raw, opts)
	if err != nil {
		return Result{}, err
	}
	c.store(key, r, false)
	c.save(key, r)
	return r, nil
}

// Hits returns how many lookups were served from the cache.
func (c *Cache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *Cache) store(key string, r Result, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
	if hit {
		c.hits++
	}
}

func (c *Cache) load(key string) (Result, bool) {
	if c.dir == "" {
		return Result{}, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, key+".jpg")) //nolint:gosec // key is a hex digest
	if err != nil {
		return Result{}, false
	}
	metaData, err := os.ReadFile(filepath.Join(c.dir, key+".json")) //nolint:gosec // key is a hex digest
	if err != nil {
		return Result{}, false
	}
	var meta cacheMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return Result{}, false
	}
	return Result{Data: data, Width: meta.Width, Height: meta.Height, Quality: meta.Quality, Digest: meta.Digest}, true
}

func (c *Cache) save(key string, r Result) {
	if c.dir == "" {
		return
	}
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		c.logger.Debug("failed to create image cache", "dir", c.dir, "error", err)
		return
	}
	meta, err := json.Marshal(cacheMeta{Width: r.Width, Height: r.Height, Quality: r.Quality, Digest: r.Digest})
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, key+".jpg"), r.Data, 0o600); err != nil {
		c.logger.Debug("failed to write image cache", "digest", key, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, key+".json"), meta, 0o600); err != nil {
		c.logger.Debug("failed to write image cache metadata", "digest", key, "error", err)
	}
}
