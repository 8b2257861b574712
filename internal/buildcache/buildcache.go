// Package buildcache remembers which device images were built from which
// composite text, so that an unchanged program never goes through synthesis
// twice.
//
// The cache is a single append-only file. Each entry is three NUL-terminated
// fields: the composite text, the AGFI and the AFI. Later entries for the same
// text shadow nothing; the first match wins.
package buildcache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// FileName is the name of the cache file inside the cache directory.
const FileName = "cache.txt"

// Cache is a file-backed build cache. It is safe for concurrent use within a
// process.
type Cache struct {
	path    string
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// Open creates dir and the cache file in it if they do not exist yet.
func Open(dir string, m *metrics.Metrics) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &Cache{path: path, metrics: m}, nil
}

// Path returns the location of the cache file.
func (c *Cache) Path() string { return c.path }

// Find looks up the artifact previously built from text.
func (c *Cache) Find(text string) (slots.Artifact, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.path)
	if err != nil {
		return slots.Artifact{}, false, fmt.Errorf("failed to open cache: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		key, err := field(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return slots.Artifact{}, false, err
		}
		agfi, err := field(r)
		if err != nil {
			return slots.Artifact{}, false, truncated(err)
		}
		afi, err := field(r)
		if err != nil {
			return slots.Artifact{}, false, truncated(err)
		}
		if key == text {
			c.metrics.CacheLookup(true)
			return slots.Artifact{AGFI: agfi, AFI: afi}, true, nil
		}
	}
	c.metrics.CacheLookup(false)
	return slots.Artifact{}, false, nil
}

// Add appends an entry for text.
func (c *Cache) Add(text string, art slots.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, s := range []string{text, art.AGFI, art.AFI} {
		w.WriteString(s)
		w.WriteByte(0)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return f.Close()
}

func field(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return s[:len(s)-1], nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("corrupt cache entry: %w", err)
}
