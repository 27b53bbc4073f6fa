package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/rsalesc/robox.io/internal/filestore"
	"github.com/rsalesc/robox.io/internal/sandbox"
)

// Cache compiles each distinct source at most once and keeps the
// artifact on disk keyed by the source's sha256. Concurrent requests
// for the same source wait for the first compilation to finish;
// failures are recorded per key so every caller sees the diagnostics.
type Cache struct {
	dir     string
	runner  sandbox.Runner
	entries *xsync.MapOf[string, *cacheEntry]
}

type cacheEntry struct {
	done sync.WaitGroup
	err  error
}

func NewCache(dir string, runner sandbox.Runner) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create compile cache directory: %w", err)
	}
	return &Cache{
		dir:     dir,
		runner:  runner,
		entries: xsync.NewMapOf[string, *cacheEntry](),
	}, nil
}

// Executable returns the compiled artifact for spec, compiling it if
// this source has not been seen before. A source that failed to
// compile keeps failing with the same error: compilation is
// deterministic, so there is nothing to retry.
func (c *Cache) Executable(ctx context.Context, spec Spec) ([]byte, error) {
	key := filestore.Sha256Hex(spec.Source)
	path := filepath.Join(c.dir, key)

	entry := &cacheEntry{}
	entry.done.Add(1)
	existing, loaded := c.entries.LoadOrStore(key, entry)
	if loaded {
		existing.done.Wait()
		if existing.err != nil {
			return nil, existing.err
		}
		return os.ReadFile(path)
	}
	defer entry.done.Done()

	if data, err := os.ReadFile(path); err == nil {
		return data, nil // survived from a previous run
	}

	slog.Info("compiling", "source", spec.SourceFilename, "sha256", key)
	compiled, _, err := Compile(ctx, c.runner, spec)
	if err != nil {
		entry.err = err
		return nil, err
	}
	if err := os.WriteFile(path, compiled, 0o755); err != nil {
		entry.err = fmt.Errorf("failed to write compiled artifact: %w", err)
		return nil, entry.err
	}
	return compiled, nil
}
