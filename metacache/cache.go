// Package metacache persists point-cloud discovery results (bounds, CRS,
// point count, classification presence) so repeat builds against the
// same cloud skip re-running the external point-processing engine's
// metadata probe (§4.10). It is an append-only JSON-lines log rather
// than requestcache's one-file-per-key Disk cache: metadata records are
// small and numerous enough that one shared log with in-memory
// compaction on read is simpler than a directory of single-entry files,
// and a plain JSON line is human-diffable in a way a gob blob per key
// is not.
package metacache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sitecairn/lidarterrain/pointcloud"
)

// Key identifies one point cloud's metadata record, the same
// (path, mtime, size) tuple pointcloud.Cloud.Identity() already exposes
// — a cloud is re-probed only when one of these three changes.
type Key struct {
	Path          string `json:"path"`
	MTimeUnixNano int64  `json:"mtime_unix_nano"`
	Size          int64  `json:"size"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d:%d", k.Path, k.MTimeUnixNano, k.Size)
}

// KeyFor derives c's Key via its Identity tuple.
func KeyFor(c *pointcloud.Cloud) (Key, error) {
	path, mtime, size, err := c.Identity()
	if err != nil {
		return Key{}, err
	}
	return Key{Path: path, MTimeUnixNano: mtime, Size: size}, nil
}

// Entry is one logged record: a cloud's Key plus the Discovery result
// computed for it.
type Entry struct {
	Key        Key                  `json:"key"`
	Discovery  pointcloud.Discovery `json:"discovery"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// Cache is a single append-only log file. Writers serialize through mu
// (§4.10: "single writer"); readers reconstruct the latest-per-key
// snapshot by scanning the whole file (§4.10: "multi-reader snapshot
// semantics") — later lines for the same Key supersede earlier ones,
// the append-or-replace contract implemented as an append-only log plus
// last-write-wins folding, the same idea requestcache.Disk's
// write-then-serve-from-file loop embodies for its own single-key files.
type Cache struct {
	path string
	mu   sync.Mutex
}

// Open returns a Cache backed by path, creating its parent directory
// (but not the file itself — Put creates it lazily) if necessary.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("metacache: creating cache dir: %w", err)
	}
	return &Cache{path: path}, nil
}

// Get returns the most recently recorded Discovery for key, or
// (Discovery{}, false, nil) if key has never been recorded.
func (c *Cache) Get(key Key) (pointcloud.Discovery, bool, error) {
	snap, err := c.snapshot()
	if err != nil {
		return pointcloud.Discovery{}, false, err
	}
	e, ok := snap[key]
	return e.Discovery, ok, nil
}

// Put appends a new record for key, shadowing any earlier record for
// the same key on the next read. Concurrent Puts are serialized by mu;
// concurrent Gets are lock-free reads of the file as it stood at their
// own call time (§4.10's single-writer/multi-reader contract — readers
// never block on or race with the writer, they just might not yet see
// its newest line).
func (c *Cache) Put(key Key, d pointcloud.Discovery, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metacache: opening cache log: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(Entry{Key: key, Discovery: d, RecordedAt: now})
	if err != nil {
		return fmt.Errorf("metacache: encoding entry: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("metacache: appending entry: %w", err)
	}
	return f.Sync()
}

// snapshot reads every line in the log and folds it into the latest
// record per Key, tolerating a truncated final line (a writer crashed
// mid-append) by skipping it rather than failing the whole read.
func (c *Cache) snapshot() (map[Key]Entry, error) {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return map[Key]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metacache: opening cache log: %w", err)
	}
	defer f.Close()

	out := map[Key]Entry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // a torn final write; never seen as committed by any reader.
		}
		out[e.Key] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("metacache: scanning cache log: %w", err)
	}
	return out, nil
}

// Discover returns cloud's Discovery, consulting the persistent log
// before falling back to cloud.BoundsAndCRS (which itself only caches
// for the lifetime of the *pointcloud.Cloud value) and recording a
// fresh probe's result for future process runs.
func (c *Cache) Discover(ctx context.Context, cloud *pointcloud.Cloud, eng pointcloud.Engine) (pointcloud.Discovery, error) {
	key, err := KeyFor(cloud)
	if err != nil {
		return pointcloud.Discovery{}, err
	}
	if d, ok, err := c.Get(key); err != nil {
		return pointcloud.Discovery{}, err
	} else if ok {
		return d, nil
	}

	d, err := cloud.BoundsAndCRS(ctx, eng)
	if err != nil {
		return pointcloud.Discovery{}, err
	}
	if err := c.Put(key, d, time.Now()); err != nil {
		return pointcloud.Discovery{}, err
	}
	return d, nil
}

// Compact rewrites the log keeping only the latest entry per Key,
// atomically (temp file plus rename, the same convention raster.Write
// and the orchestrator's manifest writer use), so the log doesn't grow
// without bound across a long-lived pipeline's lifetime.
func (c *Cache) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.snapshot()
	if err != nil {
		return err
	}

	tmp := c.path + ".compact.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("metacache: creating compaction file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range snap {
		b, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("metacache: encoding entry during compaction: %w", err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("metacache: writing compaction file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("metacache: flushing compaction file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("metacache: closing compaction file: %w", err)
	}
	return os.Rename(tmp, c.path)
}
