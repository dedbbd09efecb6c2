package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/groupcache"
)

// Entry is one package's cached metadata: the set of raw key/value
// pairs an ebuild would produce (DEPEND, IUSE, KEYWORDS, ...).
type Entry struct {
	Values map[string]string
}

// Cache is the two-tier metadata cache described by PMS: an on-disk
// "md5-cache" directory keyed by category/package-version (the
// persistent tier, shared across processes and surviving restarts) in
// front of the Oracle (the expensive tier: actually evaluating an
// ebuild). A process-local groupcache.Group sits in front of both so
// that concurrent lookups for the same key within one run collapse
// into a single disk read or oracle round trip, the way
// resolve/pypi's lru.Cache collapses repeat lookups within a process
// but shaped for groupcache's singleflight-on-miss semantics instead
// of eviction.
type Cache struct {
	group  *groupcache.Group
	oracle Oracle
	dir    string // md5-cache root; empty disables the on-disk tier

	mu sync.Mutex
}

const defaultCacheBytes = 8 << 20 // 8MiB of hot entries held by groupcache's internal LRU

var cacheSeq int

// NewCache constructs a Cache backed by oracle for misses and, if
// dir is non-empty, an on-disk md5-cache tier at dir.
//
// groupcache.Group names must be process-unique; cacheSeq lets tests
// construct more than one Cache without colliding.
func NewCache(oracle Oracle, dir string) *Cache {
	c := &Cache{oracle: oracle, dir: dir}
	cacheSeq++
	name := fmt.Sprintf("pkgcore-metadata-%d", cacheSeq)
	c.group = groupcache.NewGroup(name, defaultCacheBytes, groupcache.GetterFunc(c.fetch))
	return c
}

func cacheKey(category, pkg, version string) string {
	return category + "/" + pkg + "-" + version
}

func (c *Cache) cachePath(key string) string {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return filepath.Join(c.dir, key)
	}
	return filepath.Join(c.dir, parts[0], parts[1])
}

// fetch is the groupcache getter: check the on-disk tier, then the
// oracle, populating the on-disk tier on an oracle hit.
func (c *Cache) fetch(ctx context.Context, key string, dest groupcache.Sink) error {
	if c.dir != "" {
		if data, err := os.ReadFile(c.cachePath(key)); err == nil {
			return dest.SetBytes(data)
		}
	}

	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return fmt.Errorf("metadata: malformed cache key %q", key)
	}
	cat := parts[0]
	pv := parts[1]
	pkg, ver := splitPV(pv)

	resp, err := c.oracle.Fetch(Request{Category: cat, Package: pkg, Version: ver})
	if err != nil {
		return err
	}
	data, err := json.Marshal(Entry{Values: resp.Values})
	if err != nil {
		return fmt.Errorf("metadata: encoding cache entry: %w", err)
	}
	if c.dir != "" {
		c.writeThrough(key, data)
	}
	return dest.SetBytes(data)
}

func (c *Cache) writeThrough(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.cachePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

func splitPV(pv string) (pkg, ver string) {
	i := strings.LastIndex(pv, "-")
	if i < 0 {
		return pv, ""
	}
	return pv[:i], pv[i+1:]
}

// Get returns the metadata entry for category/pkg-version, fetching
// through the cache tiers as needed.
func (c *Cache) Get(ctx context.Context, category, pkg, version string) (Entry, error) {
	var data []byte
	if err := c.group.Get(ctx, cacheKey(category, pkg, version), groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("metadata: decoding cache entry: %w", err)
	}
	return e, nil
}

// Invalidate drops an entry from the on-disk tier so the next Get
// re-fetches from the oracle. groupcache itself has no targeted
// eviction; process-local staleness after an on-disk invalidation is
// bounded by process lifetime, matching md5-cache's own
// mtime-is-the-only-invalidation model.
func (c *Cache) Invalidate(category, pkg, version string) {
	if c.dir == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.cachePath(cacheKey(category, pkg, version)))
}
