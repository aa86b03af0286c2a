package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
)

const (
	cacheShards          = 64
	cacheSnapshotVersion = 1
)

type cacheKey struct {
	pos    graph.PositionKey
	filter uint64
}

func (k cacheKey) String() string {
	return strconv.FormatUint(k.filter, 16) + "|" + k.pos.ShortFEN()
}

func (k cacheKey) shard() int {
	return int(xxhash.Sum64String(k.pos.ShortFEN()) % cacheShards)
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[cacheKey]*explorer.Position
}

// ExplorerCache memoizes a Source by position and filter. Concurrent lookups
// of the same entry share one upstream call. Failed lookups are not cached.
//
// The cache can be persisted with Save and restored with Load.
type ExplorerCache struct {
	src    explorer.Source
	shards [cacheShards]*cacheShard
	group  singleflight.Group

	hits    atomic.Uint64
	misses  atomic.Uint64
	changed atomic.Bool
}

// NewExplorerCache wraps src.
func NewExplorerCache(src explorer.Source) *ExplorerCache {
	c := &ExplorerCache{src: src}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[cacheKey]*explorer.Position)}
	}
	return c
}

// Lookup implements explorer.Source.
func (c *ExplorerCache) Lookup(ctx context.Context, req explorer.Request) (*explorer.Position, error) {
	k := cacheKey{pos: req.Key.Base(), filter: req.Filter.Fingerprint()}
	if p, ok := c.get(k); ok {
		c.hits.Add(1)
		return p, nil
	}

	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		// Another caller may have filled it while we waited for the group.
		if p, ok := c.get(k); ok {
			c.hits.Add(1)
			return p, nil
		}
		c.misses.Add(1)
		p, err := c.src.Lookup(ctx, req)
		if err != nil {
			return nil, err
		}
		c.put(k, p)
		return p, nil
	})
	if err != nil {
		return nil, explorer.AsDataSourceError(req.Key, err)
	}
	return v.(*explorer.Position), nil
}

func (c *ExplorerCache) get(k cacheKey) (*explorer.Position, bool) {
	s := c.shards[k.shard()]
	s.mu.RLock()
	p, ok := s.entries[k]
	s.mu.RUnlock()
	return p, ok
}

func (c *ExplorerCache) put(k cacheKey, p *explorer.Position) {
	s := c.shards[k.shard()]
	s.mu.Lock()
	s.entries[k] = p
	s.mu.Unlock()
	c.changed.Store(true)
}

// CacheStats describes cache usage since creation.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Stats returns hit and miss counts and the number of entries.
func (c *ExplorerCache) Stats() CacheStats {
	st := CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	for _, s := range c.shards {
		s.mu.RLock()
		st.Entries += len(s.entries)
		s.mu.RUnlock()
	}
	return st
}

// Changed reports whether entries were added since creation or the last
// Load or Save.
func (c *ExplorerCache) Changed() bool {
	return c.changed.Load()
}

type snapshotEntry struct {
	Key      graph.PositionKey  `json:"key"`
	Filter   uint64             `json:"filter"`
	Position *explorer.Position `json:"position"`
}

type snapshot struct {
	Version int             `json:"version"`
	Entries []snapshotEntry `json:"entries"`
}

// Save writes every entry to path as zstd-compressed JSON. The file is
// replaced atomically. Entries are sorted so equal caches produce equal files.
func (c *ExplorerCache) Save(path string) error {
	snap := snapshot{Version: cacheSnapshotVersion}
	for _, s := range c.shards {
		s.mu.RLock()
		for k, p := range s.entries {
			snap.Entries = append(snap.Entries, snapshotEntry{Key: k.pos, Filter: k.filter, Position: p})
		}
		s.mu.RUnlock()
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		a, b := snap.Entries[i], snap.Entries[j]
		if a.Filter != b.Filter {
			return a.Filter < b.Filter
		}
		return a.Key.ShortFEN() < b.Key.ShortFEN()
	})

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := writeSnapshot(tmpPath, &snap); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cache file %s: %w", path, err)
	}
	c.changed.Store(false)
	return nil
}

func writeSnapshot(path string, snap *snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd: %w", err)
	}
	return f.Sync()
}

// Load merges the entries saved at path into the cache and clears the
// changed flag. A missing file is not an error; it loads nothing.
func (c *ExplorerCache) Load(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return 0, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zr.Close()

	var snap snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decode cache %s: %w", path, err)
	}
	if snap.Version != cacheSnapshotVersion {
		return 0, fmt.Errorf("cache %s: unsupported version %d", path, snap.Version)
	}

	for _, e := range snap.Entries {
		if e.Position == nil {
			continue
		}
		k := cacheKey{pos: e.Key.Base(), filter: e.Filter}
		s := c.shards[k.shard()]
		s.mu.Lock()
		s.entries[k] = e.Position
		s.mu.Unlock()
	}
	c.changed.Store(false)
	return len(snap.Entries), nil
}
