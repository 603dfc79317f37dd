// Package lru provides a persistent least-recently-used value cache bounded
// by serialized byte size. It memoizes values that are expensive to
// recompute, independent of any HTTP semantics. The whole cache is one gob
// blob on disk, loaded at construction and written back by an explicit Save
// at the end of the owning session.
package lru

import (
	"bytes"
	"container/list"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"overcastmirror/internal/logger"
)

// entry is the persisted form of one cache slot. Entries are stored in
// recency order, least recently used first.
type entry[V any] struct {
	Key   string
	Value V
}

// Cache is a byte-budgeted LRU cache over gob-serializable values. It is
// not safe for concurrent use; the tool is single-threaded by design.
type Cache[V any] struct {
	path     string
	maxBytes int64
	order    *list.List // front = least recently used
	items    map[string]*list.Element
	dirty    bool
	log      logger.Logger
}

// New creates a cache persisted at path with the given byte budget. If a
// blob already exists at path it is loaded, preserving its recency order;
// an unreadable blob is discarded with a warning so one corrupt file never
// blocks a run.
func New[V any](path string, maxBytes int64, log logger.Logger) *Cache[V] {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Cache[V]{
		path:     path,
		maxBytes: maxBytes,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		log:      log,
	}
	c.load()
	return c
}

func (c *Cache[V]) load() {
	if c.path == "" {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("failed to read persisted cache", logger.String("path", c.path), logger.Error(err))
		} else {
			c.log.Debug("persisted cache not found", logger.String("path", c.path))
		}
		return
	}

	var entries []entry[V]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		c.log.Warn("discarding unreadable persisted cache", logger.String("path", c.path), logger.Error(err))
		return
	}
	for _, e := range entries {
		c.items[e.Key] = c.order.PushBack(e)
	}
	c.dirty = false
}

// Get returns the cached value for key. A hit counts as an access and
// marks the entry most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	elem, ok := c.items[key]
	if !ok {
		c.log.Debug("cache miss", logger.String("key", key))
		var zero V
		return zero, false
	}
	c.log.Debug("cache hit", logger.String("key", key))
	c.order.MoveToBack(elem)
	c.dirty = true
	return elem.Value.(entry[V]).Value, true
}

// Set stores the value for key and marks it most recently used.
func (c *Cache[V]) Set(key string, value V) {
	c.dirty = true
	if elem, ok := c.items[key]; ok {
		elem.Value = entry[V]{Key: key, Value: value}
		c.order.MoveToBack(elem)
		return
	}
	c.items[key] = c.order.PushBack(entry[V]{Key: key, Value: value})
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Nothing is stored when compute fails.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Contains reports whether key is cached, without counting as an access.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return len(c.items)
}

// ByteSize returns the serialized size of the whole cache. The budget is
// defined over the entire blob, not per entry, so every check re-serializes
// the map; acceptable for the few-megabyte budgets this cache is used with.
func (c *Cache[V]) ByteSize() (int64, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.snapshot()); err != nil {
		return 0, fmt.Errorf("serialize cache: %w", err)
	}
	return int64(buf.Len()), nil
}

// Trim evicts least-recently-used entries until the serialized size fits
// the budget, returning the number evicted.
func (c *Cache[V]) Trim() (int, error) {
	count := 0
	for c.order.Len() > 0 {
		size, err := c.ByteSize()
		if err != nil {
			return count, err
		}
		if size <= c.maxBytes {
			break
		}
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.items, front.Value.(entry[V]).Key)
		c.dirty = true
		count++
	}
	if count > 0 {
		c.log.Debug("trimmed cache entries", logger.Int("count", count))
	}
	return count, nil
}

// Save trims the cache to budget and writes it to disk as one blob,
// creating parent directories as needed. It is a no-op when nothing
// changed since load. Sessions call this once at teardown rather than
// after every mutation.
func (c *Cache[V]) Save() error {
	if c.path == "" {
		return fmt.Errorf("cannot save cache: no path configured")
	}
	if !c.dirty {
		c.log.Debug("no cache changes to save")
		return nil
	}

	if _, err := c.Trim(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.snapshot()); err != nil {
		return fmt.Errorf("serialize cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	c.log.Debug("saving cache", logger.String("path", c.path))
	if err := os.WriteFile(c.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	c.dirty = false
	return nil
}

// snapshot returns the entries in recency order, least recently used first.
func (c *Cache[V]) snapshot() []entry[V] {
	entries := make([]entry[V], 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem.Value.(entry[V]))
	}
	return entries
}
