// Package kvcache implements the edge-side prompt->continuation LRU cache
// (spec.md §4.10, expanded from original_source/edge/kv_cache.py): a
// bounded map guarded by a mutex, matching the teacher's
// guard-the-map-under-a-lock convention used throughout internal/api and
// internal/backpressure, snapshotted to and restored from the JSON file
// described in spec.md §6.
package kvcache

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one cached prompt's metadata, matching the persisted-state shape
// in spec.md §6.
type Entry struct {
	Prompt          string    `json:"prompt"`
	TokenIDs        []int     `json:"token_ids"`
	SeqLen          int       `json:"seq_len"`
	AvailableTokens int       `json:"available_tokens"`
	CreatedAt       time.Time `json:"created_at"`
	LastAccess      time.Time `json:"last_access"`
	AccessCount     int       `json:"access_count"`
}

// Stats reports cumulative cache activity.
type Stats struct {
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
	Evictions        int64 `json:"evictions"`
	TotalTokensCached int64 `json:"total_tokens_cached"`
	Size             int   `json:"size"`
}

// Cache is the bounded LRU prompt cache.
type Cache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	hits     int64
	misses   int64
	evictions int64
}

type node struct {
	prompt string
	entry  Entry
}

// New creates a Cache bounded to maxSize entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached entry for prompt, updating recency on a hit.
func (c *Cache) Get(prompt string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[prompt]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	c.hits++
	n := el.Value.(*node)
	n.entry.LastAccess = time.Now().UTC()
	n.entry.AccessCount++
	c.order.MoveToFront(el)
	return n.entry, true
}

// Put inserts or updates an entry, evicting the least-recently-used entry
// once the cache is at capacity.
func (c *Cache) Put(prompt string, tokenIDs []int, seqLen, availableTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if el, ok := c.entries[prompt]; ok {
		n := el.Value.(*node)
		n.entry.TokenIDs = tokenIDs
		n.entry.SeqLen = seqLen
		n.entry.AvailableTokens = availableTokens
		n.entry.LastAccess = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	entry := Entry{
		Prompt:          prompt,
		TokenIDs:        tokenIDs,
		SeqLen:          seqLen,
		AvailableTokens: availableTokens,
		CreatedAt:       now,
		LastAccess:      now,
		AccessCount:     0,
	}
	el := c.order.PushFront(&node{prompt: prompt, entry: entry})
	c.entries[prompt] = el
}

func (c *Cache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	n := el.Value.(*node)
	delete(c.entries, n.prompt)
	c.order.Remove(el)
	c.evictions++
}

// Stats reports cumulative cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalTokens int64
	for _, el := range c.entries {
		n := el.Value.(*node)
		totalTokens += int64(len(n.entry.TokenIDs))
	}

	return Stats{
		Hits:              c.hits,
		Misses:            c.misses,
		Evictions:         c.evictions,
		TotalTokensCached: totalTokens,
		Size:              len(c.entries),
	}
}

// snapshotDoc is the JSON document shape persisted to disk, per spec.md §6.
type snapshotDoc struct {
	Cache map[string]Entry `json:"cache"`
	Stats Stats            `json:"stats"`
}

// SaveSnapshot writes the cache contents to path with 0600 permissions,
// matching the teacher's os.WriteFile convention (internal/config.Save).
func (c *Cache) SaveSnapshot(path string) error {
	c.mu.Lock()
	doc := snapshotDoc{Cache: make(map[string]Entry, len(c.entries))}
	for prompt, el := range c.entries {
		doc.Cache[prompt] = el.Value.(*node).entry
	}
	doc.Stats = Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: len(c.entries)}
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadSnapshot restores cache contents from path. A missing file is not an
// error: the cache simply starts empty.
func (c *Cache) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for prompt, entry := range doc.Cache {
		if len(c.entries) >= c.maxSize {
			break
		}
		el := c.order.PushFront(&node{prompt: prompt, entry: entry})
		c.entries[prompt] = el
	}
	c.hits = doc.Stats.Hits
	c.misses = doc.Stats.Misses
	c.evictions = doc.Stats.Evictions
	return nil
}
