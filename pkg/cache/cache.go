// Package cache provides the run-scoped LRU cache of control flow graphs,
// with msgpack persistence.
package cache

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-taint-query/pkg/cfg"
)

// Key returns the cache key of a function's graph.
func Key(file, function string) string {
	return file + "::" + function
}

// Entry is a persisted cache entry.
type Entry struct {
	Key   string   `json:"key"`
	Graph cfg.Dict `json:"graph"`
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	key   string
	graph *cfg.Graph
	prev  *listItem
	next  *listItem
}

// list represents a doubly-linked list.
type list struct {
	head *listItem // most recently accessed
	tail *listItem // least recently accessed
	len  int
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

// pushFront adds an item to the front of the list.
func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures the graph cache.
type Options struct {
	// MaxSize is the maximum number of graphs.
	// 0 means unlimited.
	MaxSize int

	// OnEvict is called when a graph is evicted.
	OnEvict func(key string, g *cfg.Graph)
}

// Stats returns cache statistics.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
	Evictions int64 `json:"evictions"`
}

// GraphCache is an LRU cache of built graphs keyed by file and function.
// It is safe for concurrent use. Graphs are never invalidated: the source
// snapshot is fixed for the life of the cache.
type GraphCache struct {
	mu      sync.Mutex
	items   map[string]*listItem
	lru     *list
	maxSize int
	onEvict func(key string, g *cfg.Graph)

	hits, misses, evictions int64
}

// New creates a new graph cache with the given options.
func New(opts Options) *GraphCache {
	return &GraphCache{
		items:   make(map[string]*listItem),
		lru:     &list{},
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get retrieves a graph from the cache.
func (c *GraphCache) Get(key string) (*cfg.Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

func (c *GraphCache) get(key string) (*cfg.Graph, bool) {
	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.moveToFront(item)
	return item.graph, true
}

// Set stores a graph, evicting the least recently used entries if needed.
func (c *GraphCache) Set(key string, g *cfg.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, g)
}

func (c *GraphCache) set(key string, g *cfg.Graph) {
	if item, exists := c.items[key]; exists {
		item.graph = g
		c.lru.moveToFront(item)
		return
	}
	item := &listItem{key: key, graph: g}
	c.items[key] = item
	c.lru.pushFront(item)
	c.evictIfNeeded()
}

// GetOrBuild returns the cached graph for key, calling build on a miss.
// build runs under the cache lock, so each key is built once.
func (c *GraphCache) GetOrBuild(key string, build func() *cfg.Graph) *cfg.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.get(key); ok {
		return g
	}
	g := build()
	if g != nil {
		c.set(key, g)
	}
	return g
}

// Delete removes a key from the cache.
func (c *GraphCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	if c.onEvict != nil {
		c.onEvict(key, item.graph)
	}
}

// Files returns the distinct files that have cached graphs, sorted.
func (c *GraphCache) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var files []string
	for key := range c.items {
		file, _, _ := strings.Cut(key, "::")
		if !seen[file] {
			seen[file] = true
			files = append(files, file)
		}
	}
	sort.Strings(files)
	return files
}

// DeleteFile removes every graph cached for file and returns how many there
// were.
func (c *GraphCache) DeleteFile(file string) int {
	prefix := Key(file, "")
	c.mu.Lock()
	var keys []string
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.Delete(key)
	}
	return len(keys)
}

// Clear removes all entries from the cache.
func (c *GraphCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
}

// Len returns the number of entries in the cache.
func (c *GraphCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the current cache statistics.
func (c *GraphCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: len(c.items), HitCount: c.hits, MissCount: c.misses, Evictions: c.evictions}
}

// evictIfNeeded evicts entries if the cache exceeds its limits.
func (c *GraphCache) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.len > c.maxSize {
		item := c.lru.tail
		c.lru.unlink(item)
		delete(c.items, item.key)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(item.key, item.graph)
		}
	}
}

// Save persists the cache to a writer using msgpack. Entries are written in
// key order so equal caches produce equal bytes.
func (c *GraphCache) Save(w io.Writer) error {
	c.mu.Lock()
	entries := make([]Entry, 0, len(c.items))
	for key, item := range c.items {
		entries = append(entries, Entry{Key: key, Graph: item.graph.ToDict()})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(entries)
}

// Load restores the cache from a reader using msgpack, replacing its contents.
func (c *GraphCache) Load(r io.Reader) error {
	var entries []Entry
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	graphs := make([]*cfg.Graph, len(entries))
	for i, e := range entries {
		g, err := cfg.FromDict(e.Graph)
		if err != nil {
			return fmt.Errorf("cache entry %s: %w", e.Key, err)
		}
		graphs[i] = g
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem)
	c.lru = &list{}
	for i, e := range entries {
		c.set(e.Key, graphs[i])
	}
	return nil
}

// PersistToFile saves the cache to a file.
func PersistToFile(c *GraphCache, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	return c.Save(f)
}

// LoadFromFile loads the cache from a file.
func LoadFromFile(c *GraphCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No cache file is not an error
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}
