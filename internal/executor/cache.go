package executor

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/yanmxa/gencode/internal/tool/ui"
)

// Cache is a bounded LRU cache of tool results keyed by a caller-supplied
// string, with prefix-based invalidation so a write under a path can drop
// every cached read that touched it.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key    string
	path   string
	result ui.ToolResult
}

// NewCache creates a Cache holding at most capacity entries.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get looks up key, promoting it to most-recently-used on a hit.
func (c *Cache) Get(key string) (ui.ToolResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return ui.ToolResult{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

// Put stores result under key with no path association, so it can only be
// evicted by LRU pressure, never by InvalidatePrefix.
func (c *Cache) Put(key string, result ui.ToolResult) {
	c.put(key, "", result)
}

// PutWithPath stores result under key and associates it with path, so a
// later InvalidatePrefix(prefix) where path falls under prefix (or vice
// versa) evicts it.
func (c *Cache) PutWithPath(key, path string, result ui.ToolResult) {
	c.put(key, path, result)
}

func (c *Cache) put(key, path string, result ui.ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.path = path
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, path: path, result: result}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// InvalidatePrefix drops every cached entry whose associated path falls
// under prefix (or prefix falls under its path, for a directory write that
// should invalidate more specific cached reads).
func (c *Cache) InvalidatePrefix(prefix string) {
	if prefix == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for el := c.ll.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*cacheEntry)
		if entry.path == "" {
			continue
		}
		if strings.HasPrefix(entry.path, prefix) || strings.HasPrefix(prefix, entry.path) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		c.ll.Remove(el)
		delete(c.items, el.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// CacheKey builds a stable cache key from a tool name, its normalized
// arguments, and a workspace revision marker (e.g. a directory mtime or git
// HEAD), so the cache naturally invalidates when the workspace changes
// underneath it.
func CacheKey(name string, args map[string]any, workspaceRev string) string {
	body, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(name+"::"+workspaceRev+"::"), body...))
	return hex.EncodeToString(sum[:])
}
