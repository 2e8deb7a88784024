package matcher

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultCacheSize bounds the compiled-pattern cache (spec §B: "bounded LRU
// of compiled regexes across runs"). Escape/suppress pattern sets are small
// (tens, not thousands) per run, so this ceiling is generous headroom for
// every adapter's defaults plus user overrides across every caller that
// shares one Cache within a quench process.
const DefaultCacheSize = 512

// Cache memoizes Compile by pattern string so repeated compilation of the
// same adapter-default or user-configured pattern across a run (every file
// that shares a scope re-consults the same pattern set) costs a map lookup
// instead of a fresh regex/Aho-Corasick build.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache
}

type cachedEntry struct {
	matcher Matcher
	tier    Tier
	err     error
}

// NewCache builds a Cache bounded to DefaultCacheSize entries.
func NewCache() *Cache {
	return &Cache{inner: lru.New(DefaultCacheSize)}
}

// Compile returns the cached (Matcher, Tier) for pattern, compiling and
// memoizing it on a miss.
func (c *Cache) Compile(pattern string) (Matcher, Tier, error) {
	c.mu.Lock()
	if v, ok := c.inner.Get(pattern); ok {
		c.mu.Unlock()
		e := v.(cachedEntry)
		return e.matcher, e.tier, e.err
	}
	c.mu.Unlock()

	m, tier, err := Compile(pattern)

	c.mu.Lock()
	c.inner.Add(pattern, cachedEntry{matcher: m, tier: tier, err: err})
	c.mu.Unlock()

	return m, tier, err
}
