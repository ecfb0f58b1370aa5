package filter

import (
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// regexCache compiles and caches filter patterns by pattern text, the way
// the teacher's routing.RegexCache does for route matchers — but backed by
// the pack's ready-made generic LRU (github.com/hashicorp/golang-lru/v2)
// instead of a hand-rolled container/list LRU, since the eviction and
// locking logic is identical and the library already has it.
//
// A pattern that fails to compile is cached too, as a nil *regexp.Regexp,
// so a malformed filter entry is only ever attempted to compile once; the
// caller treats a nil regex as "never matches" (spec.md §7, FilterError).
type regexCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *regexp.Regexp]
}

func newRegexCache(size int) *regexCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, *regexp.Regexp](size)
	return &regexCache{cache: c}
}

func (c *regexCache) compile(pattern string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.cache.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	c.cache.Add(pattern, re)
	return re
}
