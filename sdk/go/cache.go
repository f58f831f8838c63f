package stormsdk

import (
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// searchCache keeps raw search hits keyed by URL and query. Hits are copied
// in and out so callers can mutate the models they get back.
type searchCache struct {
	lru *lru.Cache[string, []map[string]any]
}

func newSearchCache(size int) *searchCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, []map[string]any](size)
	if err != nil {
		return nil
	}
	return &searchCache{lru: c}
}

func cacheKey(rawURL string, params url.Values) string {
	return rawURL + "?" + params.Encode()
}

func (c *searchCache) get(key string) ([]map[string]any, bool) {
	if c == nil {
		return nil, false
	}
	items, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneAll(items), true
}

func (c *searchCache) add(key string, items []map[string]any) {
	if c == nil {
		return
	}
	c.lru.Add(key, cloneAll(items))
}

// purge drops every entry. Mutating calls purge so that a later search sees
// the change.
func (c *searchCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func cloneAll(items []map[string]any) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, it := range items {
		out[i] = document.CloneMap(it)
	}
	return out
}
