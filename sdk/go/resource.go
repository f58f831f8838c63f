package stormsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

// resourceService is the CRUD template shared by every collection.
type resourceService[T model.Resource] struct {
	s     *Storm
	url   string
	build func(map[string]any) T
}

func newResourceService[T model.Resource](s *Storm, collection string, build func(map[string]any) T) resourceService[T] {
	return resourceService[T]{s: s, url: collection, build: build}
}

func (r resourceService[T]) itemURL(ref model.Ref, parts ...string) (string, error) {
	id, err := model.ExtractID(ref)
	if err != nil {
		return "", err
	}
	return joinURL(r.url, append([]string{id}, parts...)...), nil
}

func (r resourceService[T]) search(ctx context.Context, rawURL string, params url.Values) ([]T, error) {
	items, err := r.s.searchRaw(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = r.build(it)
	}
	return out, nil
}

func (r resourceService[T]) create(ctx context.Context, body any) (T, error) {
	t, err := requestAs(ctx, r.s, http.MethodPost, r.url, body, r.build)
	if err == nil {
		r.s.cache.purge()
	}
	return t, err
}

func (r resourceService[T]) get(ctx context.Context, ref model.Ref, parts ...string) (T, error) {
	u, err := r.itemURL(ref, parts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return requestAs(ctx, r.s, http.MethodGet, u, nil, r.build)
}

func (r resourceService[T]) save(ctx context.Context, ref model.Ref, body any) (T, error) {
	u, err := r.itemURL(ref)
	if err != nil {
		var zero T
		return zero, err
	}
	t, err := requestAs(ctx, r.s, http.MethodPut, u, body, r.build)
	if err == nil {
		r.s.cache.purge()
	}
	return t, err
}

func (r resourceService[T]) delete(ctx context.Context, ref model.Ref) error {
	u, err := r.itemURL(ref)
	if err != nil {
		return err
	}
	if _, err := r.s.req.Request(ctx, http.MethodDelete, u, nil, nil); err != nil {
		return err
	}
	r.s.cache.purge()
	return nil
}

// action posts to <id>/actions/<name> and returns the re-fetched resource.
func (r resourceService[T]) action(ctx context.Context, ref model.Ref, name string) (T, error) {
	var zero T
	u, err := r.itemURL(ref, "actions", name)
	if err != nil {
		return zero, err
	}
	if _, err := r.s.req.Request(ctx, http.MethodPost, u, nil, nil); err != nil {
		return zero, err
	}
	r.s.cache.purge()
	return r.get(ctx, ref)
}

// listServices fetches <collection>/services.
func listServices[S model.Resource](ctx context.Context, s *Storm, collection string, build func(map[string]any) S) ([]S, error) {
	resp, err := s.req.Request(ctx, http.MethodGet, joinURL(collection, "services"), nil, nil)
	if err != nil {
		return nil, err
	}
	v, err := resp.JSON()
	if err != nil {
		return nil, err
	}
	items, err := hitsOf(v)
	if err != nil {
		return nil, err
	}
	out := make([]S, len(items))
	for i, it := range items {
		out[i] = build(it)
	}
	return out, nil
}

// requestAs sends one request and builds its object response with build.
func requestAs[T any](ctx context.Context, s *Storm, method, rawURL string, body any, build func(map[string]any) T) (T, error) {
	var zero T
	resp, err := s.req.Request(ctx, method, rawURL, body, nil)
	if err != nil {
		return zero, err
	}
	obj, err := resp.Object()
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	return build(obj), nil
}

// searchRaw runs a search and returns its hits, going through the cache
// when one is configured.
func (s *Storm) searchRaw(ctx context.Context, rawURL string, params url.Values) ([]map[string]any, error) {
	key := cacheKey(rawURL, params)
	if items, ok := s.cache.get(key); ok {
		s.log.Debug("search cache hit", "url", rawURL)
		return items, nil
	}
	resp, err := s.req.Request(ctx, http.MethodGet, rawURL, nil, params)
	if err != nil {
		return nil, err
	}
	v, err := resp.JSON()
	if err != nil {
		return nil, err
	}
	items, err := hitsOf(v)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", rawURL, err)
	}
	s.cache.add(key, items)
	return items, nil
}

// hitsOf reads the search envelope hits.hits, a bare list, or nothing.
func hitsOf(v any) ([]map[string]any, error) {
	var list []any
	switch t := v.(type) {
	case nil:
		return []map[string]any{}, nil
	case []any:
		list = t
	case map[string]any:
		h, _ := t["hits"].(map[string]any)
		hl, ok := h["hits"].([]any)
		if !ok {
			return nil, fmt.Errorf("response has no hits.hits")
		}
		list = hl
	default:
		return nil, fmt.Errorf("unexpected search response %T", v)
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected search hit %T", e)
		}
		out = append(out, m)
	}
	return out, nil
}
