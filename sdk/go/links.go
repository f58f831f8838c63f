package stormsdk

import (
	"context"
	"fmt"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

// Resolution is what following a link produced: one resource, or a list
// when the service answered with search hits. File listings also expose
// their unwrapped entries.
type Resolution struct {
	Resource model.Resource
	List     []model.Resource
	Entries  []*model.CompendiumFileEntry
}

// Resolve follows the named link of c. The name is checked against the
// link schema of c's kind before anything is sent.
func (s *Storm) Resolve(ctx context.Context, c model.CompendiumResource, name string) (*Resolution, error) {
	links := c.Links()
	spec, err := links.Spec(name)
	if err != nil {
		return nil, err
	}
	u, err := links.URL(name)
	if err != nil {
		return nil, err
	}
	s.log.Debug("follow link", "link", name, "kind", links.Kind(), "method", spec.Method)
	resp, err := s.req.Request(ctx, spec.Method, u, nil, nil)
	if err != nil {
		return nil, err
	}
	v, err := resp.JSON()
	if err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]any)
	if _, isList := v.([]any); isList || hasHits(obj) {
		items, err := hitsOf(v)
		if err != nil {
			return nil, err
		}
		res := &Resolution{List: make([]model.Resource, len(items))}
		for i, it := range items {
			if res.List[i], err = model.Build(spec.Result, it); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	if obj == nil {
		return nil, fmt.Errorf("follow %s: empty response", name)
	}
	res := &Resolution{}
	if entries, ok := obj["entries"].([]any); ok {
		for _, e := range entries {
			if m, ok := e.(map[string]any); ok {
				res.Entries = append(res.Entries, model.NewCompendiumFileEntry(m))
			}
		}
	}
	if res.Resource, err = model.Build(spec.Result, obj); err != nil {
		return nil, err
	}
	return res, nil
}

func hasHits(obj map[string]any) bool {
	h, ok := obj["hits"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = h["hits"].([]any)
	return ok
}

// resolveOne follows a link expected to yield a single resource of type T.
func resolveOne[T model.Resource](ctx context.Context, s *Storm, c model.CompendiumResource, name string) (T, error) {
	var zero T
	res, err := s.Resolve(ctx, c, name)
	if err != nil {
		return zero, err
	}
	t, ok := res.Resource.(T)
	if !ok {
		return zero, fmt.Errorf("follow %s: got %T, want %T", name, res.Resource, zero)
	}
	return t, nil
}

// Self re-fetches c through its self link.
func (s *Storm) Self(ctx context.Context, c model.CompendiumResource) (model.CompendiumResource, error) {
	return resolveOne[model.CompendiumResource](ctx, s, c, model.LinkSelf)
}

// Latest fetches the latest version of c.
func (s *Storm) Latest(ctx context.Context, c model.CompendiumResource) (model.CompendiumResource, error) {
	return resolveOne[model.CompendiumResource](ctx, s, c, model.LinkLatest)
}

// DraftOf returns the draft of c. For a record this asks the service to
// open an edit draft.
func (s *Storm) DraftOf(ctx context.Context, c model.CompendiumResource) (*model.CompendiumDraft, error) {
	return resolveOne[*model.CompendiumDraft](ctx, s, c, model.LinkDraft)
}

// FilesOf lists the files bucket of c.
func (s *Storm) FilesOf(ctx context.Context, c model.CompendiumResource) (*model.CompendiumFiles, error) {
	return resolveOne[*model.CompendiumFiles](ctx, s, c, model.LinkFiles)
}

// Versions lists every version of c as drafts.
func (s *Storm) Versions(ctx context.Context, c model.CompendiumResource) ([]*model.CompendiumDraft, error) {
	res, err := s.Resolve(ctx, c, model.LinkVersions)
	if err != nil {
		return nil, err
	}
	items := res.List
	if res.Resource != nil {
		items = []model.Resource{res.Resource}
	}
	out := make([]*model.CompendiumDraft, 0, len(items))
	for _, it := range items {
		d, ok := it.(*model.CompendiumDraft)
		if !ok {
			return nil, fmt.Errorf("follow versions: got %T", it)
		}
		out = append(out, d)
	}
	return out, nil
}
