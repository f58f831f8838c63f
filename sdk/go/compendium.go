package stormsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

// DraftService manages compendium drafts of a project.
type DraftService struct {
	s   *Storm
	url string
}

// Create stores a new draft in the project.
func (d *DraftService) Create(ctx context.Context, draft *model.CompendiumDraft) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(0, model.OpCreate); err != nil {
		return nil, err
	}
	out, err := requestAs(ctx, d.s, http.MethodPost, d.url, draft.WireJSON(), model.NewCompendiumDraft)
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	d.s.cache.purge()
	return out, nil
}

// Get fetches the draft of the compendium identified by ref.
func (d *DraftService) Get(ctx context.Context, ref model.Ref) (*model.CompendiumDraft, error) {
	id, err := model.ExtractID(ref)
	if err != nil {
		return nil, err
	}
	return requestAs(ctx, d.s, http.MethodGet, joinURL(d.url, id, "draft"), nil, model.NewCompendiumDraft)
}

// Save writes the draft through its self link. It stays a draft.
func (d *DraftService) Save(ctx context.Context, draft *model.CompendiumDraft) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(draft.Kind(), model.OpSave); err != nil {
		return nil, err
	}
	u, err := draft.Links().URL(model.LinkSelf)
	if err != nil {
		return nil, err
	}
	out, err := requestAs(ctx, d.s, http.MethodPut, u, draft.WireJSON(), model.NewCompendiumDraft)
	if err != nil {
		return nil, fmt.Errorf("save draft %s: %w", draft.ID(), err)
	}
	d.s.cache.purge()
	return out, nil
}

// Publish turns the draft into a record.
func (d *DraftService) Publish(ctx context.Context, draft *model.CompendiumDraft) (*model.CompendiumRecord, error) {
	if _, err := model.Transition(draft.Kind(), model.OpPublish); err != nil {
		return nil, err
	}
	rec, err := resolveOne[*model.CompendiumRecord](ctx, d.s, draft, model.LinkPublish)
	if err != nil {
		return nil, fmt.Errorf("publish draft %s: %w", draft.ID(), err)
	}
	d.s.cache.purge()
	return rec, nil
}

// RecordService reads published compendia of a project.
type RecordService struct {
	s   *Storm
	url string
}

// Get fetches the record identified by ref.
func (r *RecordService) Get(ctx context.Context, ref model.Ref) (*model.CompendiumRecord, error) {
	id, err := model.ExtractID(ref)
	if err != nil {
		return nil, err
	}
	return requestAs(ctx, r.s, http.MethodGet, joinURL(r.url, id), nil, model.NewCompendiumRecord)
}

// NewVersion opens a new draft from rec. The draft is decoupled from rec.
func (r *RecordService) NewVersion(ctx context.Context, rec *model.CompendiumRecord) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(rec.Kind(), model.OpNewVersion); err != nil {
		return nil, err
	}
	u, err := rec.Links().URL(model.LinkVersions)
	if err != nil {
		return nil, err
	}
	out, err := requestAs(ctx, r.s, http.MethodPost, u, nil, model.NewCompendiumDraft)
	if err != nil {
		return nil, fmt.Errorf("new version of %s: %w", rec.ID(), err)
	}
	r.s.cache.purge()
	return out, nil
}

// Versions lists the versions of rec.
func (r *RecordService) Versions(ctx context.Context, rec *model.CompendiumRecord) ([]*model.CompendiumDraft, error) {
	return r.s.Versions(ctx, rec)
}

// SearchService searches the compendia of a project.
type SearchService struct {
	s   *Storm
	url string
}

// Search runs a query. With userRecords only the caller's compendia,
// drafts included, are searched. Results mix drafts and records.
func (q *SearchService) Search(ctx context.Context, userRecords bool, params url.Values) ([]model.CompendiumResource, error) {
	u := q.url
	if userRecords {
		u = joinURL(u, "user")
	}
	items, err := q.s.searchRaw(ctx, u, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.CompendiumResource, len(items))
	for i, it := range items {
		out[i] = model.NewCompendium(it)
	}
	return out, nil
}
