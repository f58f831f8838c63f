package model

import (
	"fmt"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// DepositPluginService is a deposit target, such as an external repository.
type DepositPluginService struct {
	serviceInfo
}

func NewDepositPluginService(raw map[string]any) *DepositPluginService {
	return &DepositPluginService{serviceInfo{newBase(raw)}}
}

func (*DepositPluginService) Type() ResourceType { return TypeDepositPluginService }

// Deposit sends a project's metadata and pipelines to a deposit service.
type Deposit struct {
	base
}

func NewDeposit(raw map[string]any) *Deposit { return &Deposit{newBase(raw)} }

func (*Deposit) Type() ResourceType { return TypeDeposit }

func (d *Deposit) Status() string { return statusField.Get(d.doc) }

// Service is the deposit service as held by the document: an id or an
// expanded service object.
func (d *Deposit) Service() any { return d.doc.GetOr("service", nil) }

// ServiceID resolves Service to its id.
func (d *Deposit) ServiceID() (string, error) { return idFromValue(d.Service()) }

func (d *Deposit) SetService(ref Ref) error {
	id, err := ExtractID(ref)
	if err != nil {
		return err
	}
	d.doc.Set("service", id)
	return nil
}

// Pipelines returns the deposited pipelines as held by the document.
func (d *Deposit) Pipelines() []any { return d.doc.Slice("pipelines") }

func (d *Deposit) SetPipelines(refs ...Ref) error {
	ids, err := ExtractIDs(refs)
	if err != nil {
		return err
	}
	d.doc.Set("pipelines", toAnySlice(ids))
	return nil
}

func (d *Deposit) ProjectID() string { return d.doc.String("project_id") }

func (d *Deposit) SetProject(ref Ref) error {
	id, err := ExtractID(ref)
	if err != nil {
		return err
	}
	d.doc.Set("project_id", id)
	return nil
}

func (d *Deposit) Customizations() map[string]any { return d.doc.Map("customizations") }

// WireJSON returns a copy with service and pipelines reduced to ids.
// customizations is never sent: the service validates it even when empty.
func (d *Deposit) WireJSON() (map[string]any, error) {
	wire := d.doc.Clone()
	wire.Delete("customizations")
	if wire.Has("service") {
		id, err := d.ServiceID()
		if err != nil {
			return nil, fmt.Errorf("deposit service: %w", err)
		}
		wire.Set("service", id)
	}
	if wire.Has("pipelines") {
		pipelines := d.Pipelines()
		ids := make([]any, len(pipelines))
		for i, p := range pipelines {
			id, err := idFromValue(p)
			if err != nil {
				return nil, fmt.Errorf("deposit pipeline %d: %w", i, err)
			}
			ids[i] = id
		}
		wire.Set("pipelines", ids)
	}
	return wire.Raw(), nil
}

func (d *Deposit) MarshalJSON() ([]byte, error) {
	wire, err := d.WireJSON()
	if err != nil {
		return nil, err
	}
	return document.New(wire).MarshalJSON()
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
