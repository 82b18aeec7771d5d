package domain

import (
	"context"
	"slices"
)

// TypeDef describes how objects of one type behave.
type TypeDef struct {
	Key       string
	Name      string
	Creatable bool
	// Delegates lists capabilities the type forwards to its children.
	Delegates []string
}

// DefaultTypes returns the built-in type definitions.
func DefaultTypes() []TypeDef {
	return []TypeDef{
		{Key: "folder", Name: "Folder", Creatable: true},
		{Key: "telemetry.panel", Name: "Telemetry Panel", Creatable: true, Delegates: []string{CapabilityTelemetry}},
		{Key: "generator", Name: "Sine Wave Generator", Creatable: true},
		{Key: "host.metric", Name: "Host Metric"},
		{Key: "http.telemetry", Name: "Remote Telemetry Point"},
	}
}

type modelComposition struct {
	obj *Object
	reg *Registry
}

// Children resolves the composition ids against the registry in model order.
// Unknown ids are skipped.
func (c *modelComposition) Children(ctx context.Context) ([]*Object, error) {
	ids, _ := c.obj.model.Composition()
	children := make([]*Object, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		child, ok := c.reg.Get(id)
		if !ok {
			logMissingChild(c.obj.id, id)
			continue
		}
		children = append(children, child)
	}
	return children, nil
}

type typeDelegation struct {
	obj       *Object
	delegates []string
}

// Delegate returns the children that expose the requested capability, for
// capabilities this object's type delegates.
func (d *typeDelegation) Delegate(ctx context.Context, capability string) ([]*Object, error) {
	if !slices.Contains(d.delegates, capability) {
		return nil, nil
	}
	comp, ok := d.obj.Composition()
	if !ok {
		return nil, nil
	}
	children, err := comp.Children(ctx)
	if err != nil {
		return nil, err
	}
	out := children[:0]
	for _, child := range children {
		if child.HasCapability(capability) {
			out = append(out, child)
		}
	}
	return out, nil
}

type creatable struct{}

func (creatable) Creatable() bool { return true }
