package domain

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dedurus/openmct/internal/errors"
)

type stubTelemetry struct{ key string }

func (s stubTelemetry) RequestData(context.Context, Request) (Payload, error) {
	return Payload{"key": s.key}, nil
}

func (s stubTelemetry) Metadata() Metadata { return Metadata{"key": s.key} }

func telemetryFromModel(obj *Object) (interface{}, bool) {
	if _, ok := obj.model.Section("telemetry"); !ok {
		return nil, false
	}
	return stubTelemetry{key: obj.ID()}, true
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.RegisterCapability(CapabilityTelemetry, telemetryFromModel)

	require.NoError(t, reg.Put("root", Model{"name": "Root", "type": "folder", "composition": []interface{}{"panel", "missing"}}))
	require.NoError(t, reg.Put("panel", Model{"name": "Panel", "type": "telemetry.panel", "composition": []string{"gen-a", "notes", "gen-b"}}))
	require.NoError(t, reg.Put("gen-a", Model{"name": "A", "type": "generator", "telemetry": map[string]interface{}{"source": "generator"}}))
	require.NoError(t, reg.Put("gen-b", Model{"name": "B", "type": "generator", "telemetry": map[string]interface{}{"source": "generator"}}))
	require.NoError(t, reg.Put("notes", Model{"name": "Notes", "type": "note"}))
	return reg
}

func TestRegistryPutGetReturnsSnapshots(t *testing.T) {
	reg := NewRegistry()
	model := Model{"name": "Root", "composition": []interface{}{"a"}}
	require.NoError(t, reg.Put("root", model))

	model["name"] = "mutated"

	obj, ok := reg.Get("root")
	require.True(t, ok)
	assert.Equal(t, "Root", obj.Name())

	snapshot := obj.Model()
	snapshot["name"] = "changed"
	assert.Equal(t, "Root", obj.Name())
}

func TestRegistryPutRejectsEmptyID(t *testing.T) {
	reg := NewRegistry()
	err := reg.Put("  ", Model{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRegistryLookupNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistryIDsKeepInsertionOrderAndRemove(t *testing.T) {
	reg := newTestRegistry(t)
	assert.Equal(t, []string{"root", "panel", "gen-a", "gen-b", "notes"}, reg.IDs())

	assert.True(t, reg.Remove("gen-a"))
	assert.False(t, reg.Remove("gen-a"))
	assert.Equal(t, []string{"root", "panel", "gen-b", "notes"}, reg.IDs())
	assert.Equal(t, 4, reg.Len())
}

func TestCompositionCapabilitySkipsUnknownChildren(t *testing.T) {
	reg := newTestRegistry(t)
	root, _ := reg.Get("root")

	comp, ok := root.Composition()
	require.True(t, ok)
	children, err := comp.Children(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "panel", children[0].ID())

	leaf, _ := reg.Get("gen-a")
	assert.False(t, leaf.HasCapability(CapabilityComposition))
}

func TestCompositionCapabilityForEmptyList(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Put("empty", Model{"composition": []interface{}{}}))
	obj, _ := reg.Get("empty")

	comp, ok := obj.Composition()
	require.True(t, ok)
	children, err := comp.Children(context.Background())
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestDelegationReturnsTelemetryChildrenInOrder(t *testing.T) {
	reg := newTestRegistry(t)
	panel, _ := reg.Get("panel")

	assert.False(t, panel.HasCapability(CapabilityTelemetry))
	delegation, ok := panel.Delegation()
	require.True(t, ok)

	delegates, err := delegation.Delegate(context.Background(), CapabilityTelemetry)
	require.NoError(t, err)
	ids := make([]string, 0, len(delegates))
	for _, obj := range delegates {
		ids = append(ids, obj.ID())
	}
	assert.Equal(t, []string{"gen-a", "gen-b"}, ids)

	other, err := delegation.Delegate(context.Background(), CapabilityComposition)
	require.NoError(t, err)
	assert.Empty(t, other)

	folder, _ := reg.Get("root")
	assert.False(t, folder.HasCapability(CapabilityDelegation))
}

func TestCreationCapabilityFollowsType(t *testing.T) {
	reg := newTestRegistry(t)

	root, _ := reg.Get("root")
	creation, ok := root.Creation()
	require.True(t, ok)
	assert.True(t, creation.Creatable())

	notes, _ := reg.Get("notes")
	assert.False(t, notes.HasCapability(CapabilityCreation))

	reg.RegisterType(TypeDef{Key: "note", Creatable: true})
	assert.True(t, notes.HasCapability(CapabilityCreation))
}

func TestObjectCapabilities(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		id   string
		want []string
	}{
		{"panel", []string{CapabilityComposition, CapabilityDelegation, CapabilityCreation}},
		{"gen-a", []string{CapabilityTelemetry, CapabilityCreation}},
		{"notes", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			obj, ok := reg.Get(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.want, obj.Capabilities())
		})
	}
}

func TestRegisterCapabilityNilRemovesFactory(t *testing.T) {
	reg := newTestRegistry(t)
	gen, _ := reg.Get("gen-a")
	require.True(t, gen.HasCapability(CapabilityTelemetry))

	reg.RegisterCapability(CapabilityTelemetry, nil)
	assert.False(t, gen.HasCapability(CapabilityTelemetry))
}

func TestMatchUsesWildcards(t *testing.T) {
	reg := newTestRegistry(t)

	ids := func(objs []*Object) []string {
		out := make([]string, 0, len(objs))
		for _, obj := range objs {
			out = append(out, obj.ID())
		}
		return out
	}

	assert.Equal(t, []string{"gen-a", "gen-b"}, ids(reg.Match("gen-*")))
	assert.Equal(t, []string{"panel"}, ids(reg.Match("pan*")))
	assert.Len(t, reg.Match(""), 5)
	assert.Empty(t, reg.Match("zzz*"))
}

func TestLoadEnvelope(t *testing.T) {
	reg := NewRegistry()
	n, err := reg.Load(strings.NewReader(`{"openmct": {
		"b": {"name": "B", "type": "folder", "composition": ["a"]},
		"a": {"name": "A", "type": "generator", "telemetry": {"source": "generator"}}
	}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, reg.IDs())

	b, _ := reg.Get("b")
	ids, ok := b.Model().Composition()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, ids)
}

func TestLoadRejectsMissingEnvelope(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Load(strings.NewReader(`{"objects": {}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = reg.Load(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestParseRequestValue(t *testing.T) {
	tests := []struct {
		raw  string
		want interface{}
	}{
		{"latest", "latest"},
		{"42", 42.0},
		{"-1.5", -1.5},
		{"NaN", "NaN"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequestValue(tt.raw))
		})
	}
}
