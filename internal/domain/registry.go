package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/errors"
)

// Registry is a threadsafe in-memory catalog of object models plus the
// capability factories that decorate them.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]Model
	order     []string
	types     map[string]TypeDef
	factories map[string]CapabilityFactory
}

// NewRegistry returns a registry with the default types and the
// composition, delegation and creation capabilities installed.
func NewRegistry() *Registry {
	r := &Registry{
		models:    make(map[string]Model),
		types:     make(map[string]TypeDef),
		factories: make(map[string]CapabilityFactory),
	}
	for _, def := range DefaultTypes() {
		r.types[def.Key] = def
	}
	r.factories[CapabilityComposition] = r.compositionCapability
	r.factories[CapabilityDelegation] = r.delegationCapability
	r.factories[CapabilityCreation] = r.creationCapability
	return r
}

// RegisterCapability installs (or replaces) the factory for a capability name.
func (r *Registry) RegisterCapability(name string, factory CapabilityFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if factory == nil {
		delete(r.factories, name)
		return
	}
	r.factories[name] = factory
}

// RegisterType installs (or replaces) a type definition.
func (r *Registry) RegisterType(def TypeDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Key] = def
}

// Type returns the definition for a type key.
func (r *Registry) Type(key string) (TypeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[key]
	return def, ok
}

// Put stores a model under id, replacing any previous model.
func (r *Registry) Put(id string, model Model) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.NewObjectError(errors.ErrorTypeValidation, "put_object", "", fmt.Errorf("%w: empty identifier", errors.ErrInvalidInput))
	}
	if model == nil {
		model = Model{}
	}

	r.mu.Lock()
	if _, exists := r.models[id]; !exists {
		r.order = append(r.order, id)
	}
	r.models[id] = model.Clone()
	r.mu.Unlock()
	return nil
}

// Remove deletes a model by id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return false
	}
	delete(r.models, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns an object holding a snapshot of the current model.
func (r *Registry) Get(id string) (*Object, bool) {
	r.mu.RLock()
	model, ok := r.models[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &Object{id: id, model: model.Clone(), reg: r}, true
}

// Lookup is Get with a structured not-found error.
func (r *Registry) Lookup(id string) (*Object, error) {
	obj, ok := r.Get(id)
	if !ok {
		return nil, errors.NotFound("lookup_object", id)
	}
	return obj, nil
}

// IDs returns identifiers in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of stored models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Match returns the objects whose identifier matches a wildcard pattern
// such as "gen-*". An empty pattern matches all.
func (r *Registry) Match(pattern string) []*Object {
	pattern = strings.TrimSpace(pattern)
	ids := r.IDs()
	out := make([]*Object, 0, len(ids))
	for _, id := range ids {
		if pattern != "" && !wildcard.Match(pattern, id) {
			continue
		}
		if obj, ok := r.Get(id); ok {
			out = append(out, obj)
		}
	}
	return out
}

func (r *Registry) capability(obj *Object, name string) (interface{}, bool) {
	r.mu.RLock()
	factory := r.factories[name]
	r.mu.RUnlock()
	if factory == nil {
		return nil, false
	}
	c, ok := factory(obj)
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

func (r *Registry) compositionCapability(obj *Object) (interface{}, bool) {
	if _, ok := obj.model.Composition(); !ok {
		return nil, false
	}
	return &modelComposition{obj: obj, reg: r}, true
}

func (r *Registry) delegationCapability(obj *Object) (interface{}, bool) {
	def, ok := r.Type(obj.Type())
	if !ok || len(def.Delegates) == 0 {
		return nil, false
	}
	return &typeDelegation{obj: obj, delegates: def.Delegates}, true
}

func (r *Registry) creationCapability(obj *Object) (interface{}, bool) {
	def, ok := r.Type(obj.Type())
	if !ok || !def.Creatable {
		return nil, false
	}
	return creatable{}, true
}

func logMissingChild(parent, child string) {
	log.Warn().
		Str("object", parent).
		Str("child", child).
		Msg("Composition references unknown object; skipping")
}
