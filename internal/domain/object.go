package domain

// Object is an addressable entity in the object model. Its model is a
// snapshot taken when the object was fetched from the registry.
type Object struct {
	id    string
	model Model
	reg   *Registry
}

// ID returns the stable identifier.
func (o *Object) ID() string {
	return o.id
}

// Model returns a copy of the model snapshot.
func (o *Object) Model() Model {
	return o.model.Clone()
}

// Name returns the display name from the model.
func (o *Object) Name() string {
	return o.model.Name()
}

// Type returns the type key from the model.
func (o *Object) Type() string {
	return o.model.Type()
}

// HasCapability reports whether the named capability is available.
func (o *Object) HasCapability(name string) bool {
	_, ok := o.Capability(name)
	return ok
}

// Capabilities returns the names of the available capabilities in
// CapabilityNames order.
func (o *Object) Capabilities() []string {
	out := make([]string, 0, len(CapabilityNames))
	for _, name := range CapabilityNames {
		if o.HasCapability(name) {
			out = append(out, name)
		}
	}
	return out
}

// Capability looks the named capability up through the registry.
func (o *Object) Capability(name string) (interface{}, bool) {
	if o == nil || o.reg == nil {
		return nil, false
	}
	return o.reg.capability(o, name)
}

// Telemetry returns the telemetry capability, if present.
func (o *Object) Telemetry() (TelemetryCapability, bool) {
	c, ok := o.Capability(CapabilityTelemetry)
	if !ok {
		return nil, false
	}
	t, ok := c.(TelemetryCapability)
	return t, ok
}

// Composition returns the composition capability, if present.
func (o *Object) Composition() (CompositionCapability, bool) {
	c, ok := o.Capability(CapabilityComposition)
	if !ok {
		return nil, false
	}
	comp, ok := c.(CompositionCapability)
	return comp, ok
}

// Delegation returns the delegation capability, if present.
func (o *Object) Delegation() (DelegationCapability, bool) {
	c, ok := o.Capability(CapabilityDelegation)
	if !ok {
		return nil, false
	}
	d, ok := c.(DelegationCapability)
	return d, ok
}

// Creation returns the creation capability, if present.
func (o *Object) Creation() (CreationCapability, bool) {
	c, ok := o.Capability(CapabilityCreation)
	if !ok {
		return nil, false
	}
	cr, ok := c.(CreationCapability)
	return cr, ok
}
