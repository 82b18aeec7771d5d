package domain

// Model is the persisted, schemaless state of a domain object. Keys the
// service interprets: "name", "type", "composition" and "telemetry".
type Model map[string]interface{}

// Name returns the display name, or an empty string.
func (m Model) Name() string {
	name, _ := m["name"].(string)
	return name
}

// Type returns the object type key, or an empty string.
func (m Model) Type() string {
	typ, _ := m["type"].(string)
	return typ
}

// Composition returns the child identifiers. The second result reports
// whether the model carries a composition list at all, which is what
// decides if the object has the composition capability.
func (m Model) Composition() ([]string, bool) {
	switch raw := m["composition"].(type) {
	case []string:
		return append([]string(nil), raw...), true
	case []interface{}:
		ids := make([]string, 0, len(raw))
		for _, v := range raw {
			if id, ok := v.(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
		return ids, true
	default:
		return nil, false
	}
}

// Section returns a nested object value such as model["telemetry"].
func (m Model) Section(key string) (map[string]interface{}, bool) {
	section, ok := m[key].(map[string]interface{})
	return section, ok
}

// Clone returns a deep copy so snapshots handed out never alias registry state.
func (m Model) Clone() Model {
	if m == nil {
		return nil
	}
	return Model(cloneMap(m))
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case Model:
		return Model(cloneMap(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
