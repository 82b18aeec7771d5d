package domain

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dedurus/openmct/internal/errors"
)

// EnvelopeKey wraps object trees in both the objects file and exports.
const EnvelopeKey = "openmct"

type envelope struct {
	Objects map[string]Model `json:"openmct"`
}

// Load reads {"openmct": {"<id>": <model>}} and stores every model. Ids are
// inserted in sorted order so listings are stable across runs.
func (r *Registry) Load(rd io.Reader) (int, error) {
	var env envelope
	if err := json.NewDecoder(rd).Decode(&env); err != nil {
		return 0, errors.NewObjectError(errors.ErrorTypeValidation, "load_objects", "", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err))
	}
	if env.Objects == nil {
		return 0, errors.NewObjectError(errors.ErrorTypeValidation, "load_objects", "", fmt.Errorf("%w: missing %q key", errors.ErrInvalidInput, EnvelopeKey))
	}

	ids := make([]string, 0, len(env.Objects))
	for id := range env.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := r.Put(id, env.Objects[id]); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// LoadFile loads an objects file from disk.
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open objects file %s: %w", path, err)
	}
	defer f.Close()

	n, err := r.Load(f)
	if err != nil {
		return 0, fmt.Errorf("load objects file %s: %w", path, err)
	}
	return n, nil
}
