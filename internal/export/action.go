// Package export serializes the composition tree of a domain object.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/metrics"
)

// ActionContext is what an action is invoked on.
type ActionContext struct {
	DomainObject *domain.Object
}

// AppliesTo reports whether the export action is offered for actx: only
// objects that support creation can be exported.
func AppliesTo(actx ActionContext) bool {
	if actx.DomainObject == nil {
		return false
	}
	creation, ok := actx.DomainObject.Creation()
	return ok && creation.Creatable()
}

// Action exports the tree rooted at its context's domain object.
type Action struct {
	context ActionContext
	service Service
}

// NewAction binds an action to a context and export service.
func NewAction(actx ActionContext, service Service) *Action {
	return &Action{context: actx, service: service}
}

// Perform starts the export in the background. Failures are logged.
func (a *Action) Perform(ctx context.Context) {
	go func() {
		if err := a.Run(ctx); err != nil {
			log.Error().Err(err).Str("object", rootID(a.context.DomainObject)).Msg("Export failed")
		}
	}()
}

// Run builds the tree and hands the wrapped document to the export service
// exactly once.
func (a *Action) Run(ctx context.Context) error {
	start := time.Now()
	root := a.context.DomainObject

	tree, err := BuildTree(ctx, root)
	if err != nil {
		metrics.RecordExport(false, time.Since(start), 0)
		return fmt.Errorf("build export tree: %w", err)
	}

	opts := Options{Filename: Filename(root)}
	if err := a.service.ExportJSON(ctx, Document{OpenMCT: tree}, opts); err != nil {
		metrics.RecordExport(false, time.Since(start), len(tree))
		return fmt.Errorf("export %s: %w", opts.Filename, err)
	}

	metrics.RecordExport(true, time.Since(start), len(tree))
	log.Info().
		Str("object", root.ID()).
		Str("filename", opts.Filename).
		Int("objects", len(tree)).
		Dur("duration", time.Since(start)).
		Msg("Exported object tree")
	return nil
}

// Filename is the root's display name with a .json suffix. Unnamed roots
// fall back to their identifier.
func Filename(root *domain.Object) string {
	name := root.Name()
	if name == "" {
		name = root.ID()
	}
	return name + ".json"
}

func rootID(obj *domain.Object) string {
	if obj == nil {
		return ""
	}
	return obj.ID()
}
