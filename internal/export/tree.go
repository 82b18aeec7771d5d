package export

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
)

// EnvelopeKey wraps exported trees. It matches the envelope domain.Load reads.
const EnvelopeKey = domain.EnvelopeKey

// Tree maps object identifiers to model snapshots.
type Tree map[string]domain.Model

// Document is the serialized form of an export.
type Document struct {
	OpenMCT Tree `json:"openmct"`
}

type walker struct {
	g       errgroup.Group
	mu      sync.Mutex
	tree    Tree
	visited map[string]struct{}
}

// BuildTree walks the composition of root depth-first and returns every
// reachable object's model keyed by identifier. Children are listed
// concurrently; the walk finishes only when every listed child has itself
// been walked. A repeated identifier overwrites the earlier model and is not
// walked again. Composition failures are logged and the node is kept as a
// leaf.
func BuildTree(ctx context.Context, root *domain.Object) (Tree, error) {
	if root == nil {
		return nil, errors.NewObjectError(errors.ErrorTypeValidation, "build_tree", "", errors.ErrInvalidInput)
	}

	w := &walker{
		tree:    Tree{root.ID(): root.Model()},
		visited: map[string]struct{}{root.ID(): {}},
	}
	w.visit(ctx, root)
	if err := w.g.Wait(); err != nil {
		return nil, err
	}
	return w.tree, nil
}

func (w *walker) visit(ctx context.Context, node *domain.Object) {
	w.g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		composition, ok := node.Composition()
		if !ok {
			return nil
		}
		children, err := composition.Children(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn().Err(err).Str("object", node.ID()).Msg("Composition lookup failed during export")
			return nil
		}
		for _, child := range children {
			if w.add(child) {
				w.visit(ctx, child)
			}
		}
		return nil
	})
}

// add records child and reports whether it still needs walking.
func (w *walker) add(child *domain.Object) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree[child.ID()] = child.Model()
	if _, seen := w.visited[child.ID()]; seen {
		return false
	}
	w.visited[child.ID()] = struct{}{}
	return true
}
