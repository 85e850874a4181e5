package staging

import (
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/stagedb/stor"
	"github.com/pkg/errors"
)

// SnapshotObjectRegistry treats a digital object as existing when a file
// tree snapshot was registered for it. Used when the daemon runs without a
// separate repository service to delegate existence checks to.
type SnapshotObjectRegistry struct {
	trees stor.TreeStor
}

func NewSnapshotObjectRegistry(trees stor.TreeStor) *SnapshotObjectRegistry {
	return &SnapshotObjectRegistry{trees: trees}
}

func (r *SnapshotObjectRegistry) Exists(objectID string, ctx auth.AccessContext) (bool, error) {
	if _, err := r.trees.LoadFileTree(objectID, ctx); err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
