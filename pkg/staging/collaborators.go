package staging

import (
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
)

// ObjectRegistry answers whether a digital object exists and is visible
// to the caller. Backed by the repository service in production.
type ObjectRegistry interface {
	Exists(objectID string, ctx auth.AccessContext) (bool, error)
}

// PreparationHandler performs the actual data movement for a scheduled
// transfer. PrepareTransfer is synchronous and may be long-running; the
// handler owns any timeout, the service does not impose one.
type PreparationHandler interface {
	PrepareTransfer(transfer *model.Transfer, tree *dataorg.FileTree, properties *TransferClientProperties, ctx auth.AccessContext) error
}

// LocalFlusher removes locally staged bytes for a transfer. Flush is
// idempotent and safe to call when nothing was staged.
type LocalFlusher interface {
	Flush(transferID int64, ctx auth.AccessContext) error
}
