package stor

import (
	"time"

	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"gorm.io/gorm"
)

// TransferStor persists transfer records. Every call is scoped by the access
// context: privileged contexts see all records, everyone else only their
// own. List operations take offset/limit with -1 meaning unbounded, and
// their Count counterparts agree with the unbounded list length for the
// same filter.
type TransferStor interface {
	CreateTransfer(kind model.Kind, objectID, accessPointID string, processors []model.StagingProcessor, ctx auth.AccessContext) (*model.Transfer, error)
	SaveTransfer(transfer *model.Transfer, ctx auth.AccessContext) (*model.Transfer, error)

	GetTransferByID(id int64, ctx auth.AccessContext) (*model.Transfer, error)
	ListTransfers(offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error)
	CountTransfers(ctx auth.AccessContext) (int64, error)
	ListTransfersByObjectID(kind model.Kind, objectID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error)
	CountTransfersByObjectID(kind model.Kind, objectID string, ctx auth.AccessContext) (int64, error)
	ListTransfersByOwner(ownerID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error)
	CountTransfersByOwner(ownerID string, ctx auth.AccessContext) (int64, error)
	ListTransfersByStatus(kind model.Kind, statusCode int, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error)
	CountTransfersByStatus(kind model.Kind, statusCode int, ctx auth.AccessContext) (int64, error)
	ListExpiredTransfers(kind model.Kind, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error)
	CountExpiredTransfers(kind model.Kind, ctx auth.AccessContext) (int64, error)

	UpdateStatus(id int64, status model.Status, errorMessage string, ctx auth.AccessContext) (int64, error)
	UpdateClientAccessURL(id int64, clientAccessURL string, ctx auth.AccessContext) (int64, error)
	UpdateStagingURL(id int64, stagingURL string, ctx auth.AccessContext) (int64, error)
	UpdateStorageURL(id int64, storageURL string, ctx auth.AccessContext) (int64, error)

	RemoveTransfer(id int64, ctx auth.AccessContext) (int64, error)

	// LifetimeFor returns the default lifetime a fresh record of the given
	// kind receives before it expires.
	LifetimeFor(kind model.Kind) time.Duration
}

// ProcessorStor is the registry of staging processor definitions.
type ProcessorStor interface {
	CreateProcessor(processor *model.StagingProcessor) (*model.StagingProcessor, error)
	GetProcessorByIdentifier(uniqueIdentifier string) (*model.StagingProcessor, error)
	FindProcessorsForGroup(groupID string) ([]model.StagingProcessor, error)
	FindDefaultProcessorsForGroup(groupID string, kind model.Kind) ([]model.StagingProcessor, error)
}

// TreeStor persists file tree snapshots, the store behind the
// data-organization loader and the size/file-count aggregates.
type TreeStor interface {
	SaveTreeSnapshot(tree *dataorg.FileTree, ctx auth.AccessContext) (*model.TreeSnapshot, error)
	LoadFileTree(objectID string, ctx auth.AccessContext) (*dataorg.FileTree, error)

	// GetAssociatedDataSize and GetAssociatedFileCount aggregate the
	// root-level size/file-count columns for one object, or for every
	// object when objectID is empty. Both return 0 when nothing is found
	// or the context may not see the snapshot; denial is silent.
	GetAssociatedDataSize(objectID string, ctx auth.AccessContext) int64
	GetAssociatedFileCount(objectID string, ctx auth.AccessContext) int64
}

type Stors struct {
	TransferStor  TransferStor
	ProcessorStor ProcessorStor
	TreeStor      TreeStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		TransferStor:  NewGormTransferStor(db),
		ProcessorStor: NewGormProcessorStor(db),
		TreeStor:      NewGormTreeStor(db),
	}
}
