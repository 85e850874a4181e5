package stor

import (
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/hashicorp/go-uuid"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/config"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultTransferLifetime applies when no lifetime is configured: one week,
// matching the default the staging clients were built around.
const DefaultTransferLifetime = 7 * 24 * time.Hour

type GormTransferStor struct {
	db               *gorm.DB
	ingestLifetime   time.Duration
	downloadLifetime time.Duration
}

func NewGormTransferStor(db *gorm.DB) *GormTransferStor {
	return &GormTransferStor{
		db:               db,
		ingestLifetime:   lifetimeFromConfig("STAGING_MAX_INGEST_LIFETIME"),
		downloadLifetime: lifetimeFromConfig("STAGING_MAX_DOWNLOAD_LIFETIME"),
	}
}

func lifetimeFromConfig(key string) time.Duration {
	seconds := config.GetIntKeyWithDefault(key, int(DefaultTransferLifetime/time.Second))
	return time.Duration(seconds) * time.Second
}

func (s *GormTransferStor) LifetimeFor(kind model.Kind) time.Duration {
	if kind == model.KindIngest {
		return s.ingestLifetime
	}
	return s.downloadLifetime
}

// CreateTransfer creates a new transfer record in status SCHEDULED, owned by
// the calling context and expiring after the kind's default lifetime. For
// ingests, an existing record for the same digital object causes
// ErrConflict; the existence check and the insert run in one transaction,
// and the partial-unique active index backstops racing creators.
func (s *GormTransferStor) CreateTransfer(kind model.Kind, objectID, accessPointID string, processors []model.StagingProcessor, ctx auth.AccessContext) (*model.Transfer, error) {
	if objectID == "" {
		return nil, errors.Wrap(ErrValidation, "objectID must not be empty")
	}
	if !ctx.IsValid() {
		return nil, errors.Wrap(ErrValidation, "access context must carry a user id")
	}
	if accessPointID == "" {
		log.Warnf("creating %s transfer for object %s without an access point id; cleanup may not be able to flush it", kind, objectID)
	}

	transferID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expires := now.Add(s.LifetimeFor(kind))
	transfer := &model.Transfer{
		TransferID:    transferID,
		Kind:          kind,
		ObjectID:      objectID,
		AccessPointID: accessPointID,
		OwnerID:       ctx.UserID,
		GroupID:       ctx.GroupID,
		Status:        model.StatusScheduled,
		Processors:    processors,
		LastUpdate:    now,
		ExpiresAt:     &expires,
	}
	transfer.SyncActiveKeys()

	err = WithTxRetry(s.db, func(tx *gorm.DB) error {
		if kind == model.KindIngest {
			var count int64
			q := tx.Model(&model.Transfer{}).Where("kind = ? AND object_id = ?", kind, objectID)
			if err := ownerScoped(q, ctx).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errors.Wrapf(ErrConflict, "transfer for object %s already exists", objectID)
			}
		}
		return tx.Create(transfer).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || isDuplicateKey(err) {
			return nil, errors.Wrapf(ErrConflict, "creating %s transfer for object %s", kind, objectID)
		}
		return nil, errors.Wrapf(ErrPersistence, "creating %s transfer for object %s: %s", kind, objectID, err)
	}
	return transfer, nil
}

// SaveTransfer persists the full state of transfer, bumping LastUpdate and
// re-aligning the uniqueness columns. Associated processors are saved with
// the record. Internal use only: illegal states can be produced through
// careless callers, the service layer is the place that guards transitions.
func (s *GormTransferStor) SaveTransfer(transfer *model.Transfer, ctx auth.AccessContext) (*model.Transfer, error) {
	if transfer == nil {
		return nil, errors.Wrap(ErrValidation, "transfer must not be nil")
	}
	if !ctx.IsPrivileged() && transfer.OwnerID != ctx.UserID {
		return nil, errors.Wrapf(ErrNotFound, "transfer %d is not visible to %s", transfer.ID, ctx)
	}

	transfer.LastUpdate = time.Now()
	transfer.SyncActiveKeys()

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		if err := tx.Model(transfer).Association("Processors").Replace(transfer.Processors); err != nil {
			return err
		}
		return tx.Save(transfer).Error
	})
	if err != nil {
		return nil, errors.Wrapf(ErrPersistence, "saving transfer %d: %s", transfer.ID, err)
	}
	return s.GetTransferByID(transfer.ID, ctx)
}

func (s *GormTransferStor) GetTransferByID(id int64, ctx auth.AccessContext) (*model.Transfer, error) {
	var transfer model.Transfer
	err := ownerScoped(s.db.Preload("Processors").Where("id = ?", id), ctx).First(&transfer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no transfer with id %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *GormTransferStor) ListTransfers(offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := ownerScoped(s.db.Preload("Processors"), ctx).
		Offset(offset).Limit(limit).Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) CountTransfers(ctx auth.AccessContext) (int64, error) {
	var count int64
	err := ownerScoped(s.db.Model(&model.Transfer{}), ctx).Count(&count).Error
	return count, err
}

func (s *GormTransferStor) ListTransfersByObjectID(kind model.Kind, objectID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	if objectID == "" {
		return nil, errors.Wrap(ErrValidation, "objectID must not be empty")
	}
	var transfers []model.Transfer
	err := ownerScoped(s.db.Preload("Processors").Where("kind = ? AND object_id = ?", kind, objectID), ctx).
		Offset(offset).Limit(limit).Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) CountTransfersByObjectID(kind model.Kind, objectID string, ctx auth.AccessContext) (int64, error) {
	var count int64
	err := ownerScoped(s.db.Model(&model.Transfer{}).Where("kind = ? AND object_id = ?", kind, objectID), ctx).
		Count(&count).Error
	return count, err
}

func (s *GormTransferStor) ListTransfersByOwner(ownerID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	if ownerID == "" {
		ownerID = ctx.UserID
	}
	var transfers []model.Transfer
	err := ownerScoped(s.db.Preload("Processors").Where("owner_id = ?", ownerID), ctx).
		Offset(offset).Limit(limit).Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) CountTransfersByOwner(ownerID string, ctx auth.AccessContext) (int64, error) {
	if ownerID == "" {
		ownerID = ctx.UserID
	}
	var count int64
	err := ownerScoped(s.db.Model(&model.Transfer{}).Where("owner_id = ?", ownerID), ctx).
		Count(&count).Error
	return count, err
}

// ListTransfersByStatus lists transfers whose status is contained in
// statusCode, which may combine several states via model.CombineStatus.
func (s *GormTransferStor) ListTransfersByStatus(kind model.Kind, statusCode int, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := ownerScoped(s.db.Preload("Processors").Where("kind = ? AND (status & ?) != 0", kind, statusCode), ctx).
		Offset(offset).Limit(limit).Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) CountTransfersByStatus(kind model.Kind, statusCode int, ctx auth.AccessContext) (int64, error) {
	var count int64
	err := ownerScoped(s.db.Model(&model.Transfer{}).Where("kind = ? AND (status & ?) != 0", kind, statusCode), ctx).
		Count(&count).Error
	return count, err
}

func (s *GormTransferStor) ListExpiredTransfers(kind model.Kind, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := ownerScoped(s.expiredQuery(kind).Preload("Processors"), ctx).
		Offset(offset).Limit(limit).Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) CountExpiredTransfers(kind model.Kind, ctx auth.AccessContext) (int64, error) {
	var count int64
	err := ownerScoped(s.expiredQuery(kind), ctx).Count(&count).Error
	return count, err
}

// expiredQuery selects records past their effective deadline: the explicit
// expiry when set, last update plus the default lifetime otherwise.
func (s *GormTransferStor) expiredQuery(kind model.Kind) *gorm.DB {
	now := time.Now()
	fallbackBefore := now.Add(-s.LifetimeFor(kind))
	return s.db.Model(&model.Transfer{}).
		Where("kind = ?", kind).
		Where("(expires_at IS NOT NULL AND expires_at < ?) OR (expires_at IS NULL AND last_update < ?)", now, fallbackBefore)
}

// UpdateStatus sets status and error message and bumps LastUpdate, all in
// one transaction. It returns the number of affected records: 0 when no
// record is visible to the context.
func (s *GormTransferStor) UpdateStatus(id int64, status model.Status, errorMessage string, ctx auth.AccessContext) (int64, error) {
	if status == model.StatusUnknown {
		return 0, errors.Wrap(ErrValidation, "status must not be UNKNOWN")
	}

	var affected int64
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		err := ownerScoped(tx.Where("id = ?", id), ctx).First(&transfer).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			affected = 0
			return nil
		}
		if err != nil {
			return err
		}

		transfer.Status = status
		transfer.ErrorMessage = errorMessage
		transfer.LastUpdate = time.Now()
		transfer.SyncActiveKeys()
		if err := tx.Save(&transfer).Error; err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(ErrPersistence, "updating status of transfer %d: %s", id, err)
	}
	return affected, nil
}

func (s *GormTransferStor) UpdateClientAccessURL(id int64, clientAccessURL string, ctx auth.AccessContext) (int64, error) {
	return s.updateField(id, "client_access_url", clientAccessURL, ctx)
}

func (s *GormTransferStor) UpdateStagingURL(id int64, stagingURL string, ctx auth.AccessContext) (int64, error) {
	return s.updateField(id, "staging_url", stagingURL, ctx)
}

func (s *GormTransferStor) UpdateStorageURL(id int64, storageURL string, ctx auth.AccessContext) (int64, error) {
	return s.updateField(id, "storage_url", storageURL, ctx)
}

func (s *GormTransferStor) updateField(id int64, column, value string, ctx auth.AccessContext) (int64, error) {
	if value == "" {
		return 0, errors.Wrapf(ErrValidation, "%s must not be empty", column)
	}

	var affected int64
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		q := ownerScoped(tx.Model(&model.Transfer{}).Where("id = ?", id), ctx).
			Updates(map[string]interface{}{column: value, "last_update": time.Now()})
		affected = q.RowsAffected
		return q.Error
	})
	if err != nil {
		return 0, errors.Wrapf(ErrPersistence, "updating %s of transfer %d: %s", column, id, err)
	}
	return affected, nil
}

func (s *GormTransferStor) RemoveTransfer(id int64, ctx auth.AccessContext) (int64, error) {
	var affected int64
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		err := ownerScoped(tx.Where("id = ?", id), ctx).First(&transfer).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			affected = 0
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&transfer).Association("Processors").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(&transfer).Error; err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(ErrPersistence, "removing transfer %d: %s", id, err)
	}
	return affected, nil
}

// ownerScoped narrows q to records the context may see.
func ownerScoped(q *gorm.DB, ctx auth.AccessContext) *gorm.DB {
	if owner := ctx.OwnerFilter(); owner != auth.OwnerWildcard {
		return q.Where("owner_id = ?", owner)
	}
	return q
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
