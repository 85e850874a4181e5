package staging

import (
	"time"

	"github.com/apex/log"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/clog"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/kit-data-manager/staging/pkg/stagedb/stor"
	"github.com/pkg/errors"
)

// Service orchestrates the transfer lifecycle: schedule, processor
// assignment, status transitions and cleanup. All persistence goes through
// the stors, all data movement through the collaborators; the service holds
// no state of its own beyond its wiring and is safe for concurrent use.
type Service struct {
	transfers  stor.TransferStor
	processors stor.ProcessorStor
	trees      stor.TreeStor
	registry   ObjectRegistry
	handler    PreparationHandler
	flusher    LocalFlusher
}

func NewService(stors *stor.Stors, registry ObjectRegistry, handler PreparationHandler, flusher LocalFlusher) *Service {
	return &Service{
		transfers:  stors.TransferStor,
		processors: stors.ProcessorStor,
		trees:      stors.TreeStor,
		registry:   registry,
		handler:    handler,
		flusher:    flusher,
	}
}

// ScheduleDownload schedules a download of objectID through the access point
// named in properties. When tree is nil the full file tree of the object is
// loaded from the snapshot store; a caller-supplied tree selects a subset.
// An existing non-final download for the same (object, access point) is
// reused: its local staging data is flushed and the record is reset to
// SCHEDULED with a fresh expiry.
func (s *Service) ScheduleDownload(objectID string, tree *dataorg.FileTree, properties *TransferClientProperties, ctx auth.AccessContext) (*model.Transfer, error) {
	return s.schedule(model.KindDownload, objectID, tree, properties, ctx)
}

// PrepareIngest schedules an ingest of objectID. At most one ingest record
// may exist per object; scheduling while one exists is a conflict. Retrying
// a failed ingest means removing the old record first (or waiting for
// cleanup to collect it).
func (s *Service) PrepareIngest(objectID string, tree *dataorg.FileTree, properties *TransferClientProperties, ctx auth.AccessContext) (*model.Transfer, error) {
	return s.schedule(model.KindIngest, objectID, tree, properties, ctx)
}

func (s *Service) schedule(kind model.Kind, objectID string, tree *dataorg.FileTree, properties *TransferClientProperties, ctx auth.AccessContext) (*model.Transfer, error) {
	if !ctx.IsValid() {
		return nil, errors.Wrapf(ErrUnauthorized, "scheduling %s of %s", kind, objectID)
	}

	if objectID == "" {
		return nil, errors.Wrap(ErrTransferPreparation, "object id must not be empty")
	}

	if properties == nil {
		properties = &TransferClientProperties{}
	}

	if err := s.checkObject(objectID, ctx); err != nil {
		return nil, err
	}

	processorSet, err := s.resolveProcessors(kind, properties, ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrTransferPreparation, "resolving processors for %s: %s", objectID, err)
	}

	snapshot, err := s.resolveTree(objectID, tree, ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrTransferPreparation, "resolving file tree for %s: %s", objectID, err)
	}

	transfer, err := s.findOrCreate(kind, objectID, processorSet, properties, ctx)
	if err != nil {
		return nil, err
	}

	if err := s.handler.PrepareTransfer(transfer, snapshot, properties, ctx); err != nil {
		clog.ForTransfer(transfer.ID).Errorf("Preparation of %s (object %s) failed: %s", kind, objectID, err)
		if _, uerr := s.transfers.UpdateStatus(transfer.ID, model.StatusPreparationFailed, err.Error(), ctx); uerr != nil {
			clog.ForTransfer(transfer.ID).Errorf("Unable to mark transfer as failed: %s", uerr)
		}
		return nil, errors.Wrapf(ErrTransferPreparation, "preparing %s of %s: %s", kind, objectID, err)
	}

	return s.transfers.GetTransferByID(transfer.ID, ctx)
}

func (s *Service) checkObject(objectID string, ctx auth.AccessContext) error {
	ok, err := s.registry.Exists(objectID, ctx)
	if err != nil {
		return errors.Wrapf(ErrTransferPreparation, "checking object %s: %s", objectID, err)
	}

	if !ok {
		return errors.Wrapf(ErrObjectNotFound, "object %s", objectID)
	}

	return nil
}

// resolveProcessors merges the caller-assigned processors with the group
// defaults for the transfer direction. An assigned processor wins over a
// default with the same identifier; disabled or wrong-direction processors
// are dropped regardless of how they were named.
func (s *Service) resolveProcessors(kind model.Kind, properties *TransferClientProperties, ctx auth.AccessContext) ([]model.StagingProcessor, error) {
	var assigned []model.StagingProcessor
	for _, id := range properties.ProcessorIDs {
		processor, err := s.processors.GetProcessorByIdentifier(id)
		if err != nil {
			return nil, errors.Wrapf(err, "processor %s", id)
		}

		if processor.Disabled || !processor.AppliesTo(kind) {
			log.Warnf("Ignoring assigned processor %s (%s): disabled or wrong direction", processor.Name, id)
			continue
		}

		assigned = append(assigned, *processor)
	}

	defaults, err := s.processors.FindDefaultProcessorsForGroup(ctx.GroupID, kind)
	if err != nil {
		return nil, err
	}

	return mergeProcessors(assigned, defaults), nil
}

func mergeProcessors(assigned, defaults []model.StagingProcessor) []model.StagingProcessor {
	merged := make([]model.StagingProcessor, 0, len(assigned)+len(defaults))
	seen := make(map[string]bool)
	for _, p := range assigned {
		if !seen[p.UniqueIdentifier] {
			seen[p.UniqueIdentifier] = true
			merged = append(merged, p)
		}
	}

	for _, p := range defaults {
		if !seen[p.UniqueIdentifier] {
			seen[p.UniqueIdentifier] = true
			merged = append(merged, p)
		}
	}

	return merged
}

// resolveTree returns the detached snapshot the transfer operates on. The
// caller tree, when given, is already the subset the caller wants; either
// way the record never aliases live tree state.
func (s *Service) resolveTree(objectID string, tree *dataorg.FileTree, ctx auth.AccessContext) (*dataorg.FileTree, error) {
	if tree == nil {
		loaded, err := s.trees.LoadFileTree(objectID, ctx)
		if err != nil {
			return nil, err
		}
		tree = loaded
	}

	return dataorg.CopyTree(tree, false)
}

func (s *Service) findOrCreate(kind model.Kind, objectID string, processorSet []model.StagingProcessor, properties *TransferClientProperties, ctx auth.AccessContext) (*model.Transfer, error) {
	existing, err := s.findReusable(kind, objectID, properties.AccessPointID, ctx)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return s.reschedule(existing, processorSet, ctx)
	}

	transfer, err := s.transfers.CreateTransfer(kind, objectID, properties.AccessPointID, processorSet, ctx)
	if err != nil {
		if errors.Is(err, stor.ErrConflict) {
			// Lost the race against a concurrent schedule for the same
			// object; surface the conflict unchanged.
			return nil, err
		}
		return nil, errors.Wrapf(ErrTransferPreparation, "creating %s of %s: %s", kind, objectID, err)
	}

	if properties.StagingURL != "" {
		if _, err := s.transfers.UpdateStagingURL(transfer.ID, properties.StagingURL, ctx); err != nil {
			return nil, errors.Wrapf(ErrTransferPreparation, "setting staging url on transfer %d: %s", transfer.ID, err)
		}
	}

	if properties.ClientAccessURL != "" {
		if _, err := s.transfers.UpdateClientAccessURL(transfer.ID, properties.ClientAccessURL, ctx); err != nil {
			return nil, errors.Wrapf(ErrTransferPreparation, "setting client access url on transfer %d: %s", transfer.ID, err)
		}
	}

	return transfer, nil
}

// findReusable locates an existing non-final record the schedule call may
// take over. Downloads reuse any non-final record for the same access
// point. Ingests only reuse failed records (retry); any other non-final
// ingest is a conflict since at most one may exist per object.
func (s *Service) findReusable(kind model.Kind, objectID, accessPointID string, ctx auth.AccessContext) (*model.Transfer, error) {
	records, err := s.transfers.ListTransfersByObjectID(kind, objectID, -1, -1, ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrTransferPreparation, "looking up transfers of %s: %s", objectID, err)
	}

	for i := range records {
		record := &records[i]
		if record.Status.IsFinalState(kind) {
			continue
		}

		switch kind {
		case model.KindDownload:
			if record.AccessPointID == accessPointID {
				return record, nil
			}
		case model.KindIngest:
			// The store rejects a second ingest record per object, so no
			// existing non-final ingest is ever taken over.
			return nil, errors.Wrapf(stor.ErrConflict, "ingest %d for object %s is still %s", record.ID, objectID, record.Status)
		}
	}

	return nil, nil
}

// reschedule resets an existing record to SCHEDULED: flush staged bytes,
// clear the error and client URL from the previous attempt, extend the
// expiry and replace the processor set.
func (s *Service) reschedule(transfer *model.Transfer, processorSet []model.StagingProcessor, ctx auth.AccessContext) (*model.Transfer, error) {
	if err := s.flusher.Flush(transfer.ID, ctx); err != nil {
		return nil, errors.Wrapf(ErrTransferPreparation, "flushing staged data of transfer %d: %s", transfer.ID, err)
	}

	expires := time.Now().Add(s.transfers.LifetimeFor(transfer.Kind))
	transfer.Status = model.StatusScheduled
	transfer.ErrorMessage = ""
	transfer.ClientAccessURL = ""
	transfer.ExpiresAt = &expires
	transfer.Processors = processorSet

	saved, err := s.transfers.SaveTransfer(transfer, ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrTransferPreparation, "rescheduling transfer %d: %s", transfer.ID, err)
	}

	log.Infof("Rescheduled %s %d of object %s", saved.Kind, saved.ID, saved.ObjectID)
	return saved, nil
}

func (s *Service) GetTransferByID(id int64, ctx auth.AccessContext) (*model.Transfer, error) {
	return s.transfers.GetTransferByID(id, ctx)
}

func (s *Service) ListTransfers(offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.transfers.ListTransfers(offset, limit, ctx)
}

func (s *Service) CountTransfers(ctx auth.AccessContext) (int64, error) {
	return s.transfers.CountTransfers(ctx)
}

func (s *Service) ListTransfersByObjectID(kind model.Kind, objectID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.transfers.ListTransfersByObjectID(kind, objectID, offset, limit, ctx)
}

func (s *Service) CountTransfersByObjectID(kind model.Kind, objectID string, ctx auth.AccessContext) (int64, error) {
	return s.transfers.CountTransfersByObjectID(kind, objectID, ctx)
}

func (s *Service) ListTransfersByOwner(ownerID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.transfers.ListTransfersByOwner(ownerID, offset, limit, ctx)
}

func (s *Service) CountTransfersByOwner(ownerID string, ctx auth.AccessContext) (int64, error) {
	return s.transfers.CountTransfersByOwner(ownerID, ctx)
}

func (s *Service) ListTransfersByStatus(kind model.Kind, statusCode int, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.transfers.ListTransfersByStatus(kind, statusCode, offset, limit, ctx)
}

func (s *Service) CountTransfersByStatus(kind model.Kind, statusCode int, ctx auth.AccessContext) (int64, error) {
	return s.transfers.CountTransfersByStatus(kind, statusCode, ctx)
}

func (s *Service) ListExpiredTransfers(kind model.Kind, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.transfers.ListExpiredTransfers(kind, offset, limit, ctx)
}

func (s *Service) CountExpiredTransfers(kind model.Kind, ctx auth.AccessContext) (int64, error) {
	return s.transfers.CountExpiredTransfers(kind, ctx)
}

// UpdateStatus advances a transfer through its state machine. Transitions
// only move forward; an illegal transition is a validation error and leaves
// the record untouched.
func (s *Service) UpdateStatus(id int64, status model.Status, errorMessage string, ctx auth.AccessContext) (int64, error) {
	transfer, err := s.transfers.GetTransferByID(id, ctx)
	if err != nil {
		return 0, err
	}

	if !transfer.Status.CanTransitionTo(status, transfer.Kind) {
		return 0, errors.Wrapf(stor.ErrValidation, "transfer %d cannot move from %s to %s", id, transfer.Status, status)
	}

	return s.transfers.UpdateStatus(id, status, errorMessage, ctx)
}

func (s *Service) UpdateClientAccessURL(id int64, clientAccessURL string, ctx auth.AccessContext) (int64, error) {
	return s.transfers.UpdateClientAccessURL(id, clientAccessURL, ctx)
}

func (s *Service) UpdateStagingURL(id int64, stagingURL string, ctx auth.AccessContext) (int64, error) {
	return s.transfers.UpdateStagingURL(id, stagingURL, ctx)
}

func (s *Service) UpdateStorageURL(id int64, storageURL string, ctx auth.AccessContext) (int64, error) {
	return s.transfers.UpdateStorageURL(id, storageURL, ctx)
}

// RemoveTransfer marks a non-final transfer as REMOVED so the next cleanup
// pass flushes and deletes it. Terminal records are deleted directly.
func (s *Service) RemoveTransfer(id int64, ctx auth.AccessContext) (int64, error) {
	transfer, err := s.transfers.GetTransferByID(id, ctx)
	if err != nil {
		return 0, err
	}

	if transfer.Status.IsFinalState(transfer.Kind) {
		return s.transfers.RemoveTransfer(id, ctx)
	}

	return s.transfers.UpdateStatus(id, model.StatusRemoved, "", ctx)
}

// RegisterFileTree stores (or replaces) the persisted file tree snapshot of
// a digital object. Later schedule calls without a caller-supplied tree load
// this snapshot.
func (s *Service) RegisterFileTree(tree *dataorg.FileTree, ctx auth.AccessContext) error {
	if !ctx.IsValid() {
		return errors.Wrap(ErrUnauthorized, "registering file tree")
	}

	_, err := s.trees.SaveTreeSnapshot(tree, ctx)
	return err
}

func (s *Service) LoadFileTree(objectID string, ctx auth.AccessContext) (*dataorg.FileTree, error) {
	return s.trees.LoadFileTree(objectID, ctx)
}

func (s *Service) GetAssociatedDataSize(objectID string, ctx auth.AccessContext) int64 {
	return s.trees.GetAssociatedDataSize(objectID, ctx)
}

func (s *Service) GetAssociatedFileCount(objectID string, ctx auth.AccessContext) int64 {
	return s.trees.GetAssociatedFileCount(objectID, ctx)
}

// Cleanup removes every expired transfer plus every transfer in REMOVED
// status, flushing each record's staged data first. A flush or delete
// failure on one record is logged and skipped, the rest of the pass still
// runs. Returns the number of records actually removed.
func (s *Service) Cleanup(ctx auth.AccessContext) (int64, error) {
	if !ctx.IsPrivileged() {
		return 0, errors.Wrap(ErrUnauthorized, "cleanup requires a privileged context")
	}

	candidates := make(map[int64]bool)
	for _, kind := range []model.Kind{model.KindIngest, model.KindDownload} {
		expired, err := s.transfers.ListExpiredTransfers(kind, -1, -1, ctx)
		if err != nil {
			return 0, err
		}
		for _, t := range expired {
			candidates[t.ID] = true
		}

		removed, err := s.transfers.ListTransfersByStatus(kind, int(model.StatusRemoved), -1, -1, ctx)
		if err != nil {
			return 0, err
		}
		for _, t := range removed {
			candidates[t.ID] = true
		}
	}

	var cleaned int64
	for id := range candidates {
		if err := s.flusher.Flush(id, ctx); err != nil {
			clog.ForTransfer(id).Warnf("Cleanup: unable to flush staged data, skipping: %s", err)
			continue
		}

		affected, err := s.transfers.RemoveTransfer(id, ctx)
		if err != nil {
			clog.ForTransfer(id).Warnf("Cleanup: unable to remove transfer, skipping: %s", err)
			continue
		}

		cleaned += affected
	}

	if cleaned != 0 {
		log.Infof("Cleanup removed %d transfer(s)", cleaned)
	}

	return cleaned, nil
}
