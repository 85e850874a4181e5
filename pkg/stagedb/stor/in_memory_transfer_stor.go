package stor

import (
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
)

// InMemoryTransferStor is a map-backed TransferStor for tests. ErrToReturn,
// when set, is returned by every mutating call.
type InMemoryTransferStor struct {
	mu          sync.Mutex
	ErrToReturn error
	Lifetime    time.Duration
	transfers   map[int64]*model.Transfer
	lastID      int64
}

func NewInMemoryTransferStor() *InMemoryTransferStor {
	return &InMemoryTransferStor{
		Lifetime:  DefaultTransferLifetime,
		transfers: make(map[int64]*model.Transfer),
		lastID:    1000,
	}
}

func (s *InMemoryTransferStor) LifetimeFor(model.Kind) time.Duration {
	return s.Lifetime
}

func (s *InMemoryTransferStor) CreateTransfer(kind model.Kind, objectID, accessPointID string, processors []model.StagingProcessor, ctx auth.AccessContext) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}
	if objectID == "" || !ctx.IsValid() {
		return nil, ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.transfers {
		if t.Kind != kind || t.ObjectID != objectID {
			continue
		}
		if kind == model.KindIngest && s.visible(t, ctx) {
			return nil, errors.Wrapf(ErrConflict, "transfer for object %s already exists", objectID)
		}
		if kind == model.KindDownload && t.AccessPointID == accessPointID && t.OwnerID == ctx.UserID && !t.Status.IsFinalState(t.Kind) {
			return nil, errors.Wrapf(ErrConflict, "active download for object %s via %s already exists", objectID, accessPointID)
		}
	}

	transferID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	s.lastID++
	now := time.Now()
	expires := now.Add(s.Lifetime)
	transfer := &model.Transfer{
		ID:            s.lastID,
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
	s.transfers[transfer.ID] = transfer

	result := *transfer
	return &result, nil
}

func (s *InMemoryTransferStor) SaveTransfer(transfer *model.Transfer, ctx auth.AccessContext) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}
	if transfer == nil {
		return nil, ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transfers[transfer.ID]
	if !ok || !s.visible(existing, ctx) {
		return nil, errors.Wrapf(ErrNotFound, "no transfer with id %d", transfer.ID)
	}

	transfer.LastUpdate = time.Now()
	transfer.SyncActiveKeys()
	saved := *transfer
	s.transfers[transfer.ID] = &saved

	result := saved
	return &result, nil
}

func (s *InMemoryTransferStor) GetTransferByID(id int64, ctx auth.AccessContext) (*model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok || !s.visible(t, ctx) {
		return nil, errors.Wrapf(ErrNotFound, "no transfer with id %d", id)
	}
	result := *t
	return &result, nil
}

func (s *InMemoryTransferStor) ListTransfers(offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.list(offset, limit, func(t *model.Transfer) bool { return s.visible(t, ctx) })
}

func (s *InMemoryTransferStor) CountTransfers(ctx auth.AccessContext) (int64, error) {
	return s.count(func(t *model.Transfer) bool { return s.visible(t, ctx) })
}

func (s *InMemoryTransferStor) ListTransfersByObjectID(kind model.Kind, objectID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.list(offset, limit, func(t *model.Transfer) bool {
		return t.Kind == kind && t.ObjectID == objectID && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) CountTransfersByObjectID(kind model.Kind, objectID string, ctx auth.AccessContext) (int64, error) {
	return s.count(func(t *model.Transfer) bool {
		return t.Kind == kind && t.ObjectID == objectID && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) ListTransfersByOwner(ownerID string, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	if ownerID == "" {
		ownerID = ctx.UserID
	}
	return s.list(offset, limit, func(t *model.Transfer) bool {
		return t.OwnerID == ownerID && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) CountTransfersByOwner(ownerID string, ctx auth.AccessContext) (int64, error) {
	if ownerID == "" {
		ownerID = ctx.UserID
	}
	return s.count(func(t *model.Transfer) bool {
		return t.OwnerID == ownerID && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) ListTransfersByStatus(kind model.Kind, statusCode int, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.list(offset, limit, func(t *model.Transfer) bool {
		return t.Kind == kind && model.HasStatus(statusCode, t.Status) && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) CountTransfersByStatus(kind model.Kind, statusCode int, ctx auth.AccessContext) (int64, error) {
	return s.count(func(t *model.Transfer) bool {
		return t.Kind == kind && model.HasStatus(statusCode, t.Status) && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) ListExpiredTransfers(kind model.Kind, offset, limit int, ctx auth.AccessContext) ([]model.Transfer, error) {
	return s.list(offset, limit, func(t *model.Transfer) bool {
		return t.Kind == kind && t.IsExpired(s.Lifetime) && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) CountExpiredTransfers(kind model.Kind, ctx auth.AccessContext) (int64, error) {
	return s.count(func(t *model.Transfer) bool {
		return t.Kind == kind && t.IsExpired(s.Lifetime) && s.visible(t, ctx)
	})
}

func (s *InMemoryTransferStor) UpdateStatus(id int64, status model.Status, errorMessage string, ctx auth.AccessContext) (int64, error) {
	if status == model.StatusUnknown {
		return 0, ErrValidation
	}
	return s.update(id, ctx, func(t *model.Transfer) {
		t.Status = status
		t.ErrorMessage = errorMessage
		t.SyncActiveKeys()
	})
}

func (s *InMemoryTransferStor) UpdateClientAccessURL(id int64, clientAccessURL string, ctx auth.AccessContext) (int64, error) {
	if clientAccessURL == "" {
		return 0, ErrValidation
	}
	return s.update(id, ctx, func(t *model.Transfer) { t.ClientAccessURL = clientAccessURL })
}

func (s *InMemoryTransferStor) UpdateStagingURL(id int64, stagingURL string, ctx auth.AccessContext) (int64, error) {
	if stagingURL == "" {
		return 0, ErrValidation
	}
	return s.update(id, ctx, func(t *model.Transfer) { t.StagingURL = stagingURL })
}

func (s *InMemoryTransferStor) UpdateStorageURL(id int64, storageURL string, ctx auth.AccessContext) (int64, error) {
	if storageURL == "" {
		return 0, ErrValidation
	}
	return s.update(id, ctx, func(t *model.Transfer) { t.StorageURL = storageURL })
}

func (s *InMemoryTransferStor) RemoveTransfer(id int64, ctx auth.AccessContext) (int64, error) {
	if s.ErrToReturn != nil {
		return 0, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok || !s.visible(t, ctx) {
		return 0, nil
	}
	delete(s.transfers, id)
	return 1, nil
}

func (s *InMemoryTransferStor) update(id int64, ctx auth.AccessContext, apply func(*model.Transfer)) (int64, error) {
	if s.ErrToReturn != nil {
		return 0, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok || !s.visible(t, ctx) {
		return 0, nil
	}
	apply(t)
	t.LastUpdate = time.Now()
	return 1, nil
}

func (s *InMemoryTransferStor) list(offset, limit int, match func(*model.Transfer) bool) ([]model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.Transfer
	for _, t := range s.transfers {
		if match(t) {
			all = append(all, *t)
		}
	}
	if offset > 0 {
		if offset >= len(all) {
			return nil, nil
		}
		all = all[offset:]
	}
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *InMemoryTransferStor) count(match func(*model.Transfer) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.transfers {
		if match(t) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryTransferStor) visible(t *model.Transfer, ctx auth.AccessContext) bool {
	return ctx.IsPrivileged() || t.OwnerID == ctx.UserID
}
