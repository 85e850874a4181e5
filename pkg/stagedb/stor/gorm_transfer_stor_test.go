package stor

import (
	"sync"
	"testing"
	"time"

	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	aliceCtx = auth.NewAccessContext("alice", "grp1", auth.RoleMember)
	bobCtx   = auth.NewAccessContext("bob", "grp1", auth.RoleMember)
	adminCtx = auth.SystemContext()
)

func TestCreateTransferSetsDefaults(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	transfer, err := s.CreateTransfer(model.KindDownload, "obj-1", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	require.NotZero(t, transfer.ID)
	require.NotEmpty(t, transfer.TransferID)
	require.Equal(t, model.StatusScheduled, transfer.Status)
	require.Equal(t, "alice", transfer.OwnerID)
	require.Equal(t, "grp1", transfer.GroupID)
	require.NotNil(t, transfer.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(s.LifetimeFor(model.KindDownload)), *transfer.ExpiresAt, time.Minute)
}

func TestCreateTransferValidation(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	_, err := s.CreateTransfer(model.KindDownload, "", "ap1", nil, aliceCtx)
	require.ErrorIs(t, err, ErrValidation)

	_, err = s.CreateTransfer(model.KindDownload, "obj-1", "ap1", nil, auth.AccessContext{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateIngestConflictsWithExistingRecord(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	_, err := s.CreateTransfer(model.KindIngest, "obj-2", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	_, err = s.CreateTransfer(model.KindIngest, "obj-2", "ap2", nil, aliceCtx)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateDownloadConflictRules(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	first, err := s.CreateTransfer(model.KindDownload, "obj-3", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	// Same object through the same access point while active: conflict.
	_, err = s.CreateTransfer(model.KindDownload, "obj-3", "ap1", nil, aliceCtx)
	require.ErrorIs(t, err, ErrConflict)

	// A different access point is fine (download multiplicity).
	_, err = s.CreateTransfer(model.KindDownload, "obj-3", "ap2", nil, aliceCtx)
	require.NoError(t, err)

	// Once the first record is terminal its uniqueness slot is free again.
	_, err = s.UpdateStatus(first.ID, model.StatusTransferFinished, "", aliceCtx)
	require.NoError(t, err)
	_, err = s.CreateTransfer(model.KindDownload, "obj-3", "ap1", nil, aliceCtx)
	require.NoError(t, err)
}

func TestActiveDownloadsAreScopedPerOwner(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	_, err := s.CreateTransfer(model.KindDownload, "obj-11", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	// A second user downloading the same object through the same access
	// point gets their own record.
	bobs, err := s.CreateTransfer(model.KindDownload, "obj-11", "ap1", nil, bobCtx)
	require.NoError(t, err)
	require.Equal(t, "bob", bobs.OwnerID)

	// Each user still holds at most one active record per slot.
	_, err = s.CreateTransfer(model.KindDownload, "obj-11", "ap1", nil, bobCtx)
	require.ErrorIs(t, err, ErrConflict)

	// Ingest uniqueness is not per user: one record per object, period.
	_, err = s.CreateTransfer(model.KindIngest, "obj-12", "ap1", nil, aliceCtx)
	require.NoError(t, err)
	_, err = s.CreateTransfer(model.KindIngest, "obj-12", "ap1", nil, bobCtx)
	require.ErrorIs(t, err, ErrConflict)
}

// Racing creators for the same uniqueness slot must end up with exactly one
// record; the losers see ErrConflict from the active index, not a duplicate
// row or an opaque persistence error.
func TestConcurrentCreatesYieldOneRecord(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTransfer(model.KindDownload, "obj-20", "ap1", nil, aliceCtx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected create error: %s", err)
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, workers-1, conflicts)

	count, err := s.CountTransfersByObjectID(model.KindDownload, "obj-20", aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestOwnerScoping(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	created, err := s.CreateTransfer(model.KindDownload, "obj-4", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	// The owner and privileged contexts see the record, bob doesn't.
	_, err = s.GetTransferByID(created.ID, aliceCtx)
	require.NoError(t, err)
	_, err = s.GetTransferByID(created.ID, adminCtx)
	require.NoError(t, err)
	_, err = s.GetTransferByID(created.ID, bobCtx)
	require.ErrorIs(t, err, ErrNotFound)

	// Bob can't list alice's transfers by naming her as owner either.
	transfers, err := s.ListTransfersByOwner("alice", -1, -1, bobCtx)
	require.NoError(t, err)
	require.Empty(t, transfers)

	transfers, err = s.ListTransfersByOwner("alice", -1, -1, adminCtx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	// Mutations through an invisible context affect nothing.
	affected, err := s.UpdateStatus(created.ID, model.StatusPreparing, "", bobCtx)
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestCountsAgreeWithUnboundedLists(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	for _, objectID := range []string{"obj-5", "obj-6", "obj-7"} {
		_, err := s.CreateTransfer(model.KindDownload, objectID, "ap1", nil, aliceCtx)
		require.NoError(t, err)
	}
	_, err := s.CreateTransfer(model.KindDownload, "obj-8", "ap1", nil, bobCtx)
	require.NoError(t, err)

	count, err := s.CountTransfers(aliceCtx)
	require.NoError(t, err)
	transfers, err := s.ListTransfers(-1, -1, aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, len(transfers), count)
	require.EqualValues(t, 3, count)

	count, err = s.CountTransfers(adminCtx)
	require.NoError(t, err)
	require.EqualValues(t, 4, count)

	// Pagination narrows the window without changing the count.
	page, err := s.ListTransfers(1, 2, aliceCtx)
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestListTransfersByStatusCombinesStates(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	first, err := s.CreateTransfer(model.KindDownload, "obj-9", "ap1", nil, aliceCtx)
	require.NoError(t, err)
	second, err := s.CreateTransfer(model.KindDownload, "obj-10", "ap1", nil, aliceCtx)
	require.NoError(t, err)
	_, err = s.CreateTransfer(model.KindDownload, "obj-11", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	_, err = s.UpdateStatus(first.ID, model.StatusPreparing, "", aliceCtx)
	require.NoError(t, err)
	_, err = s.UpdateStatus(second.ID, model.StatusPreparing, "", aliceCtx)
	require.NoError(t, err)
	_, err = s.UpdateStatus(second.ID, model.StatusPreparationFailed, "handler gone", aliceCtx)
	require.NoError(t, err)

	combined := model.CombineStatus(model.StatusPreparing, model.StatusPreparationFailed)
	transfers, err := s.ListTransfersByStatus(model.KindDownload, combined, -1, -1, aliceCtx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	count, err := s.CountTransfersByStatus(model.KindDownload, combined, aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	scheduled, err := s.ListTransfersByStatus(model.KindDownload, int(model.StatusScheduled), -1, -1, aliceCtx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
}

func TestExpiredTransfers(t *testing.T) {
	db := newTestDB(t)
	s := NewGormTransferStor(db)

	expired, err := s.CreateTransfer(model.KindDownload, "obj-12", "ap1", nil, aliceCtx)
	require.NoError(t, err)
	fresh, err := s.CreateTransfer(model.KindDownload, "obj-13", "ap1", nil, aliceCtx)
	require.NoError(t, err)
	noDeadline, err := s.CreateTransfer(model.KindDownload, "obj-14", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	// Push one record past its explicit deadline and strip the deadline of
	// another while aging its last update beyond the default lifetime.
	past := time.Now().Add(-time.Hour)
	old := time.Now().Add(-s.LifetimeFor(model.KindDownload) - time.Hour)
	require.NoError(t, db.Model(&model.Transfer{}).Where("id = ?", expired.ID).
		Update("expires_at", past).Error)
	require.NoError(t, db.Model(&model.Transfer{}).Where("id = ?", noDeadline.ID).
		Updates(map[string]interface{}{"expires_at": nil, "last_update": old}).Error)

	transfers, err := s.ListExpiredTransfers(model.KindDownload, -1, -1, aliceCtx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	for _, transfer := range transfers {
		require.NotEqual(t, fresh.ID, transfer.ID)
	}

	count, err := s.CountExpiredTransfers(model.KindDownload, aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestUpdateURLsBumpLastUpdate(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	created, err := s.CreateTransfer(model.KindIngest, "obj-15", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	affected, err := s.UpdateStagingURL(created.ID, "http://staging/obj-15", aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	affected, err = s.UpdateStorageURL(created.ID, "http://archive/obj-15", aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	affected, err = s.UpdateClientAccessURL(created.ID, "http://client/obj-15", aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	_, err = s.UpdateStagingURL(created.ID, "", aliceCtx)
	require.ErrorIs(t, err, ErrValidation)

	reloaded, err := s.GetTransferByID(created.ID, aliceCtx)
	require.NoError(t, err)
	require.Equal(t, "http://staging/obj-15", reloaded.StagingURL)
	require.Equal(t, "http://archive/obj-15", reloaded.StorageURL)
	require.Equal(t, "http://client/obj-15", reloaded.ClientAccessURL)
	require.True(t, reloaded.LastUpdate.After(created.LastUpdate) || reloaded.LastUpdate.Equal(created.LastUpdate))
}

func TestSaveTransferReplacesProcessors(t *testing.T) {
	db := newTestDB(t)
	s := NewGormTransferStor(db)
	processors := NewGormProcessorStor(db)

	p1, err := processors.CreateProcessor(&model.StagingProcessor{Name: "checksum", SupportsDownload: true})
	require.NoError(t, err)
	p2, err := processors.CreateProcessor(&model.StagingProcessor{Name: "metadata", SupportsDownload: true})
	require.NoError(t, err)

	created, err := s.CreateTransfer(model.KindDownload, "obj-16", "ap1", []model.StagingProcessor{*p1}, aliceCtx)
	require.NoError(t, err)

	reloaded, err := s.GetTransferByID(created.ID, aliceCtx)
	require.NoError(t, err)
	require.Len(t, reloaded.Processors, 1)

	reloaded.Processors = []model.StagingProcessor{*p2}
	saved, err := s.SaveTransfer(reloaded, aliceCtx)
	require.NoError(t, err)
	require.Len(t, saved.Processors, 1)
	require.Equal(t, "metadata", saved.Processors[0].Name)
}

func TestRemoveTransfer(t *testing.T) {
	s := NewGormTransferStor(newTestDB(t))

	created, err := s.CreateTransfer(model.KindDownload, "obj-17", "ap1", nil, aliceCtx)
	require.NoError(t, err)

	// Invisible to bob, so nothing is removed.
	affected, err := s.RemoveTransfer(created.ID, bobCtx)
	require.NoError(t, err)
	require.Zero(t, affected)

	affected, err = s.RemoveTransfer(created.ID, aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	_, err = s.GetTransferByID(created.ID, aliceCtx)
	require.ErrorIs(t, err, ErrNotFound)
}
