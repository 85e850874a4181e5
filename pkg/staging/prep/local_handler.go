// Package prep contains the preparation handlers that do the actual data
// movement for scheduled transfers: a local filesystem handler for staging
// areas mounted into the daemon, and a REST handler that delegates to a
// remote staging node.
package prep

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apex/log"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/clog"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/lock"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/kit-data-manager/staging/pkg/staging"
	"github.com/pkg/errors"
)

// LocalHandler stages transfers into a directory tree below BaseDir, one
// subdirectory per transfer id. It implements both the preparation and the
// flush side, so one instance can be wired into the service for both roles.
// Preparation and flushing of the same transfer are serialized per id; a
// cleanup pass can't pull a staging directory out from under a prepare.
type LocalHandler struct {
	BaseDir string
	locker  *lock.IdLocker
}

func NewLocalHandler(baseDir string) *LocalHandler {
	return &LocalHandler{BaseDir: baseDir, locker: lock.NewIdLocker()}
}

func (h *LocalHandler) StagingDir(transferID int64) string {
	return filepath.Join(h.BaseDir, strconv.FormatInt(transferID, 10))
}

// PrepareTransfer recreates the tree structure below the transfer's staging
// directory and copies every file the tree hasn't marked transferred yet.
// Only file: locators are staged locally; other schemes stay open for an
// external mover and are logged.
func (h *LocalHandler) PrepareTransfer(transfer *model.Transfer, tree *dataorg.FileTree, properties *staging.TransferClientProperties, ctx auth.AccessContext) error {
	return h.locker.WithLock(transfer.ID, func() error {
		dir := h.StagingDir(transfer.ID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating staging dir %s", dir)
		}

		openTransfers := make(map[string]string)
		if err := dataorg.RestoreTreeStructure(tree, dir, openTransfers); err != nil {
			return errors.Wrapf(err, "restoring tree of object %s into %s", transfer.ObjectID, dir)
		}

		for source, destination := range openTransfers {
			if err := copyLocal(source, destination); err != nil {
				return errors.Wrapf(err, "staging %s", source)
			}
		}

		clog.ForTransfer(transfer.ID).Debugf("Staged %d file(s) into %s", len(openTransfers), dir)
		return nil
	})
}

// Flush deletes the transfer's staging directory. Idempotent: a missing
// directory is not an error.
func (h *LocalHandler) Flush(transferID int64, ctx auth.AccessContext) error {
	return h.locker.WithLock(transferID, func() error {
		dir := h.StagingDir(transferID)
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "removing staging dir %s", dir)
		}

		return nil
	})
}

func copyLocal(sourceLocator, destinationLocator string) error {
	sourcePath, ok := localPath(sourceLocator)
	if !ok {
		log.Warnf("Skipping %s: not a local file, left for the external mover", sourceLocator)
		return nil
	}

	destinationPath, ok := localPath(destinationLocator)
	if !ok {
		return errors.Errorf("destination %s is not a local file", destinationLocator)
	}

	in, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(destinationPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

func localPath(locator string) (string, bool) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "file" {
		return "", false
	}

	return filepath.FromSlash(u.Path), true
}
