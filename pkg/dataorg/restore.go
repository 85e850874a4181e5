package dataorg

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// RestoreTreeStructure recreates the directory levels of tree below the
// existing directory destination. For every file node not yet marked
// transferred, a source-locator to destination-locator mapping is recorded
// in openTransfers; moving the bytes is the caller's job.
//
// The operation is idempotent: directories already carrying the exists
// marker, or found present on disk, are skipped and memoized via the exists
// attribute, so a second pass performs no creation calls.
func RestoreTreeStructure(tree *FileTree, destination string, openTransfers map[string]string) error {
	if tree == nil || tree.Root == nil {
		return errors.New("tree must not be nil")
	}
	if openTransfers == nil {
		return errors.New("openTransfers must not be nil")
	}

	info, err := os.Stat(destination)
	if err != nil {
		return errors.Wrapf(err, "destination %s does not exist", destination)
	}
	if !info.IsDir() {
		return errors.Errorf("destination %s is not a directory", destination)
	}

	log.Debugf("restoring file tree for object %s at %s", tree.ObjectID, destination)
	if err := restoreFolder(tree.Root, destination, openTransfers); err != nil {
		return err
	}
	log.Debugf("file tree restored, %d open file transfer(s) recorded", len(openTransfers))
	return nil
}

func restoreFolder(node *CollectionNode, base string, openTransfers map[string]string) error {
	// a nameless node is the tree root itself, restored directly into base
	dir := filepath.Join(base, node.Name)

	if !DirectoryExists(node) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.Mkdir(dir, 0755); err != nil {
				return errors.Wrapf(err, "creating directory %s", dir)
			}
		} else if err != nil {
			return errors.Wrapf(err, "checking directory %s", dir)
		}
		node.SetAttribute(AttrExists, "true")
	}

	for _, child := range node.Children {
		switch c := child.(type) {
		case *CollectionNode:
			if err := restoreFolder(c, dir, openTransfers); err != nil {
				return err
			}
		case *FileNode:
			if IsFileTransferred(c) {
				continue
			}
			target := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, c.Name))}
			openTransfers[c.LogicalFileName] = target.String()
		}
	}
	return nil
}
