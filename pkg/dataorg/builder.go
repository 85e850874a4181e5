package dataorg

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

// BuildTree creates a file tree for objectID from the contents of dir. Every
// node carries size and lastModified attributes, collections additionally a
// children count, and file nodes a file: locator pointing at the source.
func BuildTree(objectID, dir string) (*FileTree, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build tree from %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	type entry struct {
		relPath string
		info    os.FileInfo
	}

	var (
		mu      sync.Mutex
		entries []entry
	)

	// walker invokes the callback concurrently, hence the lock.
	err = walker.Walk(root, func(pathname string, fi os.FileInfo) error {
		rel, relErr := filepath.Rel(root, pathname)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		mu.Lock()
		entries = append(entries, entry{relPath: filepath.ToSlash(rel), info: fi})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}

	// Parents sort before their children, so a single pass can attach each
	// entry to an already-built collection.
	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })

	tree := NewFileTree(objectID)
	tree.Root.SetAttribute(AttrDirectory, "true")
	collections := map[string]*CollectionNode{"": tree.Root}

	for _, e := range entries {
		parentPath, name := splitTreePath(e.relPath)
		parent := collections[parentPath]
		if parent == nil {
			return nil, errors.Errorf("missing parent collection for %s", e.relPath)
		}

		if e.info.IsDir() {
			node := NewCollectionNode(name)
			node.SetAttribute(AttrDirectory, "true")
			node.SetAttribute(AttrLastModified, strconv.FormatInt(e.info.ModTime().UnixMilli(), 10))
			parent.AddChild(node)
			collections[e.relPath] = node
			continue
		}

		lfn := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(root, filepath.FromSlash(e.relPath)))}
		node := NewFileNode(name, lfn.String())
		node.SetAttribute(AttrDirectory, "false")
		node.SetAttribute(AttrSize, strconv.FormatInt(e.info.Size(), 10))
		node.SetAttribute(AttrLastModified, strconv.FormatInt(e.info.ModTime().UnixMilli(), 10))
		parent.AddChild(node)
	}

	var totalSize, fileCount int64
	for _, n := range FlattenNode(tree.Root) {
		if f, ok := n.(*FileNode); ok {
			fileCount++
			if v, has := f.Attribute(AttrSize); has {
				if size, convErr := strconv.ParseInt(v, 10, 64); convErr == nil {
					totalSize += size
				}
			}
		} else if c, ok := n.(*CollectionNode); ok {
			c.SetAttribute(AttrChildren, strconv.Itoa(len(c.Children)))
		}
	}
	tree.Root.SetAttribute(AttrSize, strconv.FormatInt(totalSize, 10))
	tree.Root.SetAttribute(AttrFileCount, strconv.FormatInt(fileCount, 10))
	tree.Root.SetAttribute(AttrChildren, strconv.Itoa(len(tree.Root.Children)))

	return tree, nil
}

func splitTreePath(p string) (parent, name string) {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}
