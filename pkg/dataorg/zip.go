package dataorg

import (
	"archive/zip"
	"io"
	"net/url"
	"os"
	"sort"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// GenerateZipEntries walks node and fills entries with a flat map from
// zip-entry path to local source file. An empty value marks an empty
// directory placeholder. Only file: scheme locators can be resolved; file
// nodes with any other scheme are skipped with a warning so that a partial
// archive is still produced. The returned value is the summed size of all
// resolved files.
func GenerateZipEntries(node Node, path string, entries map[string]string) (int64, error) {
	if node == nil {
		return 0, errors.New("node must not be nil")
	}

	base := node.Base().Name
	if path != "" {
		base = path + "/" + node.Base().Name
	}

	var size int64
	switch n := node.(type) {
	case *CollectionNode:
		if len(n.Children) == 0 {
			entries[base] = ""
			return 0, nil
		}
		for _, child := range n.Children {
			childSize, err := GenerateZipEntries(child, base, entries)
			if err != nil {
				return 0, err
			}
			size += childSize
		}
	case *FileNode:
		localPath, ok := localFilePath(n.LogicalFileName)
		if !ok {
			log.Warnf("unsupported locator %s, only locally accessible files can be zipped", n.LogicalFileName)
			return 0, nil
		}
		info, err := os.Stat(localPath)
		if err != nil {
			return 0, errors.Wrapf(err, "resolving %s", n.LogicalFileName)
		}
		entries[base] = localPath
		size = info.Size()
	}
	return size, nil
}

func localFilePath(locator string) (string, bool) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return u.Path, true
}

// Zip streams the content of node as a zip archive to w. With a
// non-negative sizeLimit, the operation aborts before writing anything if
// the summed file size exceeds the limit.
func Zip(node *CollectionNode, w io.Writer, sizeLimit int64) error {
	entries := make(map[string]string)
	size, err := GenerateZipEntries(node, "", entries)
	if err != nil {
		return err
	}
	if sizeLimit >= 0 && size > sizeLimit {
		return errors.Errorf("size limit of %d bytes exceeded (%d bytes), zip operation aborted", sizeLimit, size)
	}

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	zipOut := zip.NewWriter(w)
	for _, p := range paths {
		source := entries[p]
		name := p
		if source == "" {
			name += "/"
		}
		entry, err := zipOut.Create(name)
		if err != nil {
			return err
		}
		if source == "" {
			continue
		}
		in, err := os.Open(source)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, in)
		_ = in.Close()
		if err != nil {
			return err
		}
	}
	return zipOut.Close()
}
