package dataorg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "deep", "leaf.txt"), []byte("123"), 0644))

	tree, err := BuildTree("obj-build", dir)
	require.NoError(t, err)
	require.Equal(t, "obj-build", tree.ObjectID)

	size, _ := tree.Root.Attribute(AttrSize)
	require.Equal(t, "8", size)
	children, _ := tree.Root.Attribute(AttrChildren)
	require.Equal(t, "2", children)
	fileCount, _ := tree.Root.Attribute(AttrFileCount)
	require.Equal(t, "2", fileCount)

	var fileNames []string
	for _, n := range FlattenNode(tree.Root) {
		if f, ok := n.(*FileNode); ok {
			fileNames = append(fileNames, f.Name)
			require.Contains(t, f.LogicalFileName, "file://")
		}
	}
	require.ElementsMatch(t, []string{"top.txt", "leaf.txt"}, fileNames)
}

func TestBuildTreeRejectsFiles(t *testing.T) {
	f := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))

	_, err := BuildTree("obj", f)
	require.Error(t, err)
}

func TestEncodeDecodeTree(t *testing.T) {
	tree := buildSampleTree("obj-json")

	var buf bytes.Buffer
	require.NoError(t, EncodeTree(&buf, tree))

	decoded, err := DecodeTree(&buf)
	require.NoError(t, err)
	require.Equal(t, "obj-json", decoded.ObjectID)
	require.Equal(t, DefaultViewName, decoded.ViewName)

	// Same shape and same file locators after the round trip.
	original := FlattenNode(tree.Root)
	restored := FlattenNode(decoded.Root)
	require.Len(t, restored, len(original))

	data := decoded.Root.Children[0].(*CollectionNode)
	require.Equal(t, "data", data.Name)
	require.Equal(t, decoded.Root, data.Parent())
	results := data.Children[0].(*FileNode)
	require.Equal(t, "file:///repo/obj-json/data/results.csv", results.LogicalFileName)
	v, ok := results.Attribute(AttrSize)
	require.True(t, ok)
	require.Equal(t, "2048", v)
}
