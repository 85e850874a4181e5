package dataorg

import (
	"archive/zip"
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildLocalTree writes real files below a temp dir and returns a collection
// describing them:
//
//	export/
//	  measurements.txt  (12 bytes)
//	  empty/
//	  plots/
//	    plot1.png       (4 bytes)
func buildLocalTree(t *testing.T) *CollectionNode {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "measurements.txt"), []byte("1 2 3 4 5 6\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plot1.png"), []byte("data"), 0644))

	fileURL := func(name string) string {
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, name))}
		return u.String()
	}

	export := NewCollectionNode("export")
	export.AddChild(NewFileNode("measurements.txt", fileURL("measurements.txt")))
	export.AddChild(NewCollectionNode("empty"))
	plots := NewCollectionNode("plots")
	plots.AddChild(NewFileNode("plot1.png", fileURL("plot1.png")))
	export.AddChild(plots)

	return export
}

func TestGenerateZipEntries(t *testing.T) {
	export := buildLocalTree(t)

	entries := make(map[string]string)
	size, err := GenerateZipEntries(export, "", entries)
	require.NoError(t, err)
	require.Equal(t, int64(16), size)

	require.Len(t, entries, 3)
	require.Equal(t, "", entries["export/empty"])
	require.NotEmpty(t, entries["export/measurements.txt"])
	require.NotEmpty(t, entries["export/plots/plot1.png"])
}

func TestGenerateZipEntriesSkipsUnsupportedSchemes(t *testing.T) {
	export := NewCollectionNode("export")
	export.AddChild(NewFileNode("remote.dat", "https://example.org/remote.dat"))

	entries := make(map[string]string)
	size, err := GenerateZipEntries(export, "", entries)
	require.NoError(t, err)
	require.Zero(t, size)
	require.Empty(t, entries)
}

func TestZipRoundTrip(t *testing.T) {
	export := buildLocalTree(t)

	var buf bytes.Buffer
	require.NoError(t, Zip(export, &buf, -1))

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range reader.File {
		names[f.Name] = true
	}
	require.True(t, names["export/measurements.txt"])
	require.True(t, names["export/plots/plot1.png"])
	require.True(t, names["export/empty/"])

	content, err := reader.Open("export/measurements.txt")
	require.NoError(t, err)
	defer content.Close()
	data := make([]byte, 12)
	_, err = content.Read(data)
	require.NoError(t, err)
	require.Equal(t, "1 2 3 4 5 6\n", string(data))
}

func TestZipAbortsWhenSizeLimitExceeded(t *testing.T) {
	export := buildLocalTree(t)

	var buf bytes.Buffer
	err := Zip(export, &buf, 10)
	require.Error(t, err)
	// Nothing was written before the abort.
	require.Zero(t, buf.Len())
}

func TestZipZeroSizeLimitAllowsEmptyContent(t *testing.T) {
	export := NewCollectionNode("export")
	export.AddChild(NewCollectionNode("empty"))

	var buf bytes.Buffer
	require.NoError(t, Zip(export, &buf, 0))
	require.NotZero(t, buf.Len())
}
