package prep

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/stretchr/testify/require"
)

var testCtx = auth.NewAccessContext("alice", "grp1", auth.RoleMember)

func TestLocalHandlerPrepareAndFlush(t *testing.T) {
	sourceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "data.csv"), []byte("1,2,3\n"), 0644))
	sourceURL := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(sourceDir, "data.csv"))}

	tree := dataorg.NewFileTree("obj-prep")
	sub := dataorg.NewCollectionNode("results")
	sub.AddChild(dataorg.NewFileNode("data.csv", sourceURL.String()))
	tree.Root.AddChild(sub)

	handler := NewLocalHandler(t.TempDir())
	transfer := &model.Transfer{ID: 42, Kind: model.KindDownload, ObjectID: "obj-prep"}

	require.NoError(t, handler.PrepareTransfer(transfer, tree, nil, testCtx))

	staged := filepath.Join(handler.StagingDir(42), "results", "data.csv")
	content, err := os.ReadFile(staged)
	require.NoError(t, err)
	require.Equal(t, "1,2,3\n", string(content))

	require.NoError(t, handler.Flush(42, testCtx))
	require.NoDirExists(t, handler.StagingDir(42))

	// Flushing again is a no-op.
	require.NoError(t, handler.Flush(42, testCtx))
}

func TestLocalHandlerLeavesRemoteLocatorsOpen(t *testing.T) {
	tree := dataorg.NewFileTree("obj-prep2")
	tree.Root.AddChild(dataorg.NewFileNode("remote.dat", "https://example.org/remote.dat"))

	handler := NewLocalHandler(t.TempDir())
	transfer := &model.Transfer{ID: 7, Kind: model.KindDownload, ObjectID: "obj-prep2"}

	require.NoError(t, handler.PrepareTransfer(transfer, tree, nil, testCtx))
	_, err := os.Stat(filepath.Join(handler.StagingDir(7), "remote.dat"))
	require.True(t, os.IsNotExist(err))
}
