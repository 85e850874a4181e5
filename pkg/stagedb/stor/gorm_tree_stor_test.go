package stor

import (
	"testing"

	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/stretchr/testify/require"
)

// sampleTree holds two file nodes and reports a root size of 4096 bytes.
func sampleTree(objectID string) *dataorg.FileTree {
	tree := dataorg.NewFileTree(objectID)
	tree.Root.SetAttribute(dataorg.AttrSize, "4096")

	data := dataorg.NewCollectionNode("data")
	data.AddChild(dataorg.NewFileNode("a.dat", "file:///repo/"+objectID+"/data/a.dat"))
	data.AddChild(dataorg.NewFileNode("b.dat", "file:///repo/"+objectID+"/data/b.dat"))
	tree.Root.AddChild(data)

	return tree
}

func TestSaveAndLoadTreeSnapshot(t *testing.T) {
	s := NewGormTreeStor(newTestDB(t))

	snapshot, err := s.SaveTreeSnapshot(sampleTree("obj-t1"), aliceCtx)
	require.NoError(t, err)
	require.EqualValues(t, 4096, snapshot.RootSize)
	require.EqualValues(t, 2, snapshot.FileCount)

	tree, err := s.LoadFileTree("obj-t1", aliceCtx)
	require.NoError(t, err)
	require.Equal(t, "obj-t1", tree.ObjectID)
	require.Len(t, tree.Root.Children, 1)

	// Other users don't see the snapshot, privileged contexts do.
	_, err = s.LoadFileTree("obj-t1", bobCtx)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadFileTree("obj-t1", adminCtx)
	require.NoError(t, err)
}

func TestSaveTreeSnapshotReplacesExisting(t *testing.T) {
	s := NewGormTreeStor(newTestDB(t))

	_, err := s.SaveTreeSnapshot(sampleTree("obj-t2"), aliceCtx)
	require.NoError(t, err)

	smaller := dataorg.NewFileTree("obj-t2")
	smaller.Root.SetAttribute(dataorg.AttrSize, "10")
	smaller.Root.AddChild(dataorg.NewFileNode("only.dat", "file:///only.dat"))
	_, err = s.SaveTreeSnapshot(smaller, aliceCtx)
	require.NoError(t, err)

	require.EqualValues(t, 10, s.GetAssociatedDataSize("obj-t2", aliceCtx))
	require.EqualValues(t, 1, s.GetAssociatedFileCount("obj-t2", aliceCtx))
}

func TestTreeAggregates(t *testing.T) {
	s := NewGormTreeStor(newTestDB(t))

	_, err := s.SaveTreeSnapshot(sampleTree("obj-t3"), aliceCtx)
	require.NoError(t, err)
	_, err = s.SaveTreeSnapshot(sampleTree("obj-t4"), aliceCtx)
	require.NoError(t, err)

	// One object or all of them; denial reads as zero.
	require.EqualValues(t, 4096, s.GetAssociatedDataSize("obj-t3", aliceCtx))
	require.EqualValues(t, 8192, s.GetAssociatedDataSize("", aliceCtx))
	require.EqualValues(t, 4, s.GetAssociatedFileCount("", adminCtx))
	require.Zero(t, s.GetAssociatedDataSize("obj-t3", bobCtx))
	require.Zero(t, s.GetAssociatedDataSize("no-such-object", aliceCtx))
}

func TestProcessorStor(t *testing.T) {
	s := NewGormProcessorStor(newTestDB(t))

	_, err := s.CreateProcessor(&model.StagingProcessor{
		Name: "checksum", GroupID: "grp1", SupportsIngest: true, SupportsDownload: true, DefaultOn: true,
	})
	require.NoError(t, err)
	_, err = s.CreateProcessor(&model.StagingProcessor{
		Name: "thumbnails", GroupID: "", SupportsDownload: true, DefaultOn: true,
	})
	require.NoError(t, err)
	_, err = s.CreateProcessor(&model.StagingProcessor{
		Name: "legacy", GroupID: "grp1", SupportsIngest: true, DefaultOn: true, Disabled: true,
	})
	require.NoError(t, err)
	_, err = s.CreateProcessor(&model.StagingProcessor{
		Name: "other-group", GroupID: "grp2", SupportsIngest: true, DefaultOn: true,
	})
	require.NoError(t, err)

	// Group scoping: group-specific plus global definitions.
	all, err := s.FindProcessorsForGroup("grp1")
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Defaults are filtered by direction and exclude disabled entries.
	ingestDefaults, err := s.FindDefaultProcessorsForGroup("grp1", model.KindIngest)
	require.NoError(t, err)
	require.Len(t, ingestDefaults, 1)
	require.Equal(t, "checksum", ingestDefaults[0].Name)

	downloadDefaults, err := s.FindDefaultProcessorsForGroup("grp1", model.KindDownload)
	require.NoError(t, err)
	require.Len(t, downloadDefaults, 2)

	_, err = s.GetProcessorByIdentifier("missing")
	require.ErrorIs(t, err, ErrNotFound)
}
