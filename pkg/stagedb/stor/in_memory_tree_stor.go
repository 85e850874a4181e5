package stor

import (
	"strconv"

	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
)

type InMemoryTreeStor struct {
	ErrToReturn error
	trees       map[string]*dataorg.FileTree
	owners      map[string]string
}

func NewInMemoryTreeStor() *InMemoryTreeStor {
	return &InMemoryTreeStor{
		trees:  make(map[string]*dataorg.FileTree),
		owners: make(map[string]string),
	}
}

func (s *InMemoryTreeStor) SaveTreeSnapshot(tree *dataorg.FileTree, ctx auth.AccessContext) (*model.TreeSnapshot, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}
	if tree == nil || tree.Root == nil {
		return nil, ErrValidation
	}

	copied, err := dataorg.CopyTree(tree, false)
	if err != nil {
		return nil, err
	}
	s.trees[tree.ObjectID] = copied
	s.owners[tree.ObjectID] = ctx.UserID

	return &model.TreeSnapshot{
		ObjectID:  tree.ObjectID,
		ViewName:  tree.ViewName,
		OwnerID:   ctx.UserID,
		RootSize:  s.GetAssociatedDataSize(tree.ObjectID, ctx),
		FileCount: s.GetAssociatedFileCount(tree.ObjectID, ctx),
	}, nil
}

func (s *InMemoryTreeStor) LoadFileTree(objectID string, ctx auth.AccessContext) (*dataorg.FileTree, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	tree, ok := s.trees[objectID]
	if !ok || !s.visible(objectID, ctx) {
		return nil, errors.Wrapf(ErrNotFound, "no file tree for object %s", objectID)
	}
	return dataorg.CopyTree(tree, false)
}

func (s *InMemoryTreeStor) GetAssociatedDataSize(objectID string, ctx auth.AccessContext) int64 {
	var sum int64
	for id, tree := range s.trees {
		if objectID != "" && id != objectID {
			continue
		}
		if !s.visible(id, ctx) {
			continue
		}
		if v, ok := tree.Root.Attribute(dataorg.AttrSize); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				sum += n
			}
		}
	}
	return sum
}

func (s *InMemoryTreeStor) GetAssociatedFileCount(objectID string, ctx auth.AccessContext) int64 {
	var count int64
	for id, tree := range s.trees {
		if objectID != "" && id != objectID {
			continue
		}
		if !s.visible(id, ctx) {
			continue
		}
		for _, n := range dataorg.FlattenNode(tree.Root) {
			if _, ok := n.(*dataorg.FileNode); ok {
				count++
			}
		}
	}
	return count
}

func (s *InMemoryTreeStor) visible(objectID string, ctx auth.AccessContext) bool {
	return ctx.IsPrivileged() || s.owners[objectID] == ctx.UserID
}
