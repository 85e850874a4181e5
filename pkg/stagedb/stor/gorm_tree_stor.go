package stor

import (
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormTreeStor struct {
	db *gorm.DB
}

func NewGormTreeStor(db *gorm.DB) *GormTreeStor {
	return &GormTreeStor{db: db}
}

// SaveTreeSnapshot persists tree as the snapshot for its (object, view)
// pair, replacing an earlier snapshot. The root size and file count are
// lifted from the root attributes into columns for the aggregate queries.
func (s *GormTreeStor) SaveTreeSnapshot(tree *dataorg.FileTree, ctx auth.AccessContext) (*model.TreeSnapshot, error) {
	if tree == nil || tree.Root == nil {
		return nil, errors.Wrap(ErrValidation, "tree must not be nil")
	}
	if !ctx.IsValid() {
		return nil, errors.Wrap(ErrValidation, "access context must carry a user id")
	}

	var encoded strings.Builder
	if err := dataorg.EncodeTree(&encoded, tree); err != nil {
		return nil, err
	}

	snapshot := &model.TreeSnapshot{
		ObjectID:  tree.ObjectID,
		ViewName:  tree.ViewName,
		OwnerID:   ctx.UserID,
		Tree:      encoded.String(),
		RootSize:  rootAttributeInt(tree, dataorg.AttrSize),
		FileCount: countFileNodes(tree),
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_id"}, {Name: "view_name"}},
			UpdateAll: true,
		}).Create(snapshot).Error
	})
	if err != nil {
		return nil, errors.Wrapf(ErrPersistence, "saving tree snapshot for object %s: %s", tree.ObjectID, err)
	}
	return snapshot, nil
}

// LoadFileTree returns the stored tree for objectID in the default view.
func (s *GormTreeStor) LoadFileTree(objectID string, ctx auth.AccessContext) (*dataorg.FileTree, error) {
	var snapshot model.TreeSnapshot
	q := s.db.Where("object_id = ? AND view_name = ?", objectID, dataorg.DefaultViewName)
	if !ctx.IsPrivileged() {
		q = q.Where("owner_id = ?", ctx.UserID)
	}
	err := q.First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no file tree for object %s", objectID)
	}
	if err != nil {
		return nil, err
	}
	return dataorg.DecodeTree(strings.NewReader(snapshot.Tree))
}

func (s *GormTreeStor) GetAssociatedDataSize(objectID string, ctx auth.AccessContext) int64 {
	return s.aggregate("COALESCE(SUM(root_size), 0)", objectID, ctx)
}

func (s *GormTreeStor) GetAssociatedFileCount(objectID string, ctx auth.AccessContext) int64 {
	return s.aggregate("COALESCE(SUM(file_count), 0)", objectID, ctx)
}

func (s *GormTreeStor) aggregate(selection, objectID string, ctx auth.AccessContext) int64 {
	q := s.db.Model(&model.TreeSnapshot{}).Where("view_name = ?", dataorg.DefaultViewName)
	if objectID != "" {
		q = q.Where("object_id = ?", objectID)
	}
	if !ctx.IsPrivileged() {
		q = q.Where("owner_id = ?", ctx.UserID)
	}

	var result int64
	if err := q.Select(selection).Scan(&result).Error; err != nil {
		// denial and absence both read as zero
		log.Debugf("tree snapshot aggregate failed for object %q: %s", objectID, err)
		return 0
	}
	return result
}

func rootAttributeInt(tree *dataorg.FileTree, key string) int64 {
	v, ok := tree.Root.Attribute(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func countFileNodes(tree *dataorg.FileTree) int64 {
	var count int64
	for _, n := range dataorg.FlattenNode(tree.Root) {
		if _, ok := n.(*dataorg.FileNode); ok {
			count++
		}
	}
	return count
}
