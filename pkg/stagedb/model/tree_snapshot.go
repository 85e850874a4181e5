package model

import "time"

// TreeSnapshot is the persisted form of a digital object's file tree in one
// view. The tree itself is stored JSON-encoded; the root-level size and file
// count are lifted into columns so that aggregate queries stay cheap.
type TreeSnapshot struct {
	ID       int64  `json:"id"`
	ObjectID string `json:"object_id" gorm:"uniqueIndex:idx_snapshot_view"`
	ViewName string `json:"view_name" gorm:"uniqueIndex:idx_snapshot_view"`
	OwnerID  string `json:"owner_id" gorm:"index"`

	Tree      string `json:"-"`
	RootSize  int64  `json:"root_size"`
	FileCount int64  `json:"file_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TreeSnapshot) TableName() string {
	return "tree_snapshots"
}
