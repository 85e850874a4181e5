package dataorg

// Well-known attribute keys used by the staging subsystem.
const (
	AttrDirectory    = "directory"
	AttrLastModified = "lastModified"
	AttrSize         = "size"
	AttrChildren     = "children"
	AttrFileCount    = "fileCount"
	AttrExists       = "exists"
	AttrTransferred  = "transferred"
)

// DefaultViewName is the data organization view a tree belongs to when the
// caller doesn't ask for a specific one.
const DefaultViewName = "default"

// Attribute is a single key/value annotation on a node. Keys are unique per
// node; setting an existing key overwrites its value.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Node is the closed set of data organization node kinds. Only
// *CollectionNode and *FileNode implement it.
type Node interface {
	Base() *NodeBase
	isNode()
}

// NodeBase holds the payload every node kind carries.
type NodeBase struct {
	NodeID      int64       `json:"node_id,omitempty"`
	Name        string      `json:"name"`
	ViewName    string      `json:"view_name,omitempty"`
	Description string      `json:"description,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`

	// Selected is an external marker evaluated by CopyNode/CopyTree when
	// copying a user selection. It is never persisted.
	Selected bool `json:"-"`

	// parent is a non-owning back-reference maintained by
	// CollectionNode.AddChild. It is deliberately unexported so that only
	// the owning collection can change it.
	parent *CollectionNode
}

func (b *NodeBase) Base() *NodeBase { return b }

// Parent returns the collection this node was added to, or nil for roots.
func (b *NodeBase) Parent() *CollectionNode { return b.parent }

// Attribute returns the value for key and whether the key is set.
func (b *NodeBase) Attribute(key string) (string, bool) {
	for _, a := range b.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttribute sets key to value, overwriting an existing entry with the
// same key (last write wins).
func (b *NodeBase) SetAttribute(key, value string) {
	for i, a := range b.Attributes {
		if a.Key == key {
			b.Attributes[i].Value = value
			return
		}
	}
	b.Attributes = append(b.Attributes, Attribute{Key: key, Value: value})
}

// CollectionNode is a directory-like node owning an ordered set of children.
type CollectionNode struct {
	NodeBase
	Children []Node `json:"children,omitempty"`
}

func (*CollectionNode) isNode() {}

func NewCollectionNode(name string) *CollectionNode {
	return &CollectionNode{NodeBase: NodeBase{Name: name}}
}

// AddChild appends child and updates its parent back-reference. The caller
// must not add a node to more than one collection; use CopyNode to place a
// copy elsewhere.
func (c *CollectionNode) AddChild(child Node) {
	child.Base().parent = c
	c.Children = append(c.Children, child)
}

// FileNode is a leaf node pointing at physical data via a URL-like locator.
type FileNode struct {
	NodeBase
	LogicalFileName string `json:"logical_file_name"`
}

func (*FileNode) isNode() {}

func NewFileNode(name, logicalFileName string) *FileNode {
	return &FileNode{NodeBase: NodeBase{Name: name}, LogicalFileName: logicalFileName}
}

// FileTree is the root of a digital object's file layout in one view.
type FileTree struct {
	ObjectID string          `json:"object_id"`
	ViewName string          `json:"view_name"`
	Root     *CollectionNode `json:"root"`
}

func NewFileTree(objectID string) *FileTree {
	return &FileTree{
		ObjectID: objectID,
		ViewName: DefaultViewName,
		Root:     &CollectionNode{},
	}
}

// DirectoryExists reports whether the exists marker is set on the node.
func DirectoryExists(node *CollectionNode) bool {
	v, ok := node.Attribute(AttrExists)
	return ok && v == "true"
}

// IsFileTransferred reports whether the transferred marker is set on the node.
func IsFileTransferred(node *FileNode) bool {
	v, ok := node.Attribute(AttrTransferred)
	return ok && v == "true"
}

// MarkFileTransferred marks the node's data as already moved so that a later
// restore pass skips it.
func MarkFileTransferred(node *FileNode) {
	node.SetAttribute(AttrTransferred, "true")
}
