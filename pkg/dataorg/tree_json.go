package dataorg

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// treeJSON is the wire form of a tree. Node kinds are made explicit so that
// decoding can rebuild the correct concrete types.
type treeJSON struct {
	ObjectID string   `json:"object_id"`
	ViewName string   `json:"view_name"`
	Root     nodeJSON `json:"root"`
}

type nodeJSON struct {
	Kind            string      `json:"kind"`
	NodeID          int64       `json:"node_id,omitempty"`
	Name            string      `json:"name"`
	ViewName        string      `json:"view_name,omitempty"`
	Description     string      `json:"description,omitempty"`
	Attributes      []Attribute `json:"attributes,omitempty"`
	LogicalFileName string      `json:"logical_file_name,omitempty"`
	Children        []nodeJSON  `json:"children,omitempty"`
}

const (
	kindCollection = "collection"
	kindFile       = "file"
)

// EncodeTree writes tree as JSON to w.
func EncodeTree(w io.Writer, tree *FileTree) error {
	if tree == nil || tree.Root == nil {
		return errors.New("tree must not be nil")
	}
	return json.NewEncoder(w).Encode(treeJSON{
		ObjectID: tree.ObjectID,
		ViewName: tree.ViewName,
		Root:     nodeToJSON(tree.Root),
	})
}

// DecodeTree reads a JSON-encoded tree from r.
func DecodeTree(r io.Reader) (*FileTree, error) {
	var wire treeJSON
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, errors.Wrap(err, "decoding file tree")
	}
	root, err := nodeFromJSON(wire.Root)
	if err != nil {
		return nil, err
	}
	rootCol, ok := root.(*CollectionNode)
	if !ok {
		return nil, errors.New("tree root must be a collection node")
	}
	return &FileTree{ObjectID: wire.ObjectID, ViewName: wire.ViewName, Root: rootCol}, nil
}

// WriteTreeFile stores tree at path, overwriting an existing file.
func WriteTreeFile(tree *FileTree, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeTree(f, tree); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadTreeFile loads a tree previously stored with WriteTreeFile.
func ReadTreeFile(path string) (*FileTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTree(f)
}

func nodeToJSON(node Node) nodeJSON {
	base := node.Base()
	wire := nodeJSON{
		NodeID:      base.NodeID,
		Name:        base.Name,
		ViewName:    base.ViewName,
		Description: base.Description,
		Attributes:  base.Attributes,
	}
	switch n := node.(type) {
	case *CollectionNode:
		wire.Kind = kindCollection
		for _, child := range n.Children {
			wire.Children = append(wire.Children, nodeToJSON(child))
		}
	case *FileNode:
		wire.Kind = kindFile
		wire.LogicalFileName = n.LogicalFileName
	}
	return wire
}

func nodeFromJSON(wire nodeJSON) (Node, error) {
	base := NodeBase{
		NodeID:      wire.NodeID,
		Name:        wire.Name,
		ViewName:    wire.ViewName,
		Description: wire.Description,
		Attributes:  wire.Attributes,
	}
	switch wire.Kind {
	case kindFile:
		return &FileNode{NodeBase: base, LogicalFileName: wire.LogicalFileName}, nil
	case kindCollection:
		node := &CollectionNode{NodeBase: base}
		for _, childWire := range wire.Children {
			child, err := nodeFromJSON(childWire)
			if err != nil {
				return nil, err
			}
			node.AddChild(child)
		}
		return node, nil
	default:
		return nil, errors.Errorf("unknown node kind %q", wire.Kind)
	}
}
