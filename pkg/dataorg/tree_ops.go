package dataorg

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
)

// CopyNode deep-copies node including attributes and, for collections, all
// children. With selectedOnly set, only children whose Selected marker is
// set are included; the node itself is copied unconditionally. Node
// identities in the copy are fresh, parent references are rebuilt, and the
// copy is fully detached from the source tree.
func CopyNode(node Node, selectedOnly bool) (Node, error) {
	if node == nil {
		return nil, errors.New("node must not be nil")
	}

	switch n := node.(type) {
	case *FileNode:
		result := NewFileNode(n.Name, n.LogicalFileName)
		copyBase(&n.NodeBase, &result.NodeBase)
		return result, nil
	case *CollectionNode:
		result := &CollectionNode{}
		copyBase(&n.NodeBase, &result.NodeBase)
		for _, child := range n.Children {
			if selectedOnly && !child.Base().Selected {
				continue
			}
			childCopy, err := CopyNode(child, selectedOnly)
			if err != nil {
				return nil, err
			}
			result.AddChild(childCopy)
		}
		return result, nil
	default:
		return nil, errors.Errorf("unsupported node kind %T", node)
	}
}

func copyBase(src, dst *NodeBase) {
	dst.NodeID = src.NodeID
	dst.Name = src.Name
	dst.ViewName = src.ViewName
	dst.Description = src.Description
	dst.Attributes = append([]Attribute(nil), src.Attributes...)
}

// CopyTree deep-copies tree. With selectedOnly set, only selected nodes are
// included; if the root itself is not selected, nil is returned because
// nothing remains to copy.
func CopyTree(tree *FileTree, selectedOnly bool) (*FileTree, error) {
	if tree == nil || tree.Root == nil {
		return nil, errors.New("tree must not be nil")
	}

	if selectedOnly && !tree.Root.Selected {
		return nil, nil
	}

	rootCopy, err := CopyNode(tree.Root, selectedOnly)
	if err != nil {
		return nil, err
	}

	return &FileTree{
		ObjectID: tree.ObjectID,
		ViewName: tree.ViewName,
		Root:     rootCopy.(*CollectionNode),
	}, nil
}

// WalkParents returns the chain of collections from the tree root down to
// the direct parent of node. A root node yields an empty chain.
func WalkParents(node Node) []*CollectionNode {
	var parents []*CollectionNode
	for p := node.Base().Parent(); p != nil; p = p.Parent() {
		parents = append([]*CollectionNode{p}, parents...)
	}
	return parents
}

// Merge walks path below target, creating any missing intermediate
// collection by name, then adds each of nodes under the resolved leaf
// collection via AddNode. The returned slice is the resolved path, i.e. the
// actual collections that now represent each path element.
//
// Merging the same subtree twice is a no-op as long as names match: existing
// collections are reused, existing file nodes win over incoming ones.
func Merge(target *CollectionNode, path []*CollectionNode, nodes ...Node) []*CollectionNode {
	resolved := make([]*CollectionNode, 0, len(path))
	current := target

	for _, pathNode := range path {
		var next *CollectionNode
		for _, child := range current.Children {
			if c, ok := child.(*CollectionNode); ok && c.Name == pathNode.Name {
				next = c
				break
			}
		}
		if next == nil {
			next = NewCollectionNode(pathNode.Name)
			current.AddChild(next)
		}
		resolved = append(resolved, next)
		current = next
	}

	for _, node := range nodes {
		AddNode(current, node)
	}
	return resolved
}

// MergeTrees merges every top-level child of src into dst's root.
func MergeTrees(dst, src *FileTree) {
	for _, child := range src.Root.Children {
		Merge(dst.Root, nil, child)
	}
}

// AddNode adds node below target unless a child with the same name and kind
// already exists. A colliding collection is merged recursively, a colliding
// file node wins over the incoming one, and a collection-vs-file collision
// drops the incoming node.
func AddNode(target *CollectionNode, node Node) {
	var existing Node
	for _, child := range target.Children {
		if child.Base().Name == node.Base().Name {
			existing = child
			break
		}
	}

	if existing == nil {
		target.AddChild(node)
		return
	}

	existingCol, isCol := existing.(*CollectionNode)
	incomingCol, incomingIsCol := node.(*CollectionNode)
	if isCol && incomingIsCol {
		for _, child := range incomingCol.Children {
			AddNode(existingCol, child)
		}
		return
	}

	// Same-kind file collision: existing wins. Cross-kind collision: the
	// incoming node is dropped, the slot keeps its kind.
	log.Debugf("node %q already present, keeping existing entry", node.Base().Name)
}

// FlattenNode materializes node and all descendants as a depth-first
// pre-order list.
func FlattenNode(node Node) []Node {
	result := []Node{node}
	if c, ok := node.(*CollectionNode); ok {
		for _, child := range c.Children {
			result = append(result, FlattenNode(child)...)
		}
	}
	return result
}
