package dataorg

import (
	"fmt"
	"io"
)

// PrintTree renders node and its descendants as an indented listing, mainly
// for debugging and log output. With includeLocator set, file nodes also
// show their logical file name.
func PrintTree(w io.Writer, node *CollectionNode, includeLocator bool) {
	printNode(w, node, "", includeLocator)
}

func printNode(w io.Writer, node Node, padding string, includeLocator bool) {
	name := node.Base().Name
	if name == "" {
		name = "/"
	}

	switch n := node.(type) {
	case *CollectionNode:
		fmt.Fprintf(w, "%s+ %s\n", padding, name)
		for _, child := range n.Children {
			printNode(w, child, padding+"  ", includeLocator)
		}
	case *FileNode:
		if includeLocator {
			fmt.Fprintf(w, "%s- %s (%s)\n", padding, name, n.LogicalFileName)
		} else {
			fmt.Fprintf(w, "%s- %s\n", padding, name)
		}
	}
}
