// Package tomstore implements the per-tom reader/writer coordinator and the
// document-tree/filesystem primitives it depends on. The XML codec and
// filesystem backend are pluggable collaborators; this package ships a
// default implementation of both so the coordinator is runnable end to end.
package tomstore

import "strings"

// Node is one element of a tom's document tree. A node is either an
// intermediate node (has Children) or a leaf (has Text and no children);
// nothing prevents both, matching the schema's arbitrary-tree shape.
type Node struct {
	Text     string
	Children map[string]*Node
}

// Tree is the in-memory materialization of one tom's <tom><root>...</root>
// document. Root corresponds to the <root> element; the <tom> wrapper
// itself carries no data.
type Tree struct {
	Root *Node
}

// NewTree returns a fresh tree with an empty root, matching the shape a
// newly created tom's document has.
func NewTree() *Tree {
	return &Tree{Root: &Node{Children: map[string]*Node{}}}
}

func newNode() *Node {
	return &Node{Children: map[string]*Node{}}
}

// Navigate walks path (a '/'-separated real path, without the "tom/root"
// prefix) from the root, returning the target node or false if any segment
// is missing.
func (t *Tree) Navigate(path string) (*Node, bool) {
	node := t.Root
	for _, seg := range splitPath(path) {
		next, ok := node.Children[seg]
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// NavigateCreate walks path from the root, creating intermediate nodes as
// needed, and returns the target node.
func (t *Tree) NavigateCreate(path string) *Node {
	node := t.Root
	for _, seg := range splitPath(path) {
		next, ok := node.Children[seg]
		if !ok {
			next = newNode()
			node.Children[seg] = next
		}
		node = next
	}
	return node
}

// DeleteAt removes the named child at path from its parent. Reports
// whether a node was present to delete.
func (t *Tree) DeleteAt(path string) bool {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false
	}
	parent, ok := t.Navigate(strings.Join(segs[:len(segs)-1], "/"))
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	if _, ok := parent.Children[last]; !ok {
		return false
	}
	delete(parent.Children, last)
	return true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// GetLeaf reads the text of a leaf child (key/mapped/date_created/lifetime)
// of entry.
func GetLeaf(entry *Node, name string) (string, bool) {
	if entry == nil {
		return "", false
	}
	child, ok := entry.Children[name]
	if !ok {
		return "", false
	}
	return child.Text, true
}

// SetLeaf writes (creating if necessary) a leaf child's text.
func SetLeaf(entry *Node, name, value string) {
	child, ok := entry.Children[name]
	if !ok {
		child = newNode()
		entry.Children[name] = child
	}
	child.Text = value
}

// DeleteLeaf removes a leaf child if present.
func DeleteLeaf(entry *Node, name string) {
	delete(entry.Children, name)
}
