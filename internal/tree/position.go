package tree

import "iter"

// Position is an offset into the canonical pre-order traversal of a tree.
// The root is at position 0. A position is only meaningful for the tree
// state it was computed from; any structural edit invalidates it.
type Position int

// NoPosition is returned when a node is not part of the tree.
const NoPosition Position = -1

// Visit is the callback used by Walk. Returning false skips the node's
// children.
type Visit func(n, parent *Node, pos Position, depth int) bool

// Walk traverses the tree in pre-order.
func Walk(root *Node, fn Visit) {
	if root == nil {
		return
	}
	pos := Position(0)
	var walk func(n, parent *Node, depth int)
	walk = func(n, parent *Node, depth int) {
		p := pos
		pos++
		if !fn(n, parent, p, depth) {
			pos += Position(countDescendants(n))
			return
		}
		for _, c := range n.Content {
			walk(c, n, depth+1)
		}
	}
	walk(root, nil, 0)
}

func countDescendants(n *Node) int {
	total := 0
	for _, c := range n.Content {
		total += 1 + countDescendants(c)
	}
	return total
}

// Size returns the number of nodes in the tree.
func Size(root *Node) int {
	if root == nil {
		return 0
	}
	return 1 + countDescendants(root)
}

// FindAll returns a lazy pre-order sequence of the nodes matching pred
// together with their positions. A nil pred matches every node.
func FindAll(root *Node, pred func(*Node) bool) iter.Seq2[*Node, Position] {
	return func(yield func(*Node, Position) bool) {
		if root == nil {
			return
		}
		pos := Position(0)
		var walk func(n *Node) bool
		walk = func(n *Node) bool {
			p := pos
			pos++
			if pred == nil || pred(n) {
				if !yield(n, p) {
					return false
				}
			}
			for _, c := range n.Content {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(root)
	}
}

// Sections is FindAll restricted to section nodes.
func Sections(root *Node) iter.Seq2[*Node, Position] {
	return FindAll(root, (*Node).IsSection)
}

// At returns the node at pos.
func At(root *Node, pos Position) (*Node, bool) {
	if pos < 0 {
		return nil, false
	}
	for n, p := range FindAll(root, nil) {
		if p == pos {
			return n, true
		}
		if p > pos {
			break
		}
	}
	return nil, false
}

// PositionOf returns the current position of the node with the given id.
func PositionOf(root *Node, id ID) Position {
	for n, p := range FindAll(root, nil) {
		if n.ID == id {
			return p
		}
	}
	return NoPosition
}

// Entry locates one node inside an indexed tree.
type Entry struct {
	Node     *Node
	Parent   *Node
	Position Position
	Depth    int
	Index    int // index within Parent.Content; 0 for the root
}

// Index maps node identities to their location in a tree snapshot. It must
// be rebuilt after every structural edit.
type Index struct {
	root    *Node
	entries map[ID]*Entry
	order   []*Entry
}

// BuildIndex indexes every node of root.
func BuildIndex(root *Node) *Index {
	idx := &Index{root: root, entries: make(map[ID]*Entry)}
	if root == nil {
		return idx
	}
	pos := Position(0)
	var walk func(n, parent *Node, depth, index int)
	walk = func(n, parent *Node, depth, index int) {
		e := &Entry{Node: n, Parent: parent, Position: pos, Depth: depth, Index: index}
		pos++
		idx.entries[n.ID] = e
		idx.order = append(idx.order, e)
		for i, c := range n.Content {
			walk(c, n, depth+1, i)
		}
	}
	walk(root, nil, 0, 0)
	return idx
}

// Root returns the indexed tree's root.
func (idx *Index) Root() *Node {
	return idx.root
}

// Lookup returns the entry for id.
func (idx *Index) Lookup(id ID) (*Entry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// At returns the entry at pos.
func (idx *Index) At(pos Position) (*Entry, bool) {
	if pos < 0 || int(pos) >= len(idx.order) {
		return nil, false
	}
	return idx.order[pos], true
}

// Positions returns a copy of the id → position mapping.
func (idx *Index) Positions() map[ID]Position {
	out := make(map[ID]Position, len(idx.entries))
	for id, e := range idx.entries {
		out[id] = e.Position
	}
	return out
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int {
	return len(idx.order)
}

// Entries returns the entries in pre-order.
func (idx *Index) Entries() []*Entry {
	return idx.order
}
