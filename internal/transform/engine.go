// Package transform implements the structural edit operations of the editor:
// insert, move, duplicate and delete, addressed by stable node identity with
// position-addressed wrappers.
package transform

import (
	"errors"
	"fmt"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

// ErrNodeNotFound is wrapped by every error caused by an unknown node id or
// position.
var ErrNodeNotFound = errors.New("node not found")

// Direction selects the neighbor a section moves past.
type Direction string

const (
	Before Direction = "before"
	After  Direction = "after"
)

// Result describes the outcome of one operation.
type Result struct {
	Changed   bool                      `json:"changed"`
	NodeID    tree.ID                   `json:"nodeId,omitempty"`
	Position  tree.Position             `json:"position"`
	Positions map[tree.ID]tree.Position `json:"positions"`
}

// Definitions supplies default props for new sections.
type Definitions interface {
	Lookup(key string) (registry.Definition, bool)
}

// Engine applies operations to one tree. It is not safe for concurrent use;
// an editing session owns its engine.
type Engine struct {
	root *tree.Node
	defs Definitions
	idx  *tree.Index
}

// New creates an engine over root. Nodes without identity are given one.
func New(root *tree.Node, defs Definitions) (*Engine, error) {
	if root == nil {
		return nil, blockpress.Errorf(blockpress.CodeInvalidInput, "transform.new", "tree is empty")
	}
	tree.EnsureIDs(root)
	if err := tree.Validate(root); err != nil {
		return nil, blockpress.Wrap(blockpress.CodeInvalidInput, "transform.new", err)
	}
	e := &Engine{root: root, defs: defs}
	e.reindex()
	return e, nil
}

// Root returns the tree being edited.
func (e *Engine) Root() *tree.Node { return e.root }

// Index returns the current id to position index.
func (e *Engine) Index() *tree.Index { return e.idx }

func (e *Engine) reindex() {
	e.idx = tree.BuildIndex(e.root)
}

func (e *Engine) result(changed bool, id tree.ID) Result {
	pos := tree.NoPosition
	if entry, ok := e.idx.Lookup(id); ok {
		pos = entry.Position
	}
	return Result{Changed: changed, NodeID: id, Position: pos, Positions: e.idx.Positions()}
}

func notFound(op string, what any) error {
	return blockpress.Wrap(blockpress.CodeNotFound, op, fmt.Errorf("%w: %v", ErrNodeNotFound, what))
}

// lookup resolves id to a non-root entry.
func (e *Engine) lookup(op string, id tree.ID) (*tree.Entry, error) {
	entry, ok := e.idx.Lookup(id)
	if !ok {
		return nil, notFound(op, id)
	}
	if entry.Parent == nil {
		return nil, blockpress.Errorf(blockpress.CodeInvalidTarget, op, "the document root cannot be targeted")
	}
	return entry, nil
}

func (e *Engine) idAt(op string, pos tree.Position) (tree.ID, error) {
	entry, ok := e.idx.At(pos)
	if !ok {
		return "", notFound(op, fmt.Sprintf("position %d", pos))
	}
	return entry.Node.ID, nil
}

// InsertSection creates a section for key as child index of parent. Nil props
// are seeded from the component's defaults; unknown keys are allowed and
// render as a not-found placeholder.
func (e *Engine) InsertSection(parent tree.ID, index int, key string, props map[string]any) (Result, error) {
	const op = "transform.insert"
	if key == "" {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op, "component key is required")
	}
	if props == nil {
		props = map[string]any{}
		if e.defs != nil {
			if def, ok := e.defs.Lookup(key); ok {
				props = def.Defaults()
			}
		}
	}
	return e.insert(op, parent, index, tree.NewSection(key, tree.CopyProps(props)))
}

// InsertSectionAt is InsertSection addressed by the parent's position.
func (e *Engine) InsertSectionAt(parent tree.Position, index int, key string, props map[string]any) (Result, error) {
	id, err := e.idAt("transform.insert", parent)
	if err != nil {
		return Result{}, err
	}
	return e.InsertSection(id, index, key, props)
}

// InsertNode inserts an arbitrary subtree as child index of parent.
func (e *Engine) InsertNode(parent tree.ID, index int, n *tree.Node) (Result, error) {
	const op = "transform.insert_node"
	if n == nil {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op, "node is required")
	}
	if n.Type == tree.TypeDoc {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op, "a document cannot be nested")
	}
	tree.EnsureIDs(n)
	if err := tree.Validate(tree.NewDoc(n)); err != nil {
		return Result{}, blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	for _, entry := range tree.BuildIndex(n).Entries() {
		if _, clash := e.idx.Lookup(entry.Node.ID); clash {
			return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op, "node %s is already in the tree", entry.Node.ID)
		}
	}
	return e.insert(op, parent, index, n)
}

func (e *Engine) insert(op string, parentID tree.ID, index int, n *tree.Node) (Result, error) {
	entry, ok := e.idx.Lookup(parentID)
	if !ok {
		return Result{}, notFound(op, parentID)
	}
	parent := entry.Node
	// any node tree.Validate lets carry children may receive one
	if parent.IsLeaf() {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidTarget, op, "%s nodes cannot have children", parent.Type)
	}
	if index < 0 || index > len(parent.Content) {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op,
			"index %d out of range [0, %d]", index, len(parent.Content))
	}
	parent.Content = insertAt(parent.Content, index, n)
	e.reindex()
	return e.result(true, n.ID), nil
}

// MoveSection moves the section past its nearest section sibling in the
// given direction. Prose siblings in between are skipped. When there is no
// such sibling the tree is unchanged and Changed is false.
func (e *Engine) MoveSection(id tree.ID, dir Direction) (Result, error) {
	const op = "transform.move"
	entry, err := e.lookup(op, id)
	if err != nil {
		return Result{}, err
	}
	if !entry.Node.IsSection() {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidTarget, op, "only sections can be moved")
	}
	if dir != Before && dir != After {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidInput, op, "unknown direction %q", dir)
	}

	siblings := entry.Parent.Content
	neighbor := -1
	if dir == Before {
		for i := entry.Index - 1; i >= 0; i-- {
			if siblings[i].IsSection() {
				neighbor = i
				break
			}
		}
	} else {
		for i := entry.Index + 1; i < len(siblings); i++ {
			if siblings[i].IsSection() {
				neighbor = i
				break
			}
		}
	}
	if neighbor < 0 {
		return e.result(false, id), nil
	}

	node := siblings[entry.Index]
	rest := removeAt(siblings, entry.Index)
	target := neighbor // index of the neighbor in rest
	if neighbor > entry.Index {
		target--
	}
	if dir == After {
		target++
	}
	entry.Parent.Content = insertAt(rest, target, node)
	e.reindex()
	return e.result(true, id), nil
}

// MoveSectionAt is MoveSection addressed by position.
func (e *Engine) MoveSectionAt(pos tree.Position, dir Direction) (Result, error) {
	id, err := e.idAt("transform.move", pos)
	if err != nil {
		return Result{}, err
	}
	return e.MoveSection(id, dir)
}

// DuplicateSection inserts a deep copy of the node, with fresh identities,
// immediately after it. The original is not modified.
func (e *Engine) DuplicateSection(id tree.ID) (Result, error) {
	const op = "transform.duplicate"
	entry, err := e.lookup(op, id)
	if err != nil {
		return Result{}, err
	}
	clone := tree.Clone(entry.Node)
	entry.Parent.Content = insertAt(entry.Parent.Content, entry.Index+1, clone)
	e.reindex()
	return e.result(true, clone.ID), nil
}

// DuplicateSectionAt is DuplicateSection addressed by position.
func (e *Engine) DuplicateSectionAt(pos tree.Position) (Result, error) {
	id, err := e.idAt("transform.duplicate", pos)
	if err != nil {
		return Result{}, err
	}
	return e.DuplicateSection(id)
}

// Delete removes the subtree rooted at id. The ids of the removed nodes are
// no longer valid.
func (e *Engine) Delete(id tree.ID) (Result, error) {
	const op = "transform.delete"
	entry, err := e.lookup(op, id)
	if err != nil {
		return Result{}, err
	}
	entry.Parent.Content = removeAt(entry.Parent.Content, entry.Index)
	e.reindex()
	res := e.result(true, id)
	res.Position = entry.Position
	return res, nil
}

// DeleteAt is Delete addressed by position.
func (e *Engine) DeleteAt(pos tree.Position) (Result, error) {
	id, err := e.idAt("transform.delete", pos)
	if err != nil {
		return Result{}, err
	}
	return e.Delete(id)
}

// UpdateProps replaces a section's props.
func (e *Engine) UpdateProps(id tree.ID, props map[string]any) (Result, error) {
	const op = "transform.update_props"
	entry, err := e.lookup(op, id)
	if err != nil {
		return Result{}, err
	}
	if !entry.Node.IsSection() {
		return Result{}, blockpress.Errorf(blockpress.CodeInvalidTarget, op, "only sections have props")
	}
	before := tree.NewSection(entry.Node.ComponentKey(), entry.Node.Props())
	after := tree.NewSection(entry.Node.ComponentKey(), props)
	if tree.Equal(before, after) {
		return e.result(false, id), nil
	}
	entry.Node.SetProps(tree.CopyProps(props))
	return e.result(true, id), nil
}

func insertAt(nodes []*tree.Node, i int, n *tree.Node) []*tree.Node {
	out := make([]*tree.Node, 0, len(nodes)+1)
	out = append(out, nodes[:i]...)
	out = append(out, n)
	return append(out, nodes[i:]...)
}

func removeAt(nodes []*tree.Node, i int) []*tree.Node {
	out := make([]*tree.Node, 0, len(nodes)-1)
	out = append(out, nodes[:i]...)
	return append(out, nodes[i+1:]...)
}
