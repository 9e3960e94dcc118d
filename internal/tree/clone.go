package tree

import (
	"encoding/json"
	"fmt"
)

// Clone deep-copies the subtree rooted at n. Every copied node receives a
// fresh identity; attributes, props and marks are copied, never shared.
func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		ID:   NewID(),
		Type: n.Type,
		Text: n.Text,
	}
	if n.Attrs != nil {
		c.Attrs = NormalizeProps(n.Attrs)
	}
	if n.Marks != nil {
		c.Marks = normalizeMarks(n.Marks)
	}
	if n.Content != nil {
		c.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = Clone(child)
		}
	}
	return c
}

// Equal reports whether a and b are structurally equal, attribute for
// attribute. Node identities are ignored; nil and empty content compare
// equal, as do numerically equal attribute values of different Go types.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.Text != b.Text {
		return false
	}
	if !valuesEqual(attrsForCompare(a), attrsForCompare(b)) {
		return false
	}
	if len(a.Marks) != len(b.Marks) {
		return false
	}
	for i := range a.Marks {
		if a.Marks[i].Type != b.Marks[i].Type {
			return false
		}
		if !valuesEqual(emptyIfNil(a.Marks[i].Attrs), emptyIfNil(b.Marks[i].Attrs)) {
			return false
		}
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !Equal(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

func attrsForCompare(n *Node) map[string]any {
	attrs := emptyIfNil(n.Attrs)
	if n.Type == TypeSection && attrs[AttrProps] == nil {
		out := make(map[string]any, len(attrs)+1)
		for k, v := range attrs {
			out[k] = v
		}
		out[AttrProps] = map[string]any{}
		return out
	}
	return attrs
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// valuesEqual compares two attribute values by their canonical JSON
// encoding; encoding/json sorts map keys, which makes the encoding canonical.
func valuesEqual(a, b any) bool {
	ab, err := json.Marshal(NormalizeValue(a))
	if err != nil {
		return false
	}
	bb, err := json.Marshal(NormalizeValue(b))
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// ValidationError reports a well-formedness violation.
type ValidationError struct {
	Node   *Node
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Node == nil {
		return "tree: " + e.Reason
	}
	return fmt.Sprintf("tree: %s: %s", e.Node, e.Reason)
}

// Validate checks the structural invariants of a tree: every node appears
// exactly once (one parent, no cycles), identities are unique, leaves have
// no children and sections carry a component key.
func Validate(root *Node) error {
	if root == nil {
		return &ValidationError{Reason: "nil root"}
	}
	seen := make(map[*Node]bool)
	ids := make(map[ID]bool)
	var check func(n *Node, depth int) error
	check = func(n *Node, depth int) error {
		if n == nil {
			return &ValidationError{Reason: "nil child"}
		}
		if depth > maxDepth {
			return &ValidationError{Node: n, Reason: "tree is nested too deeply"}
		}
		if seen[n] {
			return &ValidationError{Node: n, Reason: "node has more than one parent"}
		}
		seen[n] = true
		if n.ID == "" {
			return &ValidationError{Node: n, Reason: "node has no identity"}
		}
		if ids[n.ID] {
			return &ValidationError{Node: n, Reason: fmt.Sprintf("duplicate identity %s", n.ID)}
		}
		ids[n.ID] = true
		if !IsKnownType(n.Type) {
			return &ValidationError{Node: n, Reason: fmt.Sprintf("unknown node type %q", n.Type)}
		}
		if n.IsLeaf() && len(n.Content) > 0 {
			return &ValidationError{Node: n, Reason: "leaf node has children"}
		}
		if n.Type == TypeDoc && depth > 0 {
			return &ValidationError{Node: n, Reason: "doc node below the root"}
		}
		if n.IsSection() && n.ComponentKey() == "" {
			return &ValidationError{Node: n, Reason: "section has no componentKey"}
		}
		for _, c := range n.Content {
			if err := check(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return check(root, 0)
}

// EnsureIDs assigns identities to nodes that have none, e.g. trees built
// literally in Go code.
func EnsureIDs(root *Node) {
	Walk(root, func(n, _ *Node, _ Position, _ int) bool {
		if n.ID == "" {
			n.ID = NewID()
		}
		return true
	})
}
