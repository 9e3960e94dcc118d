package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAllPreOrder(t *testing.T) {
	root := NewDoc(
		NewParagraph("a"),                                // 1, text 2
		NewSection("hero", nil, NewParagraph("caption")), // 3, paragraph 4, text 5
		NewSection("callout", nil),                       // 6
	)

	var keys []string
	var positions []Position
	for n, pos := range Sections(root) {
		keys = append(keys, n.ComponentKey())
		positions = append(positions, pos)
	}

	assert.Equal(t, []string{"hero", "callout"}, keys)
	assert.Equal(t, []Position{3, 6}, positions)
	assert.Equal(t, 7, Size(root))
}

func TestFindAllIsLazy(t *testing.T) {
	root := NewDoc(NewParagraph("a"), NewParagraph("b"), NewParagraph("c"))

	visited := 0
	for range FindAll(root, func(n *Node) bool {
		visited++
		return n.Type == TypeParagraph
	}) {
		break
	}
	assert.Equal(t, 2, visited, "iteration should stop at the first match")
}

func TestAtAndPositionOf(t *testing.T) {
	section := NewSection("hero", nil)
	root := NewDoc(NewParagraph("a"), section)

	n, ok := At(root, 3)
	require.True(t, ok)
	assert.Same(t, section, n)
	assert.Equal(t, Position(3), PositionOf(root, section.ID))

	_, ok = At(root, 4)
	assert.False(t, ok)
	_, ok = At(root, -1)
	assert.False(t, ok)
	assert.Equal(t, NoPosition, PositionOf(root, "missing"))
}

func TestIndex(t *testing.T) {
	inner := NewParagraph("caption")
	section := NewSection("hero", nil, inner)
	root := NewDoc(NewParagraph("a"), section)

	idx := BuildIndex(root)
	assert.Equal(t, 6, idx.Len())

	e, ok := idx.Lookup(inner.ID)
	require.True(t, ok)
	assert.Same(t, section, e.Parent)
	assert.Equal(t, Position(4), e.Position)
	assert.Equal(t, 2, e.Depth)
	assert.Equal(t, 0, e.Index)

	e, ok = idx.At(3)
	require.True(t, ok)
	assert.Same(t, section, e.Node)
	assert.Equal(t, 1, e.Index)

	positions := idx.Positions()
	assert.Equal(t, Position(0), positions[root.ID])
}

func TestWalkSkipChildren(t *testing.T) {
	root := NewDoc(NewSection("hero", nil, NewParagraph("x")), NewParagraph("after"))

	var seen []Position
	Walk(root, func(n, _ *Node, pos Position, _ int) bool {
		seen = append(seen, pos)
		return !n.IsSection()
	})
	// The section's paragraph and text (2, 3) are skipped but still counted.
	assert.Equal(t, []Position{0, 1, 4, 5}, seen)
}
