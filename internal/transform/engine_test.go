package transform

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

func sectionKeys(n *tree.Node) []string {
	var keys []string
	for s := range tree.Sections(n) {
		keys = append(keys, s.ComponentKey())
	}
	return keys
}

// doc: intro, hero, prose, callout, quote
func newDoc() (*tree.Node, map[string]*tree.Node) {
	s := map[string]*tree.Node{
		"hero":    tree.NewSection("hero", map[string]any{"title": "Hi"}),
		"callout": tree.NewSection("callout", map[string]any{"tone": "info"}, tree.NewParagraph("inside")),
		"quote":   tree.NewSection("quote", nil),
	}
	root := tree.NewDoc(
		tree.NewParagraph("intro"),
		s["hero"],
		tree.NewParagraph("between"),
		s["callout"],
		s["quote"],
	)
	return root, s
}

func newEngine(t *testing.T) (*Engine, map[string]*tree.Node) {
	t.Helper()
	root, s := newDoc()
	e, err := New(root, registry.New())
	require.NoError(t, err)
	return e, s
}

func TestInsertSectionSeedsDefaults(t *testing.T) {
	e, _ := newEngine(t)

	res, err := e.InsertSection(e.Root().ID, 0, "callout", nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	inserted := e.Root().Content[0]
	assert.Equal(t, inserted.ID, res.NodeID)
	assert.Equal(t, tree.Position(1), res.Position)
	assert.Equal(t, res.Positions[inserted.ID], res.Position)

	def, ok := registry.New().Lookup("callout")
	require.True(t, ok)
	if diff := cmp.Diff(def.Defaults(), inserted.Props()); diff != "" {
		t.Errorf("props mismatch (-want +got):\n%s", diff)
	}

	// The seeded props are a copy, not the definition's own map.
	inserted.Props()["tone"] = "changed"
	again, _ := registry.New().Lookup("callout")
	assert.NotEqual(t, "changed", again.DefaultConfig["tone"])
}

func TestInsertSectionExplicitAndUnknown(t *testing.T) {
	e, s := newEngine(t)

	props := map[string]any{"title": "Custom"}
	_, err := e.InsertSection(s["callout"].ID, 1, "hero", props)
	require.NoError(t, err)
	assert.Equal(t, "Custom", s["callout"].Content[1].Props()["title"])

	props["title"] = "mutated later"
	assert.Equal(t, "Custom", s["callout"].Content[1].Props()["title"])

	res, err := e.InsertSection(e.Root().ID, 5, "does-not-exist", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, e.Root().Content[5].Props())
	assert.True(t, res.Changed)
}

func TestInsertErrors(t *testing.T) {
	e, s := newEngine(t)
	before := tree.Clone(e.Root())

	_, err := e.InsertSection("missing", 0, "hero", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.Equal(t, blockpress.CodeNotFound, blockpress.CodeOf(err))

	_, err = e.InsertSection(e.Root().ID, 99, "hero", nil)
	assert.Equal(t, blockpress.CodeInvalidInput, blockpress.CodeOf(err))

	_, err = e.InsertSection(e.Root().ID, 0, "", nil)
	assert.Equal(t, blockpress.CodeInvalidInput, blockpress.CodeOf(err))

	text := e.Root().Content[0].Content[0]
	_, err = e.InsertSection(text.ID, 0, "hero", nil)
	assert.Equal(t, blockpress.CodeInvalidTarget, blockpress.CodeOf(err))

	_, err = e.InsertSectionAt(999, 0, "hero", nil)
	assert.True(t, errors.Is(err, blockpress.ErrNotFound))

	_, err = e.InsertNode(e.Root().ID, 0, s["hero"])
	assert.Equal(t, blockpress.CodeInvalidInput, blockpress.CodeOf(err), "nodes already in the tree cannot be inserted twice")

	assert.True(t, tree.Equal(before, e.Root()), "failed operations must not change the tree")
}

func TestMoveSectionSkipsProse(t *testing.T) {
	e, s := newEngine(t)

	res, err := e.MoveSection(s["callout"].ID, Before)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"callout", "hero", "quote"}, sectionKeys(e.Root()))

	// The prose paragraph keeps its place relative to the document.
	assert.Equal(t, "intro", e.Root().Content[0].TextContent())
	assert.Same(t, s["callout"], e.Root().Content[1])
	assert.Same(t, s["hero"], e.Root().Content[2])
	assert.Equal(t, "between", e.Root().Content[3].TextContent())

	_, err = e.MoveSection(s["callout"].ID, After)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero", "callout", "quote"}, sectionKeys(e.Root()))
	// intro(1) text(2) hero(3) callout(4)
	assert.Equal(t, tree.Position(4), e.Index().Positions()[s["callout"].ID])
}

func TestMoveSectionWithoutNeighborIsNoop(t *testing.T) {
	e, s := newEngine(t)
	before := tree.Clone(e.Root())

	res, err := e.MoveSection(s["hero"].ID, Before)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = e.MoveSection(s["quote"].ID, After)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, e.Index().Positions()[s["quote"].ID], res.Position)

	assert.True(t, tree.Equal(before, e.Root()))
}

func TestMoveSectionStaysWithinParent(t *testing.T) {
	nested := tree.NewSection("quote", nil)
	outer := tree.NewSection("columns", nil, nested)
	root := tree.NewDoc(tree.NewSection("hero", nil), outer)

	e, err := New(root, nil)
	require.NoError(t, err)

	res, err := e.MoveSection(nested.ID, Before)
	require.NoError(t, err)
	assert.False(t, res.Changed, "sections at other depths are not neighbors")
}

func TestMoveErrors(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.MoveSection(e.Root().ID, Before)
	assert.Equal(t, blockpress.CodeInvalidTarget, blockpress.CodeOf(err))

	_, err = e.MoveSection(e.Root().Content[0].ID, Before)
	assert.Equal(t, blockpress.CodeInvalidTarget, blockpress.CodeOf(err))

	_, err = e.MoveSectionAt(tree.Position(500), After)
	assert.True(t, errors.Is(err, ErrNodeNotFound))

	_, err = e.MoveSection(e.Root().Content[1].ID, "sideways")
	assert.Equal(t, blockpress.CodeInvalidInput, blockpress.CodeOf(err))
}

func TestDuplicateSection(t *testing.T) {
	e, s := newEngine(t)
	original := tree.Clone(s["callout"])

	res, err := e.DuplicateSection(s["callout"].ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	dup := e.Root().Content[4]
	assert.Same(t, s["callout"], e.Root().Content[3])
	assert.Equal(t, dup.ID, res.NodeID)
	assert.NotEqual(t, s["callout"].ID, dup.ID)
	assert.True(t, tree.Equal(s["callout"], dup))
	assert.True(t, tree.Equal(original, s["callout"]), "original must not be modified")

	dup.Props()["tone"] = "warning"
	dup.Content[0].Content[0].Text = "changed"
	assert.Equal(t, "info", s["callout"].Props()["tone"])
	assert.Equal(t, "inside", s["callout"].TextContent())
}

func TestDuplicateSectionAt(t *testing.T) {
	e, s := newEngine(t)
	pos := e.Index().Positions()[s["quote"].ID]

	res, err := e.DuplicateSectionAt(pos)
	require.NoError(t, err)
	assert.Equal(t, pos+1, res.Position)
	assert.Equal(t, []string{"hero", "callout", "quote", "quote"}, sectionKeys(e.Root()))
}

func TestDeleteThenInsertRestores(t *testing.T) {
	e, s := newEngine(t)
	before := tree.Clone(e.Root())
	saved := tree.Clone(s["callout"])

	res, err := e.Delete(s["callout"].ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NotContains(t, res.Positions, s["callout"].ID)
	assert.Equal(t, []string{"hero", "quote"}, sectionKeys(e.Root()))

	_, err = e.InsertNode(e.Root().ID, 3, saved)
	require.NoError(t, err)
	assert.True(t, tree.Equal(before, e.Root()))
}

func TestDeleteThenInsertSectionRestores(t *testing.T) {
	e, s := newEngine(t)
	before := tree.Clone(e.Root())

	_, err := e.Delete(s["hero"].ID)
	require.NoError(t, err)
	_, err = e.InsertSection(e.Root().ID, 1, "hero", map[string]any{"title": "Hi"})
	require.NoError(t, err)

	assert.True(t, tree.Equal(before, e.Root()))
}

func TestDeleteErrors(t *testing.T) {
	e, s := newEngine(t)

	_, err := e.Delete(e.Root().ID)
	assert.True(t, errors.Is(err, blockpress.ErrInvalidTarget))

	_, err = e.DeleteAt(tree.NoPosition)
	assert.True(t, errors.Is(err, ErrNodeNotFound))

	_, err = e.Delete(s["hero"].ID)
	require.NoError(t, err)
	_, err = e.Delete(s["hero"].ID)
	assert.True(t, errors.Is(err, ErrNodeNotFound), "deleted ids are no longer valid")
}

func TestUpdateProps(t *testing.T) {
	e, s := newEngine(t)

	res, err := e.UpdateProps(s["hero"].ID, map[string]any{"title": "Hi"})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = e.UpdateProps(s["hero"].ID, map[string]any{"title": "Hello", "count": 2})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, map[string]any{"title": "Hello", "count": 2.0}, s["hero"].Props())

	_, err = e.UpdateProps(e.Root().Content[0].ID, map[string]any{})
	assert.Equal(t, blockpress.CodeInvalidTarget, blockpress.CodeOf(err))
}

func TestNewRejectsInvalidTree(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	shared := tree.NewParagraph("x")
	_, err = New(tree.NewDoc(shared, shared), nil)
	assert.Equal(t, blockpress.CodeInvalidInput, blockpress.CodeOf(err))
}

func TestDeleteThenInsertInsideParagraph(t *testing.T) {
	root, err := tree.Parse([]byte(`{"type":"doc","content":[
		{"type":"paragraph","content":[
			{"type":"text","text":"See "},
			{"type":"section","attrs":{"componentKey":"hero","props":{"title":"Inline"}}}
		]}
	]}`))
	require.NoError(t, err)
	require.NoError(t, tree.Validate(root))
	before := tree.Clone(root)

	e, err := New(root, nil)
	require.NoError(t, err)
	para := root.Content[0]
	saved := tree.Clone(para.Content[1])

	_, err = e.Delete(para.Content[1].ID)
	require.NoError(t, err)
	require.Len(t, para.Content, 1)

	res, err := e.InsertNode(para.ID, 1, saved)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, tree.Equal(before, e.Root()), "delete then insert should restore the paragraph")

	_, err = e.InsertSection(para.ID, 0, "callout", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"callout", "hero"}, sectionKeys(e.Root()))
	assert.NoError(t, tree.Validate(e.Root()))
}
