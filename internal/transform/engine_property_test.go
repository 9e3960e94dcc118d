//go:build property

package transform

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/livetemplate/blockpress/internal/tree"
)

func randomDoc(seed int64) *tree.Node {
	rng := rand.New(rand.NewSource(seed))
	root := tree.NewDoc()
	for i := 2 + rng.Intn(6); i > 0; i-- {
		if rng.Intn(3) == 0 {
			root.Content = append(root.Content, tree.NewParagraph(fmt.Sprintf("p%d", rng.Intn(9))))
			continue
		}
		var children []*tree.Node
		if rng.Intn(2) == 0 {
			children = append(children, tree.NewParagraph("inner"))
		}
		root.Content = append(root.Content, tree.NewSection(
			fmt.Sprintf("key%d", rng.Intn(3)),
			map[string]any{"n": rng.Intn(10)},
			children...,
		))
	}
	return root
}

func TestEngineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("delete then insert at the same place restores the tree", prop.ForAll(
		func(seed int64, pick int) bool {
			root := randomDoc(seed)
			before := tree.Clone(root)
			e, err := New(root, nil)
			if err != nil {
				return false
			}
			i := pick % len(root.Content)
			saved := tree.Clone(root.Content[i])
			if _, err := e.Delete(root.Content[i].ID); err != nil {
				return false
			}
			if _, err := e.InsertNode(root.ID, i, saved); err != nil {
				return false
			}
			return tree.Equal(before, e.Root())
		},
		gen.Int64(), gen.IntRange(0, 100),
	))

	properties.Property("duplicate yields an equal, independent copy", prop.ForAll(
		func(seed int64, pick int) bool {
			root := randomDoc(seed)
			e, err := New(root, nil)
			if err != nil {
				return false
			}
			i := pick % len(root.Content)
			original := root.Content[i]
			snapshot := tree.Clone(original)
			res, err := e.DuplicateSection(original.ID)
			if err != nil || !res.Changed {
				return false
			}
			dup := root.Content[i+1]
			return dup.ID == res.NodeID && dup.ID != original.ID &&
				tree.Equal(original, dup) && tree.Equal(snapshot, original)
		},
		gen.Int64(), gen.IntRange(0, 100),
	))

	properties.Property("move never changes the multiset of sections", prop.ForAll(
		func(seed int64, pick int, after bool) bool {
			root := randomDoc(seed)
			before := tree.Size(root)
			e, err := New(root, nil)
			if err != nil {
				return false
			}
			var ids []tree.ID
			for n := range tree.Sections(root) {
				ids = append(ids, n.ID)
			}
			if len(ids) == 0 {
				return true
			}
			dir := Before
			if after {
				dir = After
			}
			res, err := e.MoveSection(ids[pick%len(ids)], dir)
			if err != nil {
				return false
			}
			return tree.Size(root) == before && len(res.Positions) == before && tree.Validate(root) == nil
		},
		gen.Int64(), gen.IntRange(0, 100), gen.Bool(),
	))

	properties.TestingRun(t)
}
