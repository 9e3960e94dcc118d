//go:build property

package tree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomTree builds a well-formed tree from a seed.
func randomTree(seed int64, maxNodes int) *Node {
	rng := rand.New(rand.NewSource(seed))
	budget := maxNodes
	containers := []NodeType{TypeParagraph, TypeHeading, TypeList, TypeListItem, TypeBlockquote, TypeSection}

	var build func(depth int) *Node
	build = func(depth int) *Node {
		budget--
		if depth > 4 || budget <= 0 || rng.Intn(3) == 0 {
			if rng.Intn(6) == 0 {
				return New(TypeHorizontalRule)
			}
			var marks []Mark
			if rng.Intn(2) == 0 {
				marks = append(marks, Mark{Type: MarkBold})
			}
			return NewText(fmt.Sprintf("t%d", rng.Intn(100)), marks...)
		}
		t := containers[rng.Intn(len(containers))]
		var n *Node
		if t == TypeSection {
			props := map[string]any{
				"title": fmt.Sprintf("s%d", rng.Intn(10)),
				"n":     rng.Intn(5),
				"flags": []any{true, false},
			}
			if rng.Intn(4) == 0 {
				props = nil
			}
			n = NewSection(fmt.Sprintf("key%d", rng.Intn(4)), props)
		} else {
			n = New(t)
			if t == TypeHeading {
				n.SetAttr("level", 1+rng.Intn(6))
			}
		}
		for i := rng.Intn(4); i > 0; i-- {
			n.Content = append(n.Content, build(depth+1))
		}
		return n
	}

	root := NewDoc()
	for i := 1 + rng.Intn(5); i > 0; i-- {
		root.Content = append(root.Content, build(1))
	}
	return root
}

func TestTreeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("parse(serialize(T)) equals T", prop.ForAll(
		func(seed int64) bool {
			original := randomTree(seed, 60)
			data, err := Serialize(original)
			if err != nil {
				return false
			}
			parsed, err := Parse(data)
			if err != nil {
				return false
			}
			return Equal(original, parsed) && Validate(parsed) == nil
		},
		gen.Int64(),
	))

	properties.Property("clone is equal and independent", prop.ForAll(
		func(seed int64) bool {
			original := randomTree(seed, 60)
			clone := Clone(original)
			if !Equal(original, clone) {
				return false
			}
			for n := range Sections(clone) {
				n.Props()["mutated"] = true
			}
			for n := range Sections(original) {
				if _, ok := n.Props()["mutated"]; ok {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.Property("index positions agree with FindAll", prop.ForAll(
		func(seed int64) bool {
			root := randomTree(seed, 60)
			idx := BuildIndex(root)
			for n, pos := range FindAll(root, nil) {
				e, ok := idx.Lookup(n.ID)
				if !ok || e.Position != pos {
					return false
				}
			}
			return idx.Len() == Size(root)
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
