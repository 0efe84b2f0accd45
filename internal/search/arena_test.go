package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func TestArena_AddChildMaintainsDepth(t *testing.T) {
	tree := newArena()
	root := tree.addRoot(domain.Candidate{Content: ""})
	child := tree.addChild(root, domain.Candidate{Content: "a"}, false)
	grandchild := tree.addChild(child, domain.Candidate{Content: "ab"}, true)

	assert.Equal(t, 0, tree.get(root).depth, "root depth")
	assert.Equal(t, 1, tree.get(child).depth, "child depth")
	assert.Equal(t, 2, tree.get(grandchild).depth, "grandchild depth")
	assert.Equal(t, noParent, tree.get(root).parent, "root has no parent")
	assert.Equal(t, []int{child}, tree.get(root).children, "root child list")
	assert.True(t, tree.get(grandchild).terminal, "terminal flag lost")
	assert.Equal(t, 3, tree.len(), "node count mismatch")
}

func TestArena_Backpropagate(t *testing.T) {
	tree := newArena()
	root := tree.addRoot(domain.Candidate{})
	a := tree.addChild(root, domain.Candidate{}, false)
	b := tree.addChild(a, domain.Candidate{}, true)
	sibling := tree.addChild(root, domain.Candidate{}, true)

	tree.backpropagate(b, 0.8)
	tree.backpropagate(b, 0.4)
	tree.backpropagate(sibling, 1.0)

	assert.Equal(t, 2, tree.get(b).visits, "leaf visit count")
	assert.Equal(t, 2, tree.get(a).visits, "inner visit count")
	assert.Equal(t, 3, tree.get(root).visits, "root visits should sum over both branches")
	assert.Equal(t, 1, tree.get(sibling).visits, "sibling visit count")

	// Root visits always equal the sum of its children's visits.
	sum := 0
	for _, id := range tree.get(root).children {
		sum += tree.get(id).visits
	}
	assert.Equal(t, tree.get(root).visits, sum, "visit invariant broken")

	assert.InDelta(t, 0.6, tree.mean(b), 1e-9, "leaf mean")
	assert.InDelta(t, (0.8+0.4+1.0)/3.0, tree.mean(root), 1e-9, "root mean")
}

func TestArena_Mean_Unvisited(t *testing.T) {
	tree := newArena()
	root := tree.addRoot(domain.Candidate{})
	assert.Zero(t, tree.mean(root), "unvisited node has mean 0")
}

func TestArena_UCB1(t *testing.T) {
	tree := newArena()
	root := tree.addRoot(domain.Candidate{})
	visited := tree.addChild(root, domain.Candidate{}, false)
	fresh := tree.addChild(root, domain.Candidate{}, false)

	tree.backpropagate(visited, 0.5)

	assert.True(t, math.IsInf(tree.ucb1(root, fresh, 1.41), 1),
		"unvisited child must have infinite priority")

	got := tree.ucb1(root, visited, 1.41)
	want := 0.5 + 1.41*math.Sqrt(math.Log(1)/1)
	require.False(t, math.IsInf(got, 0), "visited child priority must be finite")
	assert.InDelta(t, want, got, 1e-9, "UCB1 value mismatch")

	// More parent visits raise the exploration term of a stale child.
	tree.backpropagate(fresh, 0.1)
	tree.backpropagate(fresh, 0.1)
	later := tree.ucb1(root, visited, 1.41)
	assert.Greater(t, later, got, "exploration term should grow with parent visits")
}
