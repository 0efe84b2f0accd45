package search

import (
	"math"

	"github.com/ahrav/go-quorum/internal/domain"
)

// noParent marks the root's parent index.
const noParent = -1

// node is one entry in a search tree arena. Parent references are plain
// indices (non-owning back-references for backtracking); children are an
// owned index list. Value only changes through additive backpropagation.
type node struct {
	cand     domain.Candidate
	parent   int
	children []int
	visits   int
	value    float64
	depth    int
	terminal bool
}

// arena holds every node of one search run, addressed by integer index.
// It is exclusively owned by the single goroutine driving the run and
// destroyed with it; concurrent searches use independent arenas.
type arena struct {
	nodes []node
}

func newArena() *arena {
	return &arena{nodes: make([]node, 0, 64)}
}

// addRoot inserts the root node and returns its index (always 0).
func (a *arena) addRoot(cand domain.Candidate) int {
	a.nodes = append(a.nodes, node{cand: cand, parent: noParent})
	return 0
}

// addChild inserts a child under parent, maintaining depth = parent+1,
// and returns its index.
func (a *arena) addChild(parent int, cand domain.Candidate, terminal bool) int {
	id := len(a.nodes)
	a.nodes = append(a.nodes, node{
		cand:     cand,
		parent:   parent,
		depth:    a.nodes[parent].depth + 1,
		terminal: terminal,
	})
	a.nodes[parent].children = append(a.nodes[parent].children, id)
	return id
}

func (a *arena) get(id int) *node { return &a.nodes[id] }

func (a *arena) len() int { return len(a.nodes) }

// backpropagate adds value to the node and every ancestor and increments
// their visit counts. This is the only mutation path for node value.
func (a *arena) backpropagate(id int, value float64) {
	for cur := id; cur != noParent; cur = a.nodes[cur].parent {
		a.nodes[cur].visits++
		a.nodes[cur].value += value
	}
}

// ucb1 computes the UCB1 priority of child under parent. Unvisited
// children have infinite priority so they are expanded first.
func (a *arena) ucb1(parent, child int, c float64) float64 {
	n := &a.nodes[child]
	if n.visits == 0 {
		return math.Inf(1)
	}
	p := &a.nodes[parent]
	exploit := n.value / float64(n.visits)
	explore := c * math.Sqrt(math.Log(float64(p.visits))/float64(n.visits))
	return exploit + explore
}

// mean returns the node's average backpropagated value, or 0 when it has
// never been visited.
func (a *arena) mean(id int) float64 {
	n := &a.nodes[id]
	if n.visits == 0 {
		return 0
	}
	return n.value / float64(n.visits)
}
