package cfg

import (
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"
)

// Unreachable returns the ids of blocks that cannot be reached from entry,
// including blocks whose only predecessors are themselves unreachable. The
// builder does not remove them.
func (g *Graph) Unreachable() []int {
	var out []int
	for id, ok := range g.Reachable() {
		if !ok {
			out = append(out, id)
		}
	}
	return out
}

// Reachable reports, per block id, whether the block can be reached from
// entry by following edges of any condition.
func (g *Graph) Reachable() []bool {
	seen := make([]bool, len(g.Blocks))
	if len(g.Blocks) == 0 {
		return seen
	}
	stack := []int{g.Entry}
	seen[g.Entry] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Blocks[id].Successors {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// BlockForLine returns the first block holding a statement on line, and the
// statement's index inside that block.
func (g *Graph) BlockForLine(line int) (block, index int, ok bool) {
	for _, b := range g.Blocks {
		for i, s := range b.Statements {
			if s.Line == line {
				return b.ID, i, true
			}
		}
	}
	return 0, 0, false
}

// Complexity returns the cyclomatic complexity E - N + 2.
func (g *Graph) Complexity() int {
	c := len(g.Edges) - len(g.Blocks) + 2
	if c < 1 {
		return 1
	}
	return c
}

// PostDominators returns the immediate post-dominator of every block that
// can reach exit. Exit itself and blocks that never reach it are absent.
func (g *Graph) PostDominators() map[int]int {
	rev := simple.NewDirectedGraph()
	for _, b := range g.Blocks {
		rev.AddNode(simple.Node(b.ID))
	}
	for _, e := range g.Edges {
		if e.SourceID == e.TargetID {
			continue
		}
		rev.SetEdge(rev.NewEdge(simple.Node(e.TargetID), simple.Node(e.SourceID)))
	}

	tree := flow.Dominators(simple.Node(g.Exit), rev)
	ipdom := make(map[int]int, len(g.Blocks))
	for _, b := range g.Blocks {
		if b.ID == g.Exit {
			continue
		}
		if d := tree.DominatorOf(int64(b.ID)); d != nil {
			ipdom[b.ID] = int(d.ID())
		}
	}
	return ipdom
}

// PostDominates reports whether every path from a to exit passes through b.
// A block post-dominates itself.
func (g *Graph) PostDominates(b, a int) bool {
	return postDominates(g.PostDominators(), g.Exit, b, a)
}

func postDominates(ipdom map[int]int, exit, b, a int) bool {
	for cur := a; ; {
		if cur == b {
			return true
		}
		if cur == exit {
			return false
		}
		next, ok := ipdom[cur]
		if !ok {
			return false
		}
		cur = next
	}
}
