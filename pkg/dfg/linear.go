package dfg

import "sort"

// LinearReachingDefs decides reachability by line order alone. It is used
// when no graph is available for a function: a definition reaches every
// later line unless a killing definition of the same variable sits between.
type LinearReachingDefs struct {
	kills map[string][]int
}

// NewLinearReachingDefs creates a line-order reacher over defs.
func NewLinearReachingDefs(defs []Def) *LinearReachingDefs {
	kills := make(map[string][]int)
	for _, d := range defs {
		if d.Kills {
			kills[d.Var] = append(kills[d.Var], d.Line)
		}
	}
	for v := range kills {
		sort.Ints(kills[v])
	}
	return &LinearReachingDefs{kills: kills}
}

// Reaches implements Reacher.
func (r *LinearReachingDefs) Reaches(v string, defLine, useLine int) bool {
	if defLine >= useLine {
		return false
	}
	lines := r.kills[v]
	i := sort.SearchInts(lines, defLine+1)
	return i == len(lines) || lines[i] >= useLine
}
