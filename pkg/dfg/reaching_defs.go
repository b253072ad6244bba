package dfg

import (
	"container/list"
	"strings"

	"github.com/l3aro/go-taint-query/pkg/cfg"
)

// ReachingDefs is the reaching definitions solution for one function graph.
// Definitions whose line has no statement in the graph are placed at the top
// of the entry block, as are the implicit incoming definitions (parameters,
// globals) of every defined variable.
//
// A line may appear in several blocks, e.g. a one-line `if c: a = f(a)`. A
// definition sits at the statements on its line that assign its variable, and
// a use is reached if any statement on its line is.
type ReachingDefs struct {
	defs  []Def
	sites [][]site
	ids   map[defKey]int
	entry map[string]int

	lines map[int][]lineSite
	kills map[int]map[string][]int // block -> var -> indexes of killing defs
	in    []map[int]struct{}

	fallback *LinearReachingDefs
}

// NewReachingDefs solves reaching definitions for defs over g with the
// classic worklist algorithm.
func NewReachingDefs(g *cfg.Graph, defs []Def) *ReachingDefs {
	r := &ReachingDefs{
		ids:      make(map[defKey]int),
		entry:    make(map[string]int),
		lines:    make(map[int][]lineSite),
		kills:    make(map[int]map[string][]int),
		fallback: NewLinearReachingDefs(defs),
	}

	for _, b := range g.Blocks {
		for i, s := range b.Statements {
			r.lines[s.Line] = append(r.lines[s.Line], lineSite{site: site{block: b.ID, index: i}, text: s.Text})
		}
	}

	top := []site{{block: g.Entry, index: -1}}
	for _, d := range defs {
		key := defKey{d.Var, d.Line}
		if id, dup := r.ids[key]; dup {
			r.defs[id].Kills = r.defs[id].Kills || d.Kills
			continue
		}
		s := r.defSites(d)
		if len(s) == 0 {
			s = top
		}
		r.add(d, s)
	}
	for _, d := range defs {
		if _, ok := r.entry[d.Var]; ok {
			continue
		}
		if id, ok := r.ids[defKey{d.Var, 0}]; ok {
			r.entry[d.Var] = id
			continue
		}
		r.entry[d.Var] = r.add(Def{Var: d.Var}, top)
	}

	for id, d := range r.defs {
		if !d.Kills {
			continue
		}
		for _, s := range r.sites[id] {
			if s.index < 0 {
				continue
			}
			if r.kills[s.block] == nil {
				r.kills[s.block] = make(map[string][]int)
			}
			r.kills[s.block][d.Var] = append(r.kills[s.block][d.Var], s.index)
		}
	}

	r.solve(g)
	return r
}

func (r *ReachingDefs) add(d Def, s []site) int {
	id := len(r.defs)
	r.defs = append(r.defs, d)
	r.sites = append(r.sites, s)
	r.ids[defKey{d.Var, d.Line}] = id
	return id
}

// defSites returns the statements on d's line that assign d.Var, or the last
// statement on the line when none visibly does.
func (r *ReachingDefs) defSites(d Def) []site {
	all := r.lines[d.Line]
	if len(all) == 0 {
		return nil
	}
	var out []site
	for _, ls := range all {
		if assigns(ls.text, d.Var) {
			out = append(out, ls.site)
		}
	}
	if len(out) == 0 {
		out = append(out, all[len(all)-1].site)
	}
	return out
}

var augmented = []string{"+=", "-=", "*=", "/=", "//=", "%=", "**=", "&=", "|=", "^=",
	"<<=", ">>=", ">>>=", "??=", "||=", "&&=", ":="}

// assigns reports whether text assigns to v: v as a whole name followed by
// =, or by an augmented assignment operator.
func assigns(text, v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], v)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(v)
		i = end
		if start > 0 && isNameByte(text[start-1]) || end < len(text) && isNameByte(text[end]) {
			continue
		}
		rest := strings.TrimLeft(text[end:], " \t")
		if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") && !strings.HasPrefix(rest, "=>") {
			return true
		}
		for _, op := range augmented {
			if strings.HasPrefix(rest, op) {
				return true
			}
		}
	}
	return false
}

func isNameByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func (r *ReachingDefs) solve(g *cfg.Graph) {
	n := len(g.Blocks)

	// gen[b] holds the definitions in b not killed later in b.
	gen := make([][]int, n)
	for id, d := range r.defs {
		for _, s := range r.sites[id] {
			if !r.killedBetween(d.Var, s.block, s.index, len(g.Blocks[s.block].Statements)) {
				gen[s.block] = append(gen[s.block], id)
			}
		}
	}

	r.in = make([]map[int]struct{}, n)
	out := make([]map[int]struct{}, n)
	for i := 0; i < n; i++ {
		r.in[i] = make(map[int]struct{})
		out[i] = make(map[int]struct{})
	}

	worklist := list.New()
	queued := make([]bool, n)
	for i := 0; i < n; i++ {
		worklist.PushBack(i)
		queued[i] = true
	}

	for worklist.Len() > 0 {
		b := worklist.Remove(worklist.Front()).(int)
		queued[b] = false

		in := make(map[int]struct{})
		for _, p := range g.Blocks[b].Predecessors {
			for id := range out[p] {
				in[id] = struct{}{}
			}
		}
		r.in[b] = in

		// out[b] = gen[b] U (in[b] - kill[b])
		next := make(map[int]struct{}, len(in)+len(gen[b]))
		for _, id := range gen[b] {
			next[id] = struct{}{}
		}
		for id := range in {
			if _, killed := r.kills[b][r.defs[id].Var]; !killed {
				next[id] = struct{}{}
			}
		}

		if !setsEqual(out[b], next) {
			out[b] = next
			for _, s := range g.Blocks[b].Successors {
				if !queued[s] {
					worklist.PushBack(s)
					queued[s] = true
				}
			}
		}
	}
}

// killedBetween reports whether block b holds a killing definition of v
// strictly between statement indexes lo and hi.
func (r *ReachingDefs) killedBetween(v string, b, lo, hi int) bool {
	for _, i := range r.kills[b][v] {
		if i > lo && i < hi {
			return true
		}
	}
	return false
}

// Reaches implements Reacher. A use line with no statement in the graph is
// decided by line order. An unknown definition is treated as the incoming
// definition of v.
func (r *ReachingDefs) Reaches(v string, defLine, useLine int) bool {
	uses, ok := r.lines[useLine]
	if !ok {
		return r.fallback.Reaches(v, defLine, useLine)
	}

	id, ok := r.ids[defKey{v, defLine}]
	if !ok {
		if id, ok = r.entry[v]; !ok {
			return true
		}
	}

	for _, u := range uses {
		if r.reachesSite(id, v, u.site) {
			return true
		}
	}
	return false
}

func (r *ReachingDefs) reachesSite(id int, v string, u site) bool {
	last := -2
	for _, d := range r.sites[id] {
		if d.block == u.block && d.index < u.index && d.index > last {
			last = d.index
		}
	}
	if last > -2 {
		// Any kill in between also cuts the path entering the block.
		return !r.killedBetween(v, u.block, last, u.index)
	}
	if _, ok := r.in[u.block][id]; !ok {
		return false
	}
	return !r.killedBetween(v, u.block, -1, u.index)
}

// Defs returns the definitions known to the analysis, implicit incoming
// definitions included (they have line 0).
func (r *ReachingDefs) Defs() []Def {
	out := make([]Def, len(r.defs))
	copy(out, r.defs)
	return out
}

func setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
