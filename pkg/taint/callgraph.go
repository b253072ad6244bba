package taint

import (
	"sort"

	"github.com/yourbasic/graph"

	"github.com/l3aro/go-taint-query/pkg/facts"
)

// CallGraphComponents partitions the scopes of s into the strongly connected
// components of the call graph. Calls are resolved by short name, so an
// ambiguous call links the caller to every candidate. The order is
// deterministic for a given store; scopes inside a component are sorted.
func CallGraphComponents(s *facts.Store) [][]facts.Scope {
	scopes := s.Scopes()
	if len(scopes) == 0 {
		return nil
	}
	ids := make(map[facts.Scope]int, len(scopes))
	for i, sc := range scopes {
		ids[sc] = i
	}

	g := graph.New(len(scopes))
	link := func(from facts.Scope, callee string) {
		src, ok := ids[from]
		if !ok {
			return
		}
		for _, sym := range s.FunctionsNamed(callee) {
			if dst, ok := ids[s.ScopeOf(sym)]; ok {
				g.Add(src, dst)
			}
		}
	}

	for _, c := range s.CallArgs() {
		link(facts.Scope{File: c.File, Function: c.Caller}, c.Callee)
	}
	for _, a := range s.Assignments() {
		for _, call := range facts.Calls(a.Expr) {
			link(facts.Scope{File: a.File, Function: a.Function}, call.Callee)
		}
	}
	for _, r := range s.Returns() {
		for _, call := range facts.Calls(r.Expr) {
			link(facts.Scope{File: r.File, Function: r.Function}, call.Callee)
		}
	}

	components := graph.StrongComponents(graph.Sort(g))
	out := make([][]facts.Scope, 0, len(components))
	for _, comp := range components {
		sort.Ints(comp)
		group := make([]facts.Scope, len(comp))
		for i, v := range comp {
			group[i] = scopes[v]
		}
		out = append(out, group)
	}
	return out
}
