package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasEdge(g *Graph, from, to int, cond EdgeCondition) bool {
	for _, e := range g.Edges {
		if e.SourceID == from && e.TargetID == to && e.Condition == cond {
			return true
		}
	}
	return false
}

func edgeTarget(t *testing.T, g *Graph, from int, cond EdgeCondition) int {
	t.Helper()
	for _, e := range g.EdgesFrom(from) {
		if e.Condition == cond {
			return e.TargetID
		}
	}
	require.Failf(t, "edge not found", "no %s edge from block %d", cond, from)
	return -1
}

func blockAt(t *testing.T, g *Graph, line int) int {
	t.Helper()
	id, _, ok := g.BlockForLine(line)
	require.True(t, ok, "no block holds line %d", line)
	return id
}

// assertWellFormed checks the structural invariants every built graph has.
func assertWellFormed(t *testing.T, g *Graph) {
	t.Helper()
	assert.Len(t, g.BlocksOfKind(BlockEntry), 1, "entry blocks")
	assert.Len(t, g.BlocksOfKind(BlockExit), 1, "exit blocks")
	assert.Equal(t, BlockEntry, g.Blocks[g.Entry].Kind)
	assert.Equal(t, BlockExit, g.Blocks[g.Exit].Kind)

	dead := make(map[int]bool)
	for _, id := range g.Unreachable() {
		dead[id] = true
	}
	for i, b := range g.Blocks {
		assert.Equal(t, i, b.ID)
		if b.ID != g.Entry && !dead[b.ID] {
			assert.NotEmpty(t, b.Predecessors, "block %d (%s) has no predecessor", b.ID, b.Kind)
		}
	}
	for _, e := range g.Edges {
		assert.Contains(t, g.Blocks[e.SourceID].Successors, e.TargetID)
		assert.Contains(t, g.Blocks[e.TargetID].Predecessors, e.SourceID)
	}
}

func TestBuildEmptyFunction(t *testing.T) {
	g := Build("noop", nil)

	assert.Equal(t, 2, g.NumBlocks())
	require.Len(t, g.Edges, 1)
	assert.Equal(t, ControlEdge{SourceID: g.Entry, TargetID: g.Exit, Condition: EdgeNormal}, g.Edges[0])
	assertWellFormed(t, g)
}

func TestBuildSequential(t *testing.T) {
	g := Build("seq", []Statement{
		&Simple{Line: 1, Text: "a = 1"},
		&Simple{Line: 2, Text: "b = a"},
	})

	entry := g.Blocks[g.Entry]
	require.Len(t, entry.Statements, 2)
	assert.Equal(t, StatementRef{Line: 2, Text: "b = a"}, entry.Statements[1])
	assert.True(t, hasEdge(g, g.Entry, g.Exit, EdgeNormal))
}

func TestBuildIfReturnGuard(t *testing.T) {
	// if not path: return False
	// data = read(path)
	// return data
	g := Build("load", []Statement{
		&If{Line: 2, Test: "not path", Body: []Statement{&Return{Line: 3, Value: "False"}}},
		&Simple{Line: 4, Text: "data = read(path)"},
		&Return{Line: 5, Value: "data"},
	})
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	cond := blockAt(t, g, 2)
	ret := blockAt(t, g, 3)
	assert.Equal(t, BlockBranchCondition, g.Blocks[cond].Kind)
	assert.Equal(t, []ControlEdge{{SourceID: ret, TargetID: g.Exit, Condition: EdgeNormal}}, g.EdgesFrom(ret))

	merge := edgeTarget(t, g, cond, EdgeFalse)
	assert.Equal(t, BlockMerge, g.Blocks[merge].Kind)
	assert.Equal(t, merge, blockAt(t, g, 4))

	holders := 0
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if s.Text == "data = read(path)" {
				holders++
			}
		}
	}
	assert.Equal(t, 1, holders)
	assert.Equal(t, 2, g.Complexity())
}

func TestBuildIfWithoutElse(t *testing.T) {
	g := Build("f", []Statement{
		&If{Line: 1, Test: "c", Body: []Statement{
			&Simple{Line: 2, Text: "x = 1"},
			&If{Line: 3, Test: "d", Body: []Statement{&Simple{Line: 4, Text: "y = 2"}}},
		}},
		&Simple{Line: 5, Text: "z = 3"},
	})
	assertWellFormed(t, g)

	cond := blockAt(t, g, 1)
	out := g.EdgesFrom(cond)
	require.Len(t, out, 2)
	assert.Equal(t, EdgeTrue, out[0].Condition)
	assert.Equal(t, EdgeFalse, out[1].Condition)

	// follow the True branch to its end: the nested if's merge
	inner := blockAt(t, g, 3)
	innerMerge := edgeTarget(t, g, inner, EdgeFalse)
	outerMerge := edgeTarget(t, g, innerMerge, EdgeNormal)
	assert.Equal(t, out[1].TargetID, outerMerge)
	assert.Equal(t, outerMerge, blockAt(t, g, 5))
}

func TestBuildIfElse(t *testing.T) {
	g := Build("f", []Statement{
		&If{Line: 1, Test: "a", Body: []Statement{&Simple{Line: 2, Text: "x = 1"}},
			Else: []Statement{&Simple{Line: 4, Text: "x = 2"}}},
	})
	assertWellFormed(t, g)

	cond := blockAt(t, g, 1)
	then := edgeTarget(t, g, cond, EdgeTrue)
	els := edgeTarget(t, g, cond, EdgeFalse)
	assert.Equal(t, BlockIfBody, g.Blocks[then].Kind)
	assert.Equal(t, BlockElseBody, g.Blocks[els].Kind)
	assert.Equal(t, edgeTarget(t, g, then, EdgeNormal), edgeTarget(t, g, els, EdgeNormal))
}

func TestBuildBothBranchesReturn(t *testing.T) {
	g := Build("f", []Statement{
		&If{Line: 1, Test: "a", Body: []Statement{&Return{Line: 2, Value: "1"}},
			Else: []Statement{&Return{Line: 4, Value: "2"}}},
		&Simple{Line: 5, Text: "dead()"},
	})
	assertWellFormed(t, g)

	dead := blockAt(t, g, 5)
	assert.Equal(t, BlockMerge, g.Blocks[dead].Kind)
	assert.Equal(t, []int{dead}, g.Unreachable())
	assert.False(t, g.Reachable()[dead])
}

func TestBuildContinueTargetsHeader(t *testing.T) {
	// for i in range(10):
	//     if i % 4 == 0:
	//         continue
	g := Build("f", []Statement{
		&Loop{Line: 1, Kind: LoopFor, Header: "for i in range(10)", Body: []Statement{
			&If{Line: 2, Test: "i % 4 == 0", Body: []Statement{&Continue{Line: 3}}},
		}},
	})
	assertWellFormed(t, g)

	header := blockAt(t, g, 1)
	exit := edgeTarget(t, g, header, EdgeExitLoop)
	cont := blockAt(t, g, 3)

	assert.Equal(t, BlockLoopHeader, g.Blocks[header].Kind)
	assert.Equal(t, BlockLoopExit, g.Blocks[exit].Kind)
	assert.True(t, hasEdge(g, cont, header, EdgeContinue))
	assert.NotContains(t, g.Blocks[cont].Successors, exit)

	body := edgeTarget(t, g, header, EdgeEnterLoop)
	assert.Equal(t, BlockLoopBody, g.Blocks[body].Kind)

	// the if's merge closes the body with a back edge
	merge := edgeTarget(t, g, blockAt(t, g, 2), EdgeFalse)
	assert.True(t, hasEdge(g, merge, header, EdgeContinueLoop))
	assert.True(t, hasEdge(g, exit, g.Exit, EdgeNormal))
}

func TestBuildNestedLoopsResolveInnermost(t *testing.T) {
	g := Build("f", []Statement{
		&Loop{Line: 1, Kind: LoopWhile, Header: "while outer", Body: []Statement{
			&Loop{Line: 2, Kind: LoopFor, Header: "for x in xs", Body: []Statement{
				&If{Line: 3, Test: "x", Body: []Statement{&Break{Line: 4}}},
				&Continue{Line: 5},
			}},
			&Break{Line: 6},
		}},
	})
	assertWellFormed(t, g)

	outer := blockAt(t, g, 1)
	inner := blockAt(t, g, 2)
	outerExit := edgeTarget(t, g, outer, EdgeFalse)
	innerExit := edgeTarget(t, g, inner, EdgeExitLoop)
	require.NotEqual(t, outerExit, innerExit)

	assert.True(t, hasEdge(g, blockAt(t, g, 4), innerExit, EdgeBreak))
	assert.True(t, hasEdge(g, blockAt(t, g, 5), inner, EdgeContinue))
	assert.True(t, hasEdge(g, blockAt(t, g, 6), outerExit, EdgeBreak))
	assert.Equal(t, innerExit, blockAt(t, g, 6))
	assert.True(t, hasEdge(g, outer, edgeTarget(t, g, outer, EdgeTrue), EdgeTrue))
}

func TestBuildDanglingBreak(t *testing.T) {
	g := Build("f", []Statement{
		&Break{Line: 1},
		&Continue{Line: 2},
		&Simple{Line: 3, Text: "x = 1"},
	})
	assertWellFormed(t, g)

	for _, e := range g.Edges {
		assert.NotEqual(t, EdgeBreak, e.Condition)
		assert.NotEqual(t, EdgeContinue, e.Condition)
	}
	assert.Equal(t, g.Entry, blockAt(t, g, 3))
}

func TestBuildLoopElse(t *testing.T) {
	g := Build("find", []Statement{
		&Loop{Line: 1, Kind: LoopFor, Header: "for x in xs", Body: []Statement{
			&If{Line: 2, Test: "x == want", Body: []Statement{&Break{Line: 3}}},
		}, Else: []Statement{&Simple{Line: 5, Text: "not_found()"}}},
		&Simple{Line: 6, Text: "done()"},
	})
	assertWellFormed(t, g)

	header := blockAt(t, g, 1)
	els := blockAt(t, g, 5)
	exit := blockAt(t, g, 6)
	assert.Equal(t, BlockElseBody, g.Blocks[els].Kind)
	assert.Equal(t, BlockLoopExit, g.Blocks[exit].Kind)
	assert.True(t, hasEdge(g, header, els, EdgeExitLoop))
	assert.True(t, hasEdge(g, els, exit, EdgeNormal))
	assert.True(t, hasEdge(g, blockAt(t, g, 3), exit, EdgeBreak))
}

func TestBuildWhile(t *testing.T) {
	g := Build("countdown", []Statement{
		&Loop{Line: 1, Kind: LoopWhile, Header: "while n > 0", Body: []Statement{&Simple{Line: 2, Text: "n -= 1"}}},
	})
	assertWellFormed(t, g)

	header := blockAt(t, g, 1)
	body := edgeTarget(t, g, header, EdgeTrue)
	assert.Equal(t, body, blockAt(t, g, 2))
	assert.True(t, hasEdge(g, body, header, EdgeContinueLoop))
	assert.Equal(t, BlockLoopExit, g.Blocks[edgeTarget(t, g, header, EdgeFalse)].Kind)
}

func TestBuildTryFinallyPostDominates(t *testing.T) {
	// try: risky()
	// except E: handle()
	// finally: cleanup()
	g := Build("f", []Statement{
		&Try{
			Line:     1,
			Body:     []Statement{&Simple{Line: 2, Text: "risky()"}},
			Handlers: []Handler{{Line: 3, Clause: "except E", Body: []Statement{&Simple{Line: 4, Text: "handle()"}}}},
			Finally:  []Statement{&Simple{Line: 6, Text: "cleanup()"}},
		},
	})
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	try := blockAt(t, g, 2)
	handler := blockAt(t, g, 3)
	fin := blockAt(t, g, 6)
	assert.Equal(t, BlockTryBody, g.Blocks[try].Kind)
	assert.Equal(t, BlockHandler, g.Blocks[handler].Kind)
	assert.Equal(t, BlockFinally, g.Blocks[fin].Kind)
	assert.Equal(t, handler, blockAt(t, g, 4))
	assert.True(t, hasEdge(g, try, handler, EdgeException))

	for _, b := range g.Blocks {
		if b.ID == g.Exit {
			continue
		}
		assert.True(t, g.PostDominates(fin, b.ID), "finally does not post-dominate block %d (%s)", b.ID, b.Kind)
	}
	assert.False(t, g.PostDominates(handler, try))
}

func TestBuildTryElseAndRaise(t *testing.T) {
	g := Build("f", []Statement{
		&Try{
			Line: 1,
			Body: []Statement{
				&If{Line: 2, Test: "bad", Body: []Statement{&Raise{Line: 3, Text: "raise ValueError()"}}},
			},
			Handlers: []Handler{{Line: 4, Clause: "except ValueError", Body: []Statement{&Simple{Line: 5, Text: "log()"}}}},
			Else:     []Statement{&Simple{Line: 7, Text: "ok()"}},
		},
		&Simple{Line: 8, Text: "after()"},
	})
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	raise := blockAt(t, g, 3)
	handler := blockAt(t, g, 4)
	els := blockAt(t, g, 7)
	merge := blockAt(t, g, 8)

	assert.Equal(t, []ControlEdge{{SourceID: raise, TargetID: handler, Condition: EdgeException}}, g.EdgesFrom(raise))
	assert.Equal(t, BlockElseBody, g.Blocks[els].Kind)
	assert.Equal(t, BlockMerge, g.Blocks[merge].Kind)
	assert.ElementsMatch(t, []int{handler, els}, g.Blocks[merge].Predecessors)
}

func TestBuildReturnsPassThroughFinally(t *testing.T) {
	// try: return 1
	// except E: return 2
	// finally: cleanup()
	g := Build("f", []Statement{
		&Try{
			Line:     1,
			Body:     []Statement{&Return{Line: 2, Value: "1"}},
			Handlers: []Handler{{Line: 3, Clause: "except E", Body: []Statement{&Return{Line: 4, Value: "2"}}}},
			Finally:  []Statement{&Simple{Line: 6, Text: "cleanup()"}},
		},
		&Simple{Line: 7, Text: "never()"},
	})
	assertWellFormed(t, g)

	try := blockAt(t, g, 2)
	handler := blockAt(t, g, 3)
	fin := blockAt(t, g, 6)
	assert.Equal(t, BlockFinally, g.Blocks[fin].Kind)
	assert.ElementsMatch(t, []int{try, handler}, g.Blocks[fin].Predecessors)
	assert.True(t, hasEdge(g, fin, g.Exit, EdgeNormal))
	assert.False(t, hasEdge(g, try, g.Exit, EdgeNormal), "return does not bypass finally")
	assert.True(t, g.Reachable()[fin])

	dead := g.Unreachable()
	require.Len(t, dead, 1)
	assert.Equal(t, BlockMerge, g.Blocks[dead[0]].Kind)
	assert.True(t, g.PostDominates(fin, try))
	assert.True(t, g.PostDominates(fin, handler))

	_, _, ok := g.BlockForLine(7)
	assert.False(t, ok)
}

func TestBuildFinallyResumesNormalFlow(t *testing.T) {
	g := Build("f", []Statement{
		&Try{
			Line:     1,
			Body:     []Statement{&Return{Line: 2, Value: "cached"}},
			Handlers: []Handler{{Line: 3, Clause: "except KeyError", Body: []Statement{&Simple{Line: 4, Text: "miss()"}}}},
			Finally:  []Statement{&Simple{Line: 6, Text: "unlock()"}},
		},
		&Simple{Line: 7, Text: "load()"},
	})
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	try := blockAt(t, g, 2)
	handler := blockAt(t, g, 4)
	fin := blockAt(t, g, 6)
	after := blockAt(t, g, 7)
	assert.NotEqual(t, fin, after, "statements after the try stay out of finally")
	assert.Equal(t, []int{fin}, g.Blocks[after].Predecessors)
	assert.True(t, hasEdge(g, fin, g.Exit, EdgeNormal))
	assert.True(t, g.PostDominates(fin, try))
	assert.True(t, g.PostDominates(fin, handler))
}

func TestBuildRaiseThroughFinally(t *testing.T) {
	// try:
	//     try: raise E()
	//     finally: cleanup()
	//     more()
	// except E: log()
	// after()
	g := Build("f", []Statement{
		&Try{
			Line: 1,
			Body: []Statement{
				&Try{
					Line:    2,
					Body:    []Statement{&Raise{Line: 3, Text: "raise E()"}},
					Finally: []Statement{&Simple{Line: 5, Text: "cleanup()"}},
				},
				&Simple{Line: 6, Text: "more()"},
			},
			Handlers: []Handler{{Line: 7, Clause: "except E", Body: []Statement{&Simple{Line: 8, Text: "log()"}}}},
		},
		&Simple{Line: 9, Text: "after()"},
	})
	assertWellFormed(t, g)

	inner := blockAt(t, g, 3)
	fin := blockAt(t, g, 5)
	handler := blockAt(t, g, 7)
	assert.Equal(t, BlockFinally, g.Blocks[fin].Kind)
	assert.Equal(t, []ControlEdge{{SourceID: inner, TargetID: fin, Condition: EdgeException}}, g.EdgesFrom(inner))
	assert.True(t, hasEdge(g, fin, handler, EdgeException))
	assert.Equal(t, []int{handler}, g.Blocks[blockAt(t, g, 9)].Predecessors)

	_, _, ok := g.BlockForLine(6)
	assert.False(t, ok)
	for _, id := range g.Unreachable() {
		assert.Equal(t, BlockMerge, g.Blocks[id].Kind)
	}
}

func TestUnreachableFollowsDeadBlocks(t *testing.T) {
	g := Build("f", []Statement{
		&If{Line: 1, Test: "a", Body: []Statement{&Return{Line: 2, Value: "1"}},
			Else: []Statement{&Return{Line: 4, Value: "2"}}},
		&Loop{Line: 5, Kind: LoopFor, Header: "for x in xs", Body: []Statement{&Simple{Line: 6, Text: "use(x)"}}},
	})
	assertWellFormed(t, g)

	header := blockAt(t, g, 5)
	assert.NotEmpty(t, g.Blocks[header].Predecessors)
	assert.Subset(t, g.Unreachable(), []int{blockAt(t, g, 5), blockAt(t, g, 6)})
	assert.NotContains(t, g.Unreachable(), g.Exit)
}

func TestBuildRaiseOutsideTry(t *testing.T) {
	g := Build("f", []Statement{
		&Raise{Line: 1, Text: "raise RuntimeError()"},
		&Simple{Line: 2, Text: "never()"},
	})
	assertWellFormed(t, g)

	assert.True(t, hasEdge(g, g.Entry, g.Exit, EdgeException))
	_, _, ok := g.BlockForLine(2)
	assert.False(t, ok)
}

func TestBuildSwitch(t *testing.T) {
	g := Build("dispatch", []Statement{
		&Switch{Line: 1, Subject: "command", Cases: []Case{
			{Line: 2, Pattern: `case "a"`, Body: []Statement{&Simple{Line: 3, Text: "run_a()"}}},
			{Line: 4, Pattern: "case _", Default: true, Body: []Statement{&Return{Line: 5, Value: "None"}}},
		}},
		&Simple{Line: 6, Text: "finish()"},
	})
	assertWellFormed(t, g)

	cond := blockAt(t, g, 1)
	caseA := blockAt(t, g, 2)
	def := blockAt(t, g, 4)
	merge := blockAt(t, g, 6)
	assert.True(t, hasEdge(g, cond, caseA, EdgeTrue))
	assert.True(t, hasEdge(g, cond, def, EdgeFalse))
	assert.Equal(t, []int{caseA}, g.Blocks[merge].Predecessors)
}

func TestBuildWithBody(t *testing.T) {
	g := Build("read", []Statement{
		&With{Line: 1, Header: "with open(p) as f", Body: []Statement{
			&Simple{Line: 2, Text: "data = f.read()"},
			&Return{Line: 3, Value: "data"},
		}},
		&Simple{Line: 4, Text: "unreached()"},
	})
	assertWellFormed(t, g)

	assert.Len(t, g.Blocks[g.Entry].Statements, 3)
	assert.True(t, hasEdge(g, g.Entry, g.Exit, EdgeNormal))
	_, _, ok := g.BlockForLine(4)
	assert.False(t, ok)
}

func TestBuildToleratesNilAndGeneric(t *testing.T) {
	g := Build("odd", []Statement{
		nil,
		(*If)(nil),
		&Generic{Line: 1, Kind: "decorated_definition", Text: "@cache"},
		(*Loop)(nil),
		(*Try)(nil),
		&Simple{Line: 2, Text: "x = 1"},
	})
	assertWellFormed(t, g)

	assert.Equal(t, 2, g.NumBlocks())
	assert.Len(t, g.Blocks[g.Entry].Statements, 2)
}

func TestBuilderReuse(t *testing.T) {
	b := NewBuilder(nil)
	first := b.Build("a", []Statement{&Loop{Line: 1, Kind: LoopFor, Header: "for x in y", Body: []Statement{&Break{Line: 2}}}})
	second := b.Build("b", []Statement{&Simple{Line: 1, Text: "pass"}})

	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "b", second.Name)
	assert.Equal(t, 2, second.NumBlocks())
	assert.Greater(t, first.NumBlocks(), 2)
}
