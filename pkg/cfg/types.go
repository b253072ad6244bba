// Package cfg defines data structures for representing Control Flow Graphs (CFGs)
// and the builder that derives them from a function's statement list.
//
// Graphs use arena semantics: blocks live in Graph.Blocks and are referenced
// only by their integer id, which equals their index in that slice.
package cfg

// BlockKind represents the kind of a CFG block.
type BlockKind string

const (
	BlockEntry           BlockKind = "entry"            // Function entry point
	BlockExit            BlockKind = "exit"             // Function exit point
	BlockPlain           BlockKind = "plain"            // Regular statements
	BlockBranchCondition BlockKind = "branch-condition" // Holds an if/match test
	BlockIfBody          BlockKind = "if-body"          // True branch or match case
	BlockElseBody        BlockKind = "else-body"        // else of if, loop or try
	BlockMerge           BlockKind = "merge"            // Join point after a branch or try
	BlockLoopHeader      BlockKind = "loop-header"      // Iterand or loop test
	BlockLoopBody        BlockKind = "loop-body"
	BlockLoopExit        BlockKind = "loop-exit"
	BlockTryBody         BlockKind = "try-body"
	BlockHandler         BlockKind = "handler" // except/catch clause
	BlockFinally         BlockKind = "finally"
)

// EdgeCondition labels a CFG edge.
type EdgeCondition string

const (
	EdgeNormal       EdgeCondition = "normal"
	EdgeTrue         EdgeCondition = "True"
	EdgeFalse        EdgeCondition = "False"
	EdgeEnterLoop    EdgeCondition = "enter_loop"
	EdgeExitLoop     EdgeCondition = "exit_loop"
	EdgeContinueLoop EdgeCondition = "continue_loop" // Back edge from a loop body's end
	EdgeBreak        EdgeCondition = "break"
	EdgeContinue     EdgeCondition = "continue" // Explicit continue statement
	EdgeException    EdgeCondition = "exception"
)

// StatementRef is a statement as recorded inside a block.
type StatementRef struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// BasicBlock represents a basic block in the Control Flow Graph.
type BasicBlock struct {
	ID           int            `json:"id"`           // Index into Graph.Blocks
	Kind         BlockKind      `json:"type"`         // Kind of block
	Statements   []StatementRef `json:"statements"`   // Statements in execution order
	Predecessors []int          `json:"predecessors"` // IDs of blocks with an edge into this one
	Successors   []int          `json:"successors"`   // IDs of blocks this one has an edge to
}

// ControlEdge represents a directed edge between two CFG blocks.
type ControlEdge struct {
	SourceID  int           `json:"source_id"`
	TargetID  int           `json:"target_id"`
	Condition EdgeCondition `json:"condition"`
}

// Graph is the Control Flow Graph of one function.
type Graph struct {
	Name   string
	Blocks []BasicBlock
	Edges  []ControlEdge
	Entry  int
	Exit   int
}

// Block returns the block with the given id.
func (g *Graph) Block(id int) (BasicBlock, bool) {
	if id < 0 || id >= len(g.Blocks) {
		return BasicBlock{}, false
	}
	return g.Blocks[id], true
}

// NumBlocks returns the number of blocks, entry and exit included.
func (g *Graph) NumBlocks() int {
	return len(g.Blocks)
}

// EdgesFrom returns the outgoing edges of block id in insertion order.
func (g *Graph) EdgesFrom(id int) []ControlEdge {
	var out []ControlEdge
	for _, e := range g.Edges {
		if e.SourceID == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns the incoming edges of block id in insertion order.
func (g *Graph) EdgesTo(id int) []ControlEdge {
	var out []ControlEdge
	for _, e := range g.Edges {
		if e.TargetID == id {
			out = append(out, e)
		}
	}
	return out
}

// BlocksOfKind returns the ids of all blocks of kind k.
func (g *Graph) BlocksOfKind(k BlockKind) []int {
	var out []int
	for _, b := range g.Blocks {
		if b.Kind == k {
			out = append(out, b.ID)
		}
	}
	return out
}

func (g *Graph) newBlock(kind BlockKind) int {
	id := len(g.Blocks)
	g.Blocks = append(g.Blocks, BasicBlock{ID: id, Kind: kind})
	return id
}

// addEdge appends an edge and records the endpoints in the adjacency sets.
func (g *Graph) addEdge(from, to int, cond EdgeCondition) {
	g.Edges = append(g.Edges, ControlEdge{SourceID: from, TargetID: to, Condition: cond})
	g.Blocks[from].Successors = appendUnique(g.Blocks[from].Successors, to)
	g.Blocks[to].Predecessors = appendUnique(g.Blocks[to].Predecessors, from)
}

func appendUnique(ids []int, id int) []int {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
