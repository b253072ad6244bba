package cfg

import (
	"strings"

	"github.com/l3aro/go-taint-query/internal/log"
)

// jumpFrame is pushed for every loop, and every fall-through switch, while
// its body is visited. header is -1 for a switch, which continue skips.
type jumpFrame struct {
	label  string
	header int
	exit   int
}

// tryFrame is pushed while the parts of a try that its finally clause
// covers are visited. handlers is cleared once the try body is done.
type tryFrame struct {
	handlers   []int
	hasFinally bool
	finally    int // block id once created, else -1

	// returned and raised record jumps routed through finally, which must
	// resume towards exit or the next handlers once finally completes.
	returned bool
	raised   bool
}

func (f *tryFrame) finallyBlock(g *Graph) int {
	if f.finally < 0 {
		f.finally = g.newBlock(BlockFinally)
	}
	return f.finally
}

// Builder turns one function's statement list into a Graph. A Builder keeps
// per-build state and must not be shared between goroutines; Build resets it.
type Builder struct {
	logger log.Logger

	g     *Graph
	cur   int
	jumps []jumpFrame
	tries []*tryFrame
}

// NewBuilder creates a builder. A nil logger discards diagnostics.
func NewBuilder(logger log.Logger) *Builder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Builder{logger: logger}
}

// Build builds the graph of a single function with a throwaway builder.
func Build(name string, stmts []Statement) *Graph {
	return NewBuilder(nil).Build(name, stmts)
}

// Build converts stmts into a Graph. It never fails: nil statements are
// skipped and dangling break/continue are tolerated. Blocks left without
// predecessors are reported by Graph.Unreachable.
func (b *Builder) Build(name string, stmts []Statement) *Graph {
	b.g = &Graph{Name: name}
	b.jumps = b.jumps[:0]
	b.tries = b.tries[:0]

	b.g.Entry = b.g.newBlock(BlockEntry)
	b.g.Exit = b.g.newBlock(BlockExit)
	b.cur = b.g.Entry

	if !b.visitList(stmts) {
		b.g.addEdge(b.cur, b.g.Exit, EdgeNormal)
	}

	if dead := b.g.Unreachable(); len(dead) > 0 {
		b.logger.Debug("unreachable blocks", "function", name, "blocks", dead)
	}

	g := b.g
	b.g = nil
	return g
}

// visitList visits stmts in order and reports whether the list ended in a
// jump. Statements after a jump are not visited.
func (b *Builder) visitList(stmts []Statement) bool {
	for _, s := range stmts {
		if b.visit(s) {
			return true
		}
	}
	return false
}

func (b *Builder) visit(s Statement) bool {
	switch s := s.(type) {
	case nil:
		return false
	case *Simple:
		if s != nil {
			b.add(s.Line, s.Text)
		}
		return false
	case *Generic:
		if s != nil {
			b.add(s.Line, s.Text)
		}
		return false
	case *Return:
		if s == nil {
			return false
		}
		b.add(s.Line, joinWords("return", s.Value))
		b.leave(b.cur)
		return true
	case *Break:
		if s == nil {
			return false
		}
		return b.visitJump(s.Line, "break", s.Label)
	case *Continue:
		if s == nil {
			return false
		}
		return b.visitJump(s.Line, "continue", s.Label)
	case *Raise:
		if s == nil {
			return false
		}
		b.add(s.Line, s.Text)
		b.raise(b.cur)
		return true
	case *If:
		if s != nil {
			b.visitIf(s)
		}
		return false
	case *Loop:
		if s != nil {
			b.visitLoop(s)
		}
		return false
	case *Try:
		if s == nil {
			return false
		}
		return b.visitTry(s)
	case *With:
		if s == nil {
			return false
		}
		b.add(s.Line, s.Header)
		return b.visitList(s.Body)
	case *Switch:
		if s != nil {
			b.visitSwitch(s)
		}
		return false
	}
	return false
}

func (b *Builder) add(line int, text string) {
	blk := &b.g.Blocks[b.cur]
	blk.Statements = append(blk.Statements, StatementRef{Line: line, Text: text})
}

func (b *Builder) visitJump(line int, word, label string) bool {
	b.add(line, joinWords(word, label))
	target := b.jumpTarget(word == "continue", label)
	if target == nil {
		b.logger.Debug(word+" statement without target", "function", b.g.Name, "line", line, "label", label)
		return false
	}
	if word == "break" {
		b.g.addEdge(b.cur, target.exit, EdgeBreak)
	} else {
		b.g.addEdge(b.cur, target.header, EdgeContinue)
	}
	return true
}

// jumpTarget returns the innermost frame a break (or, with loopOnly, a
// continue) resolves to. A labeled jump only matches a frame with that label.
func (b *Builder) jumpTarget(loopOnly bool, label string) *jumpFrame {
	for i := len(b.jumps) - 1; i >= 0; i-- {
		f := &b.jumps[i]
		if loopOnly && f.header < 0 {
			continue
		}
		if label == "" || f.label == label {
			return f
		}
	}
	return nil
}

// leave links from towards exit for a return: through the innermost
// enclosing finally block if there is one, otherwise straight to exit.
func (b *Builder) leave(from int) {
	for i := len(b.tries) - 1; i >= 0; i-- {
		if f := b.tries[i]; f.hasFinally {
			f.returned = true
			b.g.addEdge(from, f.finallyBlock(b.g), EdgeNormal)
			return
		}
	}
	b.g.addEdge(from, b.g.Exit, EdgeNormal)
}

// raise links from to the handlers of the innermost try that has any. A
// finally block met on the way out runs first; with no try left the
// exception leaves the function.
func (b *Builder) raise(from int) {
	for i := len(b.tries) - 1; i >= 0; i-- {
		f := b.tries[i]
		if len(f.handlers) > 0 {
			for _, h := range f.handlers {
				b.g.addEdge(from, h, EdgeException)
			}
			return
		}
		if f.hasFinally {
			f.raised = true
			b.g.addEdge(from, f.finallyBlock(b.g), EdgeException)
			return
		}
	}
	b.g.addEdge(from, b.g.Exit, EdgeException)
}

func (b *Builder) visitIf(s *If) {
	cond := b.g.newBlock(BlockBranchCondition)
	b.g.addEdge(b.cur, cond, EdgeNormal)
	b.cur = cond
	b.add(s.Line, s.Test)

	body := b.g.newBlock(BlockIfBody)
	b.g.addEdge(cond, body, EdgeTrue)
	b.cur = body
	bodyDone := b.visitList(s.Body)
	bodyEnd := b.cur

	hasElse := len(s.Else) > 0
	elseDone, elseEnd := false, 0
	if hasElse {
		els := b.g.newBlock(BlockElseBody)
		b.g.addEdge(cond, els, EdgeFalse)
		b.cur = els
		elseDone = b.visitList(s.Else)
		elseEnd = b.cur
	}

	merge := b.g.newBlock(BlockMerge)
	if !hasElse {
		b.g.addEdge(cond, merge, EdgeFalse)
	}
	if !bodyDone {
		b.g.addEdge(bodyEnd, merge, EdgeNormal)
	}
	if hasElse && !elseDone {
		b.g.addEdge(elseEnd, merge, EdgeNormal)
	}
	b.cur = merge
}

func (b *Builder) visitLoop(s *Loop) {
	header := b.g.newBlock(BlockLoopHeader)
	b.g.addEdge(b.cur, header, EdgeNormal)
	b.cur = header
	b.add(s.Line, s.Header)

	enter, leave := EdgeEnterLoop, EdgeExitLoop
	if s.Kind == LoopWhile {
		enter, leave = EdgeTrue, EdgeFalse
	}

	body := b.g.newBlock(BlockLoopBody)
	b.g.addEdge(header, body, enter)
	exit := b.g.newBlock(BlockLoopExit)

	b.jumps = append(b.jumps, jumpFrame{label: s.Label, header: header, exit: exit})
	b.cur = body
	if !b.visitList(s.Body) {
		b.g.addEdge(b.cur, header, EdgeContinueLoop)
	}
	b.jumps = b.jumps[:len(b.jumps)-1]

	if len(s.Else) > 0 {
		els := b.g.newBlock(BlockElseBody)
		b.g.addEdge(header, els, leave)
		b.cur = els
		if !b.visitList(s.Else) {
			b.g.addEdge(b.cur, exit, EdgeNormal)
		}
	} else {
		b.g.addEdge(header, exit, leave)
	}
	b.cur = exit
}

// visitTry models exceptions as raised at the start of the try body: each
// handler gets one exception edge from the try block's first block. Returns
// and raises inside the try, its else or its handlers pass through finally.
func (b *Builder) visitTry(s *Try) bool {
	start := b.g.newBlock(BlockTryBody)
	b.g.addEdge(b.cur, start, EdgeNormal)

	handlers := make([]int, len(s.Handlers))
	for i, h := range s.Handlers {
		hb := b.g.newBlock(BlockHandler)
		b.g.Blocks[hb].Statements = append(b.g.Blocks[hb].Statements, StatementRef{Line: h.Line, Text: h.Clause})
		b.g.addEdge(start, hb, EdgeException)
		handlers[i] = hb
	}

	frame := &tryFrame{handlers: handlers, hasFinally: len(s.Finally) > 0, finally: -1}
	b.tries = append(b.tries, frame)
	b.cur = start
	done := b.visitList(s.Body)
	frame.handlers = nil

	var open []int
	if !done {
		if len(s.Else) > 0 {
			els := b.g.newBlock(BlockElseBody)
			b.g.addEdge(b.cur, els, EdgeNormal)
			b.cur = els
			if !b.visitList(s.Else) {
				open = append(open, b.cur)
			}
		} else {
			open = append(open, b.cur)
		}
	}
	for i, h := range s.Handlers {
		b.cur = handlers[i]
		if !b.visitList(h.Body) {
			open = append(open, b.cur)
		}
	}
	b.tries = b.tries[:len(b.tries)-1]

	merge := b.g.newBlock(BlockMerge)
	for _, id := range open {
		b.g.addEdge(id, merge, EdgeNormal)
	}
	b.cur = merge

	if !frame.hasFinally {
		return false
	}
	fin := frame.finallyBlock(b.g)
	if len(open) > 0 {
		b.g.addEdge(merge, fin, EdgeNormal)
	}
	b.cur = fin
	if b.visitList(s.Finally) {
		return true
	}
	if !frame.returned && !frame.raised {
		return false
	}

	end := b.cur
	if frame.returned {
		b.leave(end)
	}
	if frame.raised {
		b.raise(end)
	}
	if len(open) == 0 {
		return true
	}
	b.cur = b.g.newBlock(BlockPlain)
	b.g.addEdge(end, b.cur, EdgeNormal)
	return false
}

func (b *Builder) visitSwitch(s *Switch) {
	cond := b.g.newBlock(BlockBranchCondition)
	b.g.addEdge(b.cur, cond, EdgeNormal)
	b.cur = cond
	b.add(s.Line, s.Subject)

	merge := -1
	if s.Fallthrough {
		merge = b.g.newBlock(BlockMerge)
		b.jumps = append(b.jumps, jumpFrame{label: s.Label, header: -1, exit: merge})
	}

	var open []int
	hasDefault := false
	prev := -1 // open end of the previous arm, falling into the next
	for _, c := range s.Cases {
		kind, edge := BlockIfBody, EdgeTrue
		if c.Default {
			kind, edge = BlockElseBody, EdgeFalse
			hasDefault = true
		}
		cb := b.g.newBlock(kind)
		b.g.addEdge(cond, cb, edge)
		if prev >= 0 {
			b.g.addEdge(prev, cb, EdgeNormal)
			prev = -1
		}
		b.cur = cb
		b.add(c.Line, c.Pattern)
		if b.visitList(c.Body) {
			continue
		}
		if s.Fallthrough {
			prev = b.cur
		} else {
			open = append(open, b.cur)
		}
	}
	if prev >= 0 {
		open = append(open, prev)
	}

	if s.Fallthrough {
		b.jumps = b.jumps[:len(b.jumps)-1]
	} else {
		merge = b.g.newBlock(BlockMerge)
	}
	if !hasDefault {
		b.g.addEdge(cond, merge, EdgeFalse)
	}
	for _, id := range open {
		b.g.addEdge(id, merge, EdgeNormal)
	}
	b.cur = merge
}

func joinWords(words ...string) string {
	var parts []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}
