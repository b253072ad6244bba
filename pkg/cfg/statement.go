package cfg

// Statement is one node of a function body as seen by the builder.
// The set of implementations is closed; the builder switches over it.
type Statement interface {
	// Pos returns the 1-based source line of the statement.
	Pos() int
	stmt()
}

// Simple is a straight-line statement (expression, assignment, pass...).
type Simple struct {
	Line int
	Text string
}

// Return leaves the function.
type Return struct {
	Line  int
	Value string
}

// If is an if/else. An elif chain is an If nested as the only Else statement.
type If struct {
	Line int
	Test string
	Body []Statement
	Else []Statement
}

// LoopKind distinguishes iteration loops from test loops.
type LoopKind int

const (
	LoopFor LoopKind = iota
	LoopWhile
)

// Loop is a for or while loop. Else runs when the loop finishes without break.
type Loop struct {
	Line   int
	Kind   LoopKind
	Header string // iterand ("for x in xs") or test ("while cond")
	Body   []Statement
	Else   []Statement
	Label  string
}

// Break leaves the innermost loop or fall-through Switch, or the enclosing
// one carrying Label.
type Break struct {
	Line  int
	Label string
}

// Continue jumps to the header of the innermost loop, or of the enclosing
// loop carrying Label.
type Continue struct {
	Line  int
	Label string
}

// Handler is one except/catch clause.
type Handler struct {
	Line   int
	Clause string // e.g. "except ValueError as e"
	Body   []Statement
}

// Try is try/except/else/finally.
type Try struct {
	Line     int
	Body     []Statement
	Handlers []Handler
	Else     []Statement
	Finally  []Statement
}

// Raise throws to the innermost enclosing handlers, or out of the function.
type Raise struct {
	Line int
	Text string
}

// With is a context-manager block; its body runs in place.
type With struct {
	Line   int
	Header string
	Body   []Statement
}

// Case is one arm of a Switch. Default marks the catch-all arm.
type Case struct {
	Line    int
	Pattern string
	Body    []Statement
	Default bool
}

// Switch is a multi-way branch (Python match, switch in C-like languages).
// Arms do not fall through unless Fallthrough is set, in which case an arm
// that does not jump runs on into the next one and break leaves the switch.
type Switch struct {
	Line        int
	Subject     string
	Cases       []Case
	Fallthrough bool
	Label       string
}

// Generic is any statement kind the builder does not model. It is appended
// to the current block without affecting control flow.
type Generic struct {
	Line int
	Kind string
	Text string
}

func (s *Simple) Pos() int   { return s.Line }
func (s *Return) Pos() int   { return s.Line }
func (s *If) Pos() int       { return s.Line }
func (s *Loop) Pos() int     { return s.Line }
func (s *Break) Pos() int    { return s.Line }
func (s *Continue) Pos() int { return s.Line }
func (s *Try) Pos() int      { return s.Line }
func (s *Raise) Pos() int    { return s.Line }
func (s *With) Pos() int     { return s.Line }
func (s *Switch) Pos() int   { return s.Line }
func (s *Generic) Pos() int  { return s.Line }

func (*Simple) stmt()   {}
func (*Return) stmt()   {}
func (*If) stmt()       {}
func (*Loop) stmt()     {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Try) stmt()      {}
func (*Raise) stmt()    {}
func (*With) stmt()     {}
func (*Switch) stmt()   {}
func (*Generic) stmt()  {}
