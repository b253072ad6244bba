// Package dfg provides data flow analysis over control flow graphs,
// currently reaching definitions.
package dfg

// Def is one definition of a variable at a source line.
type Def struct {
	Var  string `json:"var"`
	Line int    `json:"line"`
	// Kills marks a definition that hides every earlier definition of Var
	// on the paths through it. Other definitions only add.
	Kills bool `json:"kills"`
}

// Reacher answers whether a definition of v on defLine may reach a use of v
// on useLine.
type Reacher interface {
	Reaches(v string, defLine, useLine int) bool
}

// site is a statement position inside a graph.
type site struct {
	block int
	index int
}

type lineSite struct {
	site
	text string
}

type defKey struct {
	v    string
	line int
}
