package facts

import (
	"sort"
	"strings"
)

// Store is an indexed, read-only view of the fact tables. Rows missing a
// field the engine needs are dropped at construction and counted. A Store is
// safe for concurrent reads.
type Store struct {
	assignments []Assignment
	callArgs    []CallArg
	returns     []Return
	symbols     []Symbol

	assignsByScope map[Scope][]Assignment
	argsByScope    map[Scope][]CallArg
	returnsByScope map[Scope][]Return

	assignsCalling map[string][]Assignment
	argsCalling    map[string][]CallArg
	returnsCalling map[string][]Return
	argsByCallee   map[string][]CallArg
	functions      map[string][]Symbol

	scopes   []Scope
	scopeSet map[Scope]bool
	skipped  Skipped
}

// NewStore validates and indexes t. Every index is ordered by file then
// line, so iteration over a Store is deterministic.
func NewStore(t Tables) *Store {
	s := &Store{
		assignsByScope: make(map[Scope][]Assignment),
		argsByScope:    make(map[Scope][]CallArg),
		returnsByScope: make(map[Scope][]Return),
		assignsCalling: make(map[string][]Assignment),
		argsCalling:    make(map[string][]CallArg),
		returnsCalling: make(map[string][]Return),
		argsByCallee:   make(map[string][]CallArg),
		functions:      make(map[string][]Symbol),
	}

	for _, a := range t.Assignments {
		a.Target, a.Expr = strings.TrimSpace(a.Target), strings.TrimSpace(a.Expr)
		if a.File == "" || a.Line <= 0 || a.Target == "" || a.Expr == "" {
			s.skipped.Assignments++
			continue
		}
		s.assignments = append(s.assignments, a)
	}
	for _, c := range t.CallArgs {
		c.Callee, c.Expr = strings.TrimSpace(c.Callee), strings.TrimSpace(c.Expr)
		if c.File == "" || c.Line <= 0 || c.Callee == "" || c.Index < 0 || c.Expr == "" {
			s.skipped.CallArgs++
			continue
		}
		s.callArgs = append(s.callArgs, c)
	}
	for _, r := range t.Returns {
		r.Expr = strings.TrimSpace(r.Expr)
		if r.File == "" || r.Line <= 0 || r.Function == "" || r.Expr == "" {
			s.skipped.Returns++
			continue
		}
		s.returns = append(s.returns, r)
	}
	for _, sym := range t.Symbols {
		if sym.Path == "" || sym.Name == "" {
			s.skipped.Symbols++
			continue
		}
		s.symbols = append(s.symbols, sym)
	}

	sort.SliceStable(s.assignments, func(i, j int) bool {
		return less(s.assignments[i].File, s.assignments[i].Line, s.assignments[j].File, s.assignments[j].Line)
	})
	sort.SliceStable(s.callArgs, func(i, j int) bool {
		a, b := s.callArgs[i], s.callArgs[j]
		if a.File == b.File && a.Line == b.Line {
			return a.Index < b.Index
		}
		return less(a.File, a.Line, b.File, b.Line)
	})
	sort.SliceStable(s.returns, func(i, j int) bool {
		return less(s.returns[i].File, s.returns[i].Line, s.returns[j].File, s.returns[j].Line)
	})
	sort.SliceStable(s.symbols, func(i, j int) bool {
		return less(s.symbols[i].Path, s.symbols[i].Line, s.symbols[j].Path, s.symbols[j].Line)
	})

	s.scopeSet = make(map[Scope]bool)
	addScope := func(sc Scope) {
		if !s.scopeSet[sc] {
			s.scopeSet[sc] = true
			s.scopes = append(s.scopes, sc)
		}
	}

	for _, a := range s.assignments {
		sc := Scope{a.File, a.Function}
		s.assignsByScope[sc] = append(s.assignsByScope[sc], a)
		addScope(sc)
		for _, name := range calleeNames(a.Expr) {
			s.assignsCalling[name] = append(s.assignsCalling[name], a)
		}
	}
	for _, c := range s.callArgs {
		sc := Scope{c.File, c.Caller}
		s.argsByScope[sc] = append(s.argsByScope[sc], c)
		addScope(sc)
		callee := ShortName(c.Callee)
		s.argsByCallee[callee] = append(s.argsByCallee[callee], c)
		for _, name := range calleeNames(c.Expr) {
			s.argsCalling[name] = append(s.argsCalling[name], c)
		}
	}
	for _, r := range s.returns {
		sc := Scope{r.File, r.Function}
		s.returnsByScope[sc] = append(s.returnsByScope[sc], r)
		addScope(sc)
		for _, name := range calleeNames(r.Expr) {
			s.returnsCalling[name] = append(s.returnsCalling[name], r)
		}
	}
	for _, sym := range s.symbols {
		if sym.IsFunction() {
			short := ShortName(sym.Name)
			s.functions[short] = append(s.functions[short], sym)
		}
	}

	sort.Slice(s.scopes, func(i, j int) bool {
		if s.scopes[i].File != s.scopes[j].File {
			return s.scopes[i].File < s.scopes[j].File
		}
		return s.scopes[i].Function < s.scopes[j].Function
	})
	return s
}

func less(fa string, la int, fb string, lb int) bool {
	if fa != fb {
		return fa < fb
	}
	return la < lb
}

// calleeNames returns the distinct short names called in expr.
func calleeNames(expr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range Calls(expr) {
		name := ShortName(c.Callee)
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Assignments returns every valid assignment.
func (s *Store) Assignments() []Assignment { return s.assignments }

// CallArgs returns every valid call argument.
func (s *Store) CallArgs() []CallArg { return s.callArgs }

// Returns returns every valid return.
func (s *Store) Returns() []Return { return s.returns }

// Symbols returns every valid symbol.
func (s *Store) Symbols() []Symbol { return s.symbols }

// Scopes returns every function that owns at least one fact, sorted.
func (s *Store) Scopes() []Scope { return s.scopes }

// Skipped returns the number of malformed rows dropped per table.
func (s *Store) Skipped() Skipped { return s.skipped }

// AssignmentsIn returns the assignments made inside function of file.
func (s *Store) AssignmentsIn(file, function string) []Assignment {
	return s.assignsByScope[Scope{file, function}]
}

// CallArgsIn returns the call arguments passed from inside function of file.
func (s *Store) CallArgsIn(file, function string) []CallArg {
	return s.argsByScope[Scope{file, function}]
}

// ReturnsIn returns the return statements of function in file.
func (s *Store) ReturnsIn(file, function string) []Return {
	return s.returnsByScope[Scope{file, function}]
}

// AssignmentsCalling returns the assignments whose right-hand side calls a
// function with the given short name.
func (s *Store) AssignmentsCalling(name string) []Assignment {
	return s.assignsCalling[ShortName(name)]
}

// CallArgsCalling returns the call arguments whose expression calls a
// function with the given short name.
func (s *Store) CallArgsCalling(name string) []CallArg {
	return s.argsCalling[ShortName(name)]
}

// ReturnsCalling returns the returns whose expression calls a function with
// the given short name.
func (s *Store) ReturnsCalling(name string) []Return {
	return s.returnsCalling[ShortName(name)]
}

// CallArgsTo returns the arguments passed to functions with the given short
// name.
func (s *Store) CallArgsTo(name string) []CallArg {
	return s.argsByCallee[ShortName(name)]
}

// FunctionsNamed returns every function or method symbol whose short name is
// the short name of name. More than one result means the call is ambiguous.
func (s *Store) FunctionsNamed(name string) []Symbol {
	return s.functions[ShortName(name)]
}

// ScopeOf returns the scope holding the body of a function symbol. Extractors
// name methods either qualified ("Repo.find") or bare ("find"); whichever
// form owns facts in the symbol's file wins, the qualified one first.
func (s *Store) ScopeOf(sym Symbol) Scope {
	qualified := Scope{sym.Path, sym.Name}
	if s.scopeSet[qualified] {
		return qualified
	}
	if short := (Scope{sym.Path, ShortName(sym.Name)}); s.scopeSet[short] {
		return short
	}
	return qualified
}

// HasScope reports whether any fact belongs to function of file.
func (s *Store) HasScope(file, function string) bool {
	return s.scopeSet[Scope{file, function}]
}

// ContainsText reports whether any expression, callee or symbol in the store
// contains text.
func (s *Store) ContainsText(text string) bool {
	if text == "" {
		return false
	}
	for _, a := range s.assignments {
		if strings.Contains(a.Expr, text) {
			return true
		}
	}
	for _, c := range s.callArgs {
		if strings.Contains(c.Callee, text) || strings.Contains(c.Expr, text) {
			return true
		}
	}
	for _, r := range s.returns {
		if strings.Contains(r.Expr, text) {
			return true
		}
	}
	for _, sym := range s.symbols {
		if strings.Contains(sym.Name, text) {
			return true
		}
	}
	return false
}

// Files returns the distinct files that own facts, sorted.
func (s *Store) Files() []string {
	var out []string
	for i, sc := range s.scopes {
		if i == 0 || sc.File != s.scopes[i-1].File {
			out = append(out, sc.File)
		}
	}
	return out
}
