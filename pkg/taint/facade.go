package taint

// Facade answers point queries over a FactSet. Queries never fail: an
// unknown variable, line or file is simply not tainted. A Facade is safe
// for concurrent use.
type Facade struct {
	fs *FactSet
}

// NewFacade wraps fs. A nil fs answers every query negatively.
func NewFacade(fs *FactSet) *Facade {
	if fs == nil {
		fs = newFactSet(nil, nil, nil, nil, Stats{})
	}
	return &Facade{fs: fs}
}

// IsTainted reports whether variable name holds tainted data at line, in
// any file.
func (q *Facade) IsTainted(name string, line int) bool {
	_, ok := q.fs.lookup(name, line)
	return ok
}

// IsTaintedIn is IsTainted restricted to one file.
func (q *Facade) IsTaintedIn(file, name string, line int) bool {
	_, ok := q.fs.lookupIn(file, name, line)
	return ok
}

// Provenance returns a copy of the hop chain that tainted name at line.
func (q *Facade) Provenance(name string, line int) (Provenance, bool) {
	f, ok := q.fs.lookup(name, line)
	if !ok {
		return nil, false
	}
	return f.Provenance.Clone(), true
}

// Fact returns a copy of the fact for name at line in file.
func (q *Facade) Fact(file, name string, line int) (TaintFact, bool) {
	f, ok := q.fs.lookupIn(file, name, line)
	if !ok {
		return TaintFact{}, false
	}
	out := *f
	out.Provenance = f.Provenance.Clone()
	return out, true
}

// IsTaintedArgument reports whether argument index of the call to callee on
// line of file is tainted. Callees compare by short name, so "execute"
// matches a recorded "cursor.execute".
func (q *Facade) IsTaintedArgument(file string, line int, callee string, index int) bool {
	_, ok := q.fs.arg(file, line, callee, index)
	return ok
}

// TaintedArgument returns a copy of the tainted argument record.
func (q *Facade) TaintedArgument(file string, line int, callee string, index int) (TaintedArg, bool) {
	a, ok := q.fs.arg(file, line, callee, index)
	if !ok {
		return TaintedArg{}, false
	}
	out := *a
	out.Provenance = a.Provenance.Clone()
	return out, true
}

// TaintedArgumentsAt returns copies of every tainted argument on line of file.
func (q *Facade) TaintedArgumentsAt(file string, line int) []TaintedArg {
	var out []TaintedArg
	for _, a := range q.fs.argsOn(file, line) {
		c := *a
		c.Provenance = a.Provenance.Clone()
		out = append(out, c)
	}
	return out
}

// ReturnsTaint reports whether function of file may return tainted data.
func (q *Facade) ReturnsTaint(file, function string) bool {
	_, ok := q.fs.ret(file, function)
	return ok
}

// Stats returns the statistics of the run behind the facade.
func (q *Facade) Stats() Stats { return q.fs.Stats() }
