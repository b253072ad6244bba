package taint

import (
	"github.com/l3aro/go-taint-query/internal/lang"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// Finding is a tainted argument passed to a sink.
type Finding struct {
	File           string     `json:"file"`
	Line           int        `json:"line"`
	Caller         string     `json:"caller"`
	Callee         string     `json:"callee"`
	Index          int        `json:"index"`
	Expr           string     `json:"expr"`
	Sink           string     `json:"sink"`
	SinkCategory   string     `json:"sink_category"`
	SourceCategory string     `json:"source_category"`
	Provenance     Provenance `json:"provenance"`
}

// EvaluateSinks checks every call argument of store whose callee matches a
// sink pattern and returns the ones the facade reports tainted, in store
// order.
func EvaluateSinks(q *Facade, store *facts.Store, reg registry.Registry) []Finding {
	var out []Finding
	for _, c := range store.CallArgs() {
		p, ok := reg.MatchPattern(registry.KindSink, c.Callee+"(", lang.ForFile(c.File))
		if !ok {
			continue
		}
		a, ok := q.TaintedArgument(c.File, c.Line, c.Callee, c.Index)
		if !ok {
			continue
		}
		out = append(out, Finding{
			File: c.File, Line: c.Line, Caller: c.Caller, Callee: c.Callee, Index: c.Index, Expr: c.Expr,
			Sink: p.Text, SinkCategory: p.Category, SourceCategory: a.Category, Provenance: a.Provenance,
		})
	}
	return out
}
