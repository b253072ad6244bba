// Package taint computes which variables carry untrusted data and answers
// point queries about them.
//
// An Engine runs a fixed-point worklist over the assignment, call-argument
// and return facts of a facts.Store, seeded by the source patterns of a
// registry.Registry. The result is an immutable FactSet; rules query it
// through a Facade.
package taint

import (
	"errors"
	"time"
)

// ErrBudgetExceeded is returned when a run exceeds its wall-clock budget or
// fact ceiling. No partial result accompanies it.
var ErrBudgetExceeded = errors.New("taint analysis budget exceeded")

// HopKind says how taint moved in one step.
type HopKind string

const (
	// HopSource is the first hop: an expression matched a source pattern.
	HopSource HopKind = "source"
	// HopAssignment moved taint into the target of an assignment.
	HopAssignment HopKind = "assignment"
	// HopArgument moved taint from a call argument into a callee parameter.
	HopArgument HopKind = "argument"
	// HopReturn moved taint out of a function through a return.
	HopReturn HopKind = "return"
)

// Hop is one step of a provenance chain.
type Hop struct {
	Kind     HopKind `json:"kind" msgpack:"kind"`
	File     string  `json:"file" msgpack:"file"`
	Line     int     `json:"line" msgpack:"line"`
	Function string  `json:"function,omitempty" msgpack:"function,omitempty"`
	// Variable is the variable tainted by the hop; empty for returns.
	Variable string `json:"variable,omitempty" msgpack:"variable,omitempty"`
	Expr     string `json:"expr" msgpack:"expr"`
}

// Provenance is the ordered chain of hops that carried taint to a fact,
// source first.
type Provenance []Hop

// extend returns a new chain with h appended; p is never modified.
func (p Provenance) extend(h Hop) Provenance {
	out := make(Provenance, len(p), len(p)+1)
	copy(out, p)
	return append(out, h)
}

// Clone returns a copy of p.
func (p Provenance) Clone() Provenance {
	if p == nil {
		return nil
	}
	out := make(Provenance, len(p))
	copy(out, p)
	return out
}

// Source returns the first hop of the chain.
func (p Provenance) Source() (Hop, bool) {
	if len(p) == 0 {
		return Hop{}, false
	}
	return p[0], true
}

// TaintFact records that Variable holds tainted data at Line. Definition
// facts sit on the line that assigned the variable; use facts sit on the
// lines that read it.
type TaintFact struct {
	Variable   string     `json:"variable" msgpack:"variable"`
	File       string     `json:"file" msgpack:"file"`
	Line       int        `json:"line" msgpack:"line"`
	Function   string     `json:"function" msgpack:"function"`
	Category   string     `json:"category" msgpack:"category"`
	Provenance Provenance `json:"provenance" msgpack:"provenance"`
}

// TaintedArg records a tainted argument of a call.
type TaintedArg struct {
	File       string     `json:"file" msgpack:"file"`
	Line       int        `json:"line" msgpack:"line"`
	Caller     string     `json:"caller" msgpack:"caller"`
	Callee     string     `json:"callee" msgpack:"callee"`
	Index      int        `json:"index" msgpack:"index"`
	Expr       string     `json:"expr" msgpack:"expr"`
	Category   string     `json:"category" msgpack:"category"`
	Provenance Provenance `json:"provenance" msgpack:"provenance"`
}

// TaintedReturn records a function that may return tainted data.
type TaintedReturn struct {
	File       string     `json:"file" msgpack:"file"`
	Function   string     `json:"function" msgpack:"function"`
	Line       int        `json:"line" msgpack:"line"`
	Category   string     `json:"category" msgpack:"category"`
	Provenance Provenance `json:"provenance" msgpack:"provenance"`
}

// Stats summarizes one run.
type Stats struct {
	RunID          string        `json:"run_id" msgpack:"run_id"`
	Facts          int           `json:"facts" msgpack:"facts"`
	Uses           int           `json:"uses" msgpack:"uses"`
	TaintedArgs    int           `json:"tainted_args" msgpack:"tainted_args"`
	TaintedReturns int           `json:"tainted_returns" msgpack:"tainted_returns"`
	Seeds          int           `json:"seeds" msgpack:"seeds"`
	Iterations     int           `json:"iterations" msgpack:"iterations"`
	Graphs         int           `json:"graphs" msgpack:"graphs"`
	Skipped        int           `json:"skipped" msgpack:"skipped"`
	Unresolved     int           `json:"unresolved" msgpack:"unresolved"`
	Patterns       int           `json:"patterns" msgpack:"patterns"`
	Duration       time.Duration `json:"duration" msgpack:"duration"`
}
