package taint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/l3aro/go-taint-query/internal/lang"
	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/pkg/cache"
	"github.com/l3aro/go-taint-query/pkg/cfg"
	"github.com/l3aro/go-taint-query/pkg/dfg"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// BodyProvider supplies the statement tree of a function so the engine can
// decide reachability on its control flow graph. cfg.SourceFiles is one.
type BodyProvider interface {
	Body(file, function string) ([]cfg.Statement, bool)
}

// Options configures an Engine.
type Options struct {
	// Budget bounds the wall-clock time of one Compute call. 0 means none.
	Budget time.Duration
	// MaxFacts bounds the number of definition facts. 0 means none.
	MaxFacts int
	// Bodies enables graph-based reaching definitions. Functions it has no
	// body for, or a nil Bodies, fall back to line order.
	Bodies BodyProvider
	// Graphs caches built graphs. A nil cache gets a fresh one per run.
	Graphs *cache.GraphCache
	// Logger receives diagnostics. nil discards them.
	Logger log.Logger
}

// Engine computes fact sets. It holds no per-run state; one Engine may run
// Compute from several goroutines.
type Engine struct {
	opts   Options
	logger log.Logger
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// Compute runs propagation to its fixed point over store, seeded and
// filtered by reg. Malformed facts were already dropped by the store;
// unresolved calls lose their interprocedural edge. Exceeding the budget
// returns ErrBudgetExceeded and no fact set.
func (e *Engine) Compute(ctx context.Context, store *facts.Store, reg registry.Registry) (*FactSet, error) {
	if store == nil {
		return nil, errors.New("taint: nil fact store")
	}
	start := time.Now()
	if e.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Budget)
		defer cancel()
	}

	r := &run{
		ctx:        ctx,
		e:          e,
		store:      store,
		reg:        reg,
		graphs:     e.opts.Graphs,
		defs:       make(map[fileVarLine]*TaintFact),
		uses:       make(map[fileVarLine]*TaintFact),
		args:       make(map[argKey]*TaintedArg),
		returns:    make(map[facts.Scope]*TaintedReturn),
		reachers:   make(map[facts.Scope]dfg.Reacher),
		spans:      make(map[spanKey][]facts.Call),
		unresolved: make(map[string]bool),
	}
	if r.graphs == nil {
		r.graphs = cache.New(cache.Options{})
	}

	r.seed()
	if err := r.drain(); err != nil {
		e.logger.Warn("taint analysis aborted", "error", err, "facts", len(r.defOrder))
		return nil, err
	}

	defs := make([]TaintFact, len(r.defOrder))
	for i, f := range r.defOrder {
		defs[i] = *f
	}
	uses := make([]TaintFact, len(r.useOrder))
	for i, f := range r.useOrder {
		uses[i] = *f
	}
	args := make([]TaintedArg, len(r.argOrder))
	for i, a := range r.argOrder {
		args[i] = *a
	}
	rets := make([]TaintedReturn, len(r.retOrder))
	for i, rt := range r.retOrder {
		rets[i] = *rt
	}

	fs := newFactSet(defs, uses, args, rets, Stats{
		RunID:      uuid.NewString(),
		Seeds:      r.seeds,
		Iterations: r.iterations,
		Graphs:     r.built,
		Skipped:    store.Skipped().Total(),
		Unresolved: len(r.unresolved),
		Patterns:   reg.Len(),
		Duration:   time.Since(start),
	})
	st := fs.Stats()
	e.logger.Info("taint analysis complete",
		"run", st.RunID, "facts", st.Facts, "uses", st.Uses, "args", st.TaintedArgs,
		"iterations", st.Iterations, "duration", st.Duration)
	return fs, nil
}

type item struct {
	fact *TaintFact
	ret  *TaintedReturn
}

type spanKey struct {
	expr     string
	language string
}

// run is the state of one Compute call.
type run struct {
	ctx    context.Context
	e      *Engine
	store  *facts.Store
	reg    registry.Registry
	graphs *cache.GraphCache

	defs     map[fileVarLine]*TaintFact
	defOrder []*TaintFact
	uses     map[fileVarLine]*TaintFact
	useOrder []*TaintFact
	args     map[argKey]*TaintedArg
	argOrder []*TaintedArg
	returns  map[facts.Scope]*TaintedReturn
	retOrder []*TaintedReturn

	queue []item
	head  int

	reachers   map[facts.Scope]dfg.Reacher
	spans      map[spanKey][]facts.Call
	unresolved map[string]bool

	seeds, iterations, built int
}

// seed visits scopes component by component and records every expression
// that matches a source pattern outside a sanitizer call.
func (r *run) seed() {
	for _, comp := range CallGraphComponents(r.store) {
		for _, sc := range comp {
			language := lang.ForFile(sc.File)

			for _, a := range r.store.AssignmentsIn(sc.File, sc.Function) {
				p, ok := r.source(a.Expr, language)
				if !ok {
					continue
				}
				hop := Hop{Kind: HopSource, File: a.File, Line: a.Line, Function: a.Function, Variable: a.Target, Expr: a.Expr}
				if r.addFact(TaintFact{
					Variable: a.Target, File: a.File, Line: a.Line, Function: a.Function,
					Category: p.Category, Provenance: Provenance{hop},
				}) {
					r.seeds++
				}
			}

			for _, c := range r.store.CallArgsIn(sc.File, sc.Function) {
				p, ok := r.source(c.Expr, language)
				if !ok {
					continue
				}
				r.seeds++
				r.taintArg(c, p.Category, Provenance{{Kind: HopSource, File: c.File, Line: c.Line, Function: c.Caller, Expr: c.Expr}})
			}

			for _, rt := range r.store.ReturnsIn(sc.File, sc.Function) {
				p, ok := r.source(rt.Expr, language)
				if !ok {
					continue
				}
				r.seeds++
				r.taintReturn(rt, p.Category, Provenance{{Kind: HopSource, File: rt.File, Line: rt.Line, Function: rt.Function, Expr: rt.Expr}})
			}
		}
	}
}

func (r *run) drain() error {
	for r.head < len(r.queue) {
		if err := r.checkBudget(); err != nil {
			return err
		}
		it := r.queue[r.head]
		r.queue[r.head] = item{}
		r.head++
		r.iterations++

		if it.fact != nil {
			r.propagateFact(it.fact)
		} else {
			r.propagateReturn(it.ret)
		}
	}
	return r.checkBudget()
}

func (r *run) checkBudget() error {
	if err := r.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: wall-clock limit reached after %d iterations", ErrBudgetExceeded, r.iterations)
		}
		return err
	}
	if max := r.e.opts.MaxFacts; max > 0 && len(r.defOrder) > max {
		return fmt.Errorf("%w: more than %d facts", ErrBudgetExceeded, max)
	}
	return nil
}

// propagateFact follows f into every assignment, call argument and return
// of its function that reads the variable and is reached by f.
func (r *run) propagateFact(f *TaintFact) {
	language := lang.ForFile(f.File)
	rd := r.reacher(facts.Scope{File: f.File, Function: f.Function})

	for _, a := range r.store.AssignmentsIn(f.File, f.Function) {
		if !r.flows(a.Expr, f.Variable, language) || !rd.Reaches(f.Variable, f.Line, a.Line) {
			continue
		}
		r.addUse(f, a.Line)
		r.addFact(TaintFact{
			Variable: a.Target, File: a.File, Line: a.Line, Function: a.Function, Category: f.Category,
			Provenance: f.Provenance.extend(Hop{
				Kind: HopAssignment, File: a.File, Line: a.Line, Function: a.Function, Variable: a.Target, Expr: a.Expr,
			}),
		})
	}

	for _, c := range r.store.CallArgsIn(f.File, f.Function) {
		if !r.flows(c.Expr, f.Variable, language) || !rd.Reaches(f.Variable, f.Line, c.Line) {
			continue
		}
		r.addUse(f, c.Line)
		r.taintArg(c, f.Category, f.Provenance)
	}

	for _, rt := range r.store.ReturnsIn(f.File, f.Function) {
		if !r.flows(rt.Expr, f.Variable, language) || !rd.Reaches(f.Variable, f.Line, rt.Line) {
			continue
		}
		r.addUse(f, rt.Line)
		r.taintReturn(rt, f.Category, f.Provenance.extend(Hop{
			Kind: HopReturn, File: rt.File, Line: rt.Line, Function: rt.Function, Expr: rt.Expr,
		}))
	}
}

// propagateReturn moves taint returned by a function into every caller
// expression that calls it by short name.
func (r *run) propagateReturn(rt *TaintedReturn) {
	name := facts.ShortName(rt.Function)

	for _, a := range r.store.AssignmentsCalling(name) {
		if !r.callFlows(a.Expr, name, lang.ForFile(a.File)) {
			continue
		}
		r.addFact(TaintFact{
			Variable: a.Target, File: a.File, Line: a.Line, Function: a.Function, Category: rt.Category,
			Provenance: rt.Provenance.extend(Hop{
				Kind: HopAssignment, File: a.File, Line: a.Line, Function: a.Function, Variable: a.Target, Expr: a.Expr,
			}),
		})
	}
	for _, c := range r.store.CallArgsCalling(name) {
		if r.callFlows(c.Expr, name, lang.ForFile(c.File)) {
			r.taintArg(c, rt.Category, rt.Provenance)
		}
	}
	for _, ret := range r.store.ReturnsCalling(name) {
		if !r.callFlows(ret.Expr, name, lang.ForFile(ret.File)) {
			continue
		}
		r.taintReturn(ret, rt.Category, rt.Provenance.extend(Hop{
			Kind: HopReturn, File: ret.File, Line: ret.Line, Function: ret.Function, Expr: ret.Expr,
		}))
	}
}

// addFact records f unless its (file, variable, line) key is known, and
// queues it. It reports whether f was new.
func (r *run) addFact(f TaintFact) bool {
	k := fileVarLine{f.File, f.Variable, f.Line}
	if _, ok := r.defs[k]; ok {
		return false
	}
	p := &f
	r.defs[k] = p
	r.defOrder = append(r.defOrder, p)
	r.queue = append(r.queue, item{fact: p})
	return true
}

func (r *run) addUse(f *TaintFact, line int) {
	k := fileVarLine{f.File, f.Variable, line}
	if _, ok := r.uses[k]; ok {
		return
	}
	u := &TaintFact{
		Variable: f.Variable, File: f.File, Line: line, Function: f.Function,
		Category: f.Category, Provenance: f.Provenance,
	}
	r.uses[k] = u
	r.useOrder = append(r.useOrder, u)
}

// taintArg records a tainted argument and taints the receiving parameter of
// every function the callee name may refer to.
func (r *run) taintArg(c facts.CallArg, category string, prov Provenance) {
	k := argKey{c.File, c.Line, facts.ShortName(c.Callee), c.Index}
	if _, ok := r.args[k]; ok {
		return
	}
	a := &TaintedArg{
		File: c.File, Line: c.Line, Caller: c.Caller, Callee: c.Callee, Index: c.Index,
		Expr: c.Expr, Category: category, Provenance: prov,
	}
	r.args[k] = a
	r.argOrder = append(r.argOrder, a)

	candidates := r.store.FunctionsNamed(c.Callee)
	if len(candidates) == 0 {
		r.unresolvedCall(c.Callee, "no function definition", c.File, c.Line)
		return
	}
	if c.Param == "" {
		r.unresolvedCall(c.Callee, "no parameter name", c.File, c.Line)
		return
	}
	if len(candidates) > 1 {
		r.e.logger.Debug("ambiguous call, tainting every candidate",
			"callee", c.Callee, "candidates", len(candidates), "file", c.File, "line", c.Line)
	}
	for _, sym := range candidates {
		sc := r.store.ScopeOf(sym)
		r.addFact(TaintFact{
			Variable: c.Param, File: sc.File, Line: sym.Line, Function: sc.Function, Category: category,
			Provenance: prov.extend(Hop{
				Kind: HopArgument, File: sc.File, Line: sym.Line, Function: sc.Function, Variable: c.Param, Expr: c.Expr,
			}),
		})
	}
}

func (r *run) unresolvedCall(callee, reason, file string, line int) {
	if r.unresolved[callee] {
		return
	}
	r.unresolved[callee] = true
	r.e.logger.Debug("unresolved call", "callee", callee, "reason", reason, "file", file, "line", line)
}

func (r *run) taintReturn(ret facts.Return, category string, prov Provenance) {
	k := facts.Scope{File: ret.File, Function: ret.Function}
	if _, ok := r.returns[k]; ok {
		return
	}
	rt := &TaintedReturn{File: ret.File, Function: ret.Function, Line: ret.Line, Category: category, Provenance: prov}
	r.returns[k] = rt
	r.retOrder = append(r.retOrder, rt)
	r.queue = append(r.queue, item{ret: rt})
}

// reacher returns the reaching definitions of a function, built once per
// run. Only assignments that call a sanitizer kill earlier definitions.
func (r *run) reacher(sc facts.Scope) dfg.Reacher {
	if rd, ok := r.reachers[sc]; ok {
		return rd
	}
	language := lang.ForFile(sc.File)
	var defs []dfg.Def
	for _, a := range r.store.AssignmentsIn(sc.File, sc.Function) {
		defs = append(defs, dfg.Def{Var: a.Target, Line: a.Line, Kills: len(r.sanitizerSpans(a.Expr, language)) > 0})
	}

	var rd dfg.Reacher
	if g := r.graph(sc); g != nil {
		rd = dfg.NewReachingDefs(g, defs)
	} else {
		rd = dfg.NewLinearReachingDefs(defs)
	}
	r.reachers[sc] = rd
	return rd
}

func (r *run) graph(sc facts.Scope) *cfg.Graph {
	bodies := r.e.opts.Bodies
	if bodies == nil {
		return nil
	}
	return r.graphs.GetOrBuild(cache.Key(sc.File, sc.Function), func() *cfg.Graph {
		body, ok := bodies.Body(sc.File, sc.Function)
		if !ok {
			return nil
		}
		r.built++
		return cfg.NewBuilder(r.e.logger).Build(sc.Function, body)
	})
}

// sanitizerSpans returns the calls in expr whose callee matches a sanitizer.
func (r *run) sanitizerSpans(expr, language string) []facts.Call {
	k := spanKey{expr, language}
	if spans, ok := r.spans[k]; ok {
		return spans
	}
	var spans []facts.Call
	for _, c := range facts.Calls(expr) {
		if _, ok := r.reg.MatchSanitizer(c.Callee+"(", language); ok {
			spans = append(spans, c)
		}
	}
	r.spans[k] = spans
	return spans
}

func inSpans(spans []facts.Call, pos int) bool {
	for _, s := range spans {
		if pos >= s.Start && pos < s.End {
			return true
		}
	}
	return false
}

// source returns the first source pattern that occurs in expr outside every
// sanitizer call.
func (r *run) source(expr, language string) (registry.Pattern, bool) {
	spans := r.sanitizerSpans(expr, language)
	for _, p := range r.reg.MatchAll(registry.KindSource, expr, language) {
		for off := 0; off < len(expr); {
			i := strings.Index(expr[off:], p.Text)
			if i < 0 {
				break
			}
			if !inSpans(spans, off+i) {
				return p, true
			}
			off += i + 1
		}
	}
	return registry.Pattern{}, false
}

// flows reports whether expr reads v outside every sanitizer call.
func (r *run) flows(expr, v, language string) bool {
	refs := facts.References(expr, v)
	if len(refs) == 0 {
		return false
	}
	spans := r.sanitizerSpans(expr, language)
	for _, pos := range refs {
		if !inSpans(spans, pos) {
			return true
		}
	}
	return false
}

// callFlows reports whether expr calls name outside every sanitizer call.
func (r *run) callFlows(expr, name, language string) bool {
	spans := r.sanitizerSpans(expr, language)
	for _, c := range facts.Calls(expr) {
		if facts.ShortName(c.Callee) == name && !inSpans(spans, c.Start) {
			return true
		}
	}
	return false
}
