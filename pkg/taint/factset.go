package taint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-taint-query/pkg/facts"
)

type varLine struct {
	v    string
	line int
}

type fileVarLine struct {
	file string
	v    string
	line int
}

type argKey struct {
	file   string
	line   int
	callee string
	index  int
}

// FactSet is the frozen result of one run. It is never modified after
// Compute returns and is safe for concurrent readers.
type FactSet struct {
	facts   []TaintFact
	uses    []TaintFact
	args    []TaintedArg
	returns []TaintedReturn
	stats   Stats

	byVarLine     map[varLine]int // index into points
	byFileVarLine map[fileVarLine]int
	points        []*TaintFact
	byArg         map[argKey]int
	argsAt        map[fileLine][]int
	byReturn      map[facts.Scope]int
}

type fileLine struct {
	file string
	line int
}

// newFactSet sorts and indexes the run's results. Where a definition and a
// use share a key, the definition answers provenance queries.
func newFactSet(defs, uses []TaintFact, args []TaintedArg, returns []TaintedReturn, stats Stats) *FactSet {
	sortFacts(defs)
	sortFacts(uses)
	sort.SliceStable(args, func(i, j int) bool {
		a, b := args[i], args[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Index < b.Index
	})
	sort.SliceStable(returns, func(i, j int) bool {
		if returns[i].File != returns[j].File {
			return returns[i].File < returns[j].File
		}
		return returns[i].Function < returns[j].Function
	})

	fs := &FactSet{
		facts:         defs,
		uses:          uses,
		args:          args,
		returns:       returns,
		stats:         stats,
		byVarLine:     make(map[varLine]int),
		byFileVarLine: make(map[fileVarLine]int),
		byArg:         make(map[argKey]int),
		argsAt:        make(map[fileLine][]int),
		byReturn:      make(map[facts.Scope]int),
	}
	fs.stats.Facts = len(defs)
	fs.stats.Uses = len(uses)
	fs.stats.TaintedArgs = len(args)
	fs.stats.TaintedReturns = len(returns)

	index := func(list []TaintFact) {
		for i := range list {
			f := &list[i]
			k2 := fileVarLine{f.File, f.Variable, f.Line}
			if _, ok := fs.byFileVarLine[k2]; ok {
				continue
			}
			fs.points = append(fs.points, f)
			n := len(fs.points) - 1
			fs.byFileVarLine[k2] = n
			if _, ok := fs.byVarLine[varLine{f.Variable, f.Line}]; !ok {
				fs.byVarLine[varLine{f.Variable, f.Line}] = n
			}
		}
	}
	index(fs.facts)
	index(fs.uses)

	for i, a := range fs.args {
		k := argKey{a.File, a.Line, facts.ShortName(a.Callee), a.Index}
		if _, ok := fs.byArg[k]; !ok {
			fs.byArg[k] = i
		}
		fl := fileLine{a.File, a.Line}
		fs.argsAt[fl] = append(fs.argsAt[fl], i)
	}
	for i, r := range fs.returns {
		fs.byReturn[facts.Scope{File: r.File, Function: r.Function}] = i
	}
	return fs
}

func sortFacts(list []TaintFact) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Variable < b.Variable
	})
}

// Facts returns a copy of the definition facts, ordered by file, line and
// variable.
func (fs *FactSet) Facts() []TaintFact { return cloneFacts(fs.facts) }

// Uses returns a copy of the use facts.
func (fs *FactSet) Uses() []TaintFact { return cloneFacts(fs.uses) }

// TaintedArgs returns a copy of the tainted call arguments.
func (fs *FactSet) TaintedArgs() []TaintedArg {
	out := make([]TaintedArg, len(fs.args))
	for i, a := range fs.args {
		a.Provenance = a.Provenance.Clone()
		out[i] = a
	}
	return out
}

// TaintedReturns returns a copy of the functions returning taint.
func (fs *FactSet) TaintedReturns() []TaintedReturn {
	out := make([]TaintedReturn, len(fs.returns))
	for i, r := range fs.returns {
		r.Provenance = r.Provenance.Clone()
		out[i] = r
	}
	return out
}

// Stats returns the run statistics.
func (fs *FactSet) Stats() Stats { return fs.stats }

func cloneFacts(list []TaintFact) []TaintFact {
	out := make([]TaintFact, len(list))
	for i, f := range list {
		f.Provenance = f.Provenance.Clone()
		out[i] = f
	}
	return out
}

func (fs *FactSet) lookup(v string, line int) (*TaintFact, bool) {
	i, ok := fs.byVarLine[varLine{v, line}]
	if !ok {
		return nil, false
	}
	return fs.points[i], true
}

func (fs *FactSet) lookupIn(file, v string, line int) (*TaintFact, bool) {
	i, ok := fs.byFileVarLine[fileVarLine{file, v, line}]
	if !ok {
		return nil, false
	}
	return fs.points[i], true
}

func (fs *FactSet) arg(file string, line int, callee string, index int) (*TaintedArg, bool) {
	i, ok := fs.byArg[argKey{file, line, facts.ShortName(callee), index}]
	if !ok {
		return nil, false
	}
	return &fs.args[i], true
}

func (fs *FactSet) argsOn(file string, line int) []*TaintedArg {
	idx := fs.argsAt[fileLine{file, line}]
	out := make([]*TaintedArg, len(idx))
	for i, n := range idx {
		out[i] = &fs.args[n]
	}
	return out
}

func (fs *FactSet) ret(file, function string) (*TaintedReturn, bool) {
	i, ok := fs.byReturn[facts.Scope{File: file, Function: function}]
	if !ok {
		return nil, false
	}
	return &fs.returns[i], true
}

// snapshot is the persisted form of a FactSet.
type snapshot struct {
	Version int             `msgpack:"version"`
	Facts   []TaintFact     `msgpack:"facts"`
	Uses    []TaintFact     `msgpack:"uses"`
	Args    []TaintedArg    `msgpack:"args"`
	Returns []TaintedReturn `msgpack:"returns"`
	Stats   Stats           `msgpack:"stats"`
}

const snapshotVersion = 1

// Save writes the fact set to w using msgpack.
func (fs *FactSet) Save(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(snapshot{
		Version: snapshotVersion,
		Facts:   fs.facts,
		Uses:    fs.uses,
		Args:    fs.args,
		Returns: fs.returns,
		Stats:   fs.stats,
	})
}

// LoadFactSet reads a fact set written by Save.
func LoadFactSet(r io.Reader) (*FactSet, error) {
	var s snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode fact set: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported fact set version %d", s.Version)
	}
	return newFactSet(s.Facts, s.Uses, s.Args, s.Returns, s.Stats), nil
}

// SaveFile writes the fact set to path, creating parent directories.
func (fs *FactSet) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create fact set directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create fact set file: %w", err)
	}
	if err := fs.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFactSetFile reads a fact set from path.
func LoadFactSetFile(path string) (*FactSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact set file: %w", err)
	}
	defer f.Close()
	return LoadFactSet(f)
}
