package cfg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/l3aro/go-taint-query/internal/lang"
	"github.com/l3aro/go-taint-query/internal/log"
)

// ErrUnsupportedLanguage is returned for files no parser handles.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ParseFile parses a Python, JavaScript or TypeScript file into functions.
func ParseFile(ctx context.Context, path string) ([]Function, error) {
	switch lang.ForFile(path) {
	case lang.Python:
		return ParsePythonFile(ctx, path)
	case lang.JavaScript, lang.TypeScript:
		return ParseScriptFile(ctx, path)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedLanguage)
}

// SourceFiles resolves function bodies from the source tree under a root
// directory. Each file is parsed once; parse failures are remembered so a
// broken file is not retried.
type SourceFiles struct {
	root   string
	logger log.Logger

	mu    sync.Mutex
	files map[string]map[string][]Statement
}

// NewSourceFiles returns a body provider for files relative to root.
func NewSourceFiles(root string, logger log.Logger) *SourceFiles {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SourceFiles{
		root:   root,
		logger: logger,
		files:  make(map[string]map[string][]Statement),
	}
}

// Body returns the statements of function in file. A qualified name such as
// "Handler.get" falls back to its last segment. When a file defines the same
// name twice the first definition wins.
func (s *SourceFiles) Body(file, function string) ([]Statement, bool) {
	bodies := s.load(file)
	if bodies == nil {
		return nil, false
	}
	if body, ok := bodies[function]; ok {
		return body, true
	}
	if i := strings.LastIndex(function, "."); i >= 0 {
		body, ok := bodies[function[i+1:]]
		return body, ok
	}
	return nil, false
}

func (s *SourceFiles) load(file string) map[string][]Statement {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bodies, ok := s.files[file]; ok {
		return bodies
	}

	var bodies map[string][]Statement
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, file)
	}
	funcs, err := ParseFile(context.Background(), path)
	switch {
	case errors.Is(err, ErrUnsupportedLanguage):
	case err != nil:
		s.logger.Debug("source unavailable, using line order", "file", file, "error", err)
	default:
		bodies = make(map[string][]Statement, len(funcs))
		for _, fn := range funcs {
			if _, dup := bodies[fn.Name]; !dup {
				bodies[fn.Name] = fn.Body
			}
		}
	}
	s.files[file] = bodies
	return bodies
}
