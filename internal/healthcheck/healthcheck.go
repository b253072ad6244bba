// Package healthcheck verifies that a configuration can drive a taint run:
// the fact store opens, sources resolve for CFG building, pattern packs
// load and the saved fact set is readable.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/internal/scanner"
	"github.com/l3aro/go-taint-query/pkg/cfg"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/frameworks"
	"github.com/l3aro/go-taint-query/pkg/taint"
)

// Status of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarn    Status = "warn"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name   string
	Status Status
	Detail string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	ConfigPath  string
	ConfigScope string // "global", "project" or "" for defaults
	Checks      []CheckResult
}

// Failed reports whether any check errored.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Check runs every check against c. configPath is the config file in use and
// may be empty when only defaults and environment apply.
func Check(ctx context.Context, c *config.Config, configPath string) (*HealthCheckResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		ConfigPath:  configPath,
		ConfigScope: scopeFromPath(configPath),
	}

	store, storeCheck := checkFactStore(ctx, c.FactStore)
	result.Checks = append(result.Checks, storeCheck)
	result.Checks = append(result.Checks, checkPlugins(store, c))
	result.Checks = append(result.Checks, checkSources(ctx, store, c))
	result.Checks = append(result.Checks, checkFactSet(c.FactSetPath))
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gtq")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

func checkFactStore(ctx context.Context, path string) (*facts.Store, CheckResult) {
	res := CheckResult{Name: "fact store"}
	store, err := facts.OpenSQLite(ctx, path)
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		return nil, res
	}

	res.Status = StatusOK
	res.Detail = fmt.Sprintf("%s: %d assignments, %d call args, %d returns, %d symbols",
		path, len(store.Assignments()), len(store.CallArgs()), len(store.Returns()), len(store.Symbols()))
	if sk := store.Skipped(); sk.Total() > 0 {
		res.Status = StatusWarn
		res.Detail += fmt.Sprintf(" (%d malformed rows skipped)", sk.Total())
	}
	return store, res
}

func checkPlugins(store *facts.Store, c *config.Config) CheckResult {
	res := CheckResult{Name: "patterns"}
	packs, err := frameworks.LoadPacks(c.PatternPacks)
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		return res
	}
	plugins, err := frameworks.Resolve(store, c.Frameworks, packs, nil)
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		return res
	}
	res.Status = StatusOK
	res.Detail = fmt.Sprintf("plugins %s", strings.Join(frameworks.Names(plugins), ", "))
	return res
}

// checkSources reports how many fact-store files can be parsed for CFG
// building, and how many parseable files under the source root have no
// facts at all.
func checkSources(ctx context.Context, store *facts.Store, c *config.Config) CheckResult {
	res := CheckResult{Name: "source root"}
	if !c.UseCFG {
		res.Status = StatusSkipped
		res.Detail = "CFGs disabled, reachability uses line order"
		return res
	}
	files, err := scanner.Scan(ctx, c.SourceRoot, scanner.DefaultOptions())
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		return res
	}
	if store == nil {
		res.Status = StatusWarn
		res.Detail = fmt.Sprintf("%d source files under %s, no fact store to compare", len(files), c.SourceRoot)
		return res
	}

	known := make(map[string]bool)
	var parsed, missing, unsupported int
	for _, file := range store.Files() {
		known[filepath.ToSlash(file)] = true
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.SourceRoot, file)
		}
		_, err := cfg.ParseFile(ctx, path)
		switch {
		case err == nil:
			parsed++
		case errors.Is(err, cfg.ErrUnsupportedLanguage):
			unsupported++
		default:
			missing++
		}
	}
	var untracked int
	for _, f := range files {
		if !known[f.Path] {
			untracked++
		}
	}

	res.Status = StatusOK
	res.Detail = fmt.Sprintf("%d of %d fact-store files parsed", parsed, parsed+missing)
	if unsupported > 0 {
		res.Detail += fmt.Sprintf(", %d use line order", unsupported)
	}
	if missing > 0 {
		res.Status = StatusWarn
		res.Detail += fmt.Sprintf(", %d unreadable", missing)
	}
	if untracked > 0 {
		res.Detail += fmt.Sprintf("; %d source files have no facts", untracked)
	}
	return res
}

func checkFactSet(path string) CheckResult {
	res := CheckResult{Name: "fact set"}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		res.Status = StatusWarn
		res.Detail = fmt.Sprintf("%s not found, run gtq analyze", path)
		return res
	}
	fs, err := taint.LoadFactSetFile(path)
	if err != nil {
		res.Status = StatusError
		res.Detail = err.Error()
		return res
	}
	st := fs.Stats()
	res.Status = StatusOK
	res.Detail = fmt.Sprintf("run %s: %d facts, %d tainted args", st.RunID, st.Facts, st.TaintedArgs)
	return res
}
