package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/pkg/cache"
	"github.com/l3aro/go-taint-query/pkg/cfg"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/frameworks"
	"github.com/l3aro/go-taint-query/pkg/registry"
	"github.com/l3aro/go-taint-query/pkg/taint"
)

// analysis is the outcome of one analyze run.
type analysis struct {
	Store    *facts.Store
	Registry registry.Registry
	Plugins  []string
	FactSet  *taint.FactSet
	Findings []taint.Finding
}

// buildRegistry resolves the plugins for store and registers them in order.
func buildRegistry(store *facts.Store, c *config.Config, logger log.Logger) (registry.Registry, []string, error) {
	packs, err := frameworks.LoadPacks(c.PatternPacks)
	if err != nil {
		return registry.Registry{}, nil, err
	}
	plugins, err := frameworks.Resolve(store, c.Frameworks, packs, logger)
	if err != nil {
		return registry.Registry{}, nil, err
	}
	return frameworks.Apply(registry.New(), plugins), frameworks.Names(plugins), nil
}

// runAnalysis loads the fact store named by c and computes its fact set.
// graphs may be pre-warmed; it is only consulted when c.UseCFG is set.
func runAnalysis(ctx context.Context, c *config.Config, graphs *cache.GraphCache, logger log.Logger) (*analysis, error) {
	store, err := facts.OpenSQLite(ctx, c.FactStore)
	if err != nil {
		return nil, fmt.Errorf("opening fact store: %w", err)
	}
	if skipped := store.Skipped(); skipped.Total() > 0 {
		logger.Warn("skipped malformed facts",
			"assignments", skipped.Assignments, "call_args", skipped.CallArgs,
			"returns", skipped.Returns, "symbols", skipped.Symbols)
	}

	reg, names, err := buildRegistry(store, c, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("plugins resolved", "plugins", names, "patterns", reg.Len())

	opts := taint.Options{
		Budget:   c.Budget,
		MaxFacts: c.MaxFacts,
		Graphs:   graphs,
		Logger:   logger,
	}
	if c.UseCFG {
		opts.Bodies = cfg.NewSourceFiles(c.SourceRoot, logger)
	}

	fs, err := taint.NewEngine(opts).Compute(ctx, store, reg)
	if err != nil {
		return nil, err
	}
	return &analysis{
		Store:    store,
		Registry: reg,
		Plugins:  names,
		FactSet:  fs,
		Findings: taint.EvaluateSinks(taint.NewFacade(fs), store, reg),
	}, nil
}

// warmGraphs parses the source files of store and builds the graph of every
// function that owns facts on a worker pool, storing them in graphs. It
// returns the number of graphs built.
func warmGraphs(ctx context.Context, store *facts.Store, c *config.Config, graphs *cache.GraphCache, logger log.Logger, quiet bool) (int, error) {
	var (
		funcs []cfg.Function
		keys  []string
	)
	seen := make(map[string]bool)
	for _, file := range store.Files() {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.SourceRoot, file)
		}
		parsed, err := cfg.ParseFile(ctx, path)
		if errors.Is(err, cfg.ErrUnsupportedLanguage) {
			continue
		}
		if err != nil {
			logger.Debug("skipping source file", "file", file, "error", err)
			continue
		}
		for _, fn := range parsed {
			key := cache.Key(file, fn.Name)
			if seen[key] || !store.HasScope(file, fn.Name) {
				continue
			}
			seen[key] = true
			funcs = append(funcs, fn)
			keys = append(keys, key)
		}
	}
	if len(funcs) == 0 {
		return 0, nil
	}

	bar := newBar(len(funcs), "building CFGs", quiet)
	built, err := cfg.BuildAll(ctx, funcs, c.Workers, logger, func(*cfg.Graph) { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return 0, err
	}
	for i, g := range built {
		graphs.Set(keys[i], g)
	}
	return len(built), nil
}

func newBar(n int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(int64(n), description)
	}
	return progressbar.Default(int64(n), description)
}
