package frameworks

import (
	"fmt"

	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// Resolve picks the plugins for a run, in registration order: user packs
// first, then the detected built-in frameworks, then core. A non-empty
// enabled list forces those built-ins on without detection; unknown names
// are an error.
func Resolve(s *facts.Store, enabled []string, packs []Pack, logger log.Logger) ([]Plugin, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	var plugins []Plugin
	for _, p := range packs {
		if p.Detect(s) {
			plugins = append(plugins, p)
		} else {
			logger.Debug("pattern pack not detected", "pack", p.Name())
		}
	}

	builtins := Builtins()
	if len(enabled) > 0 {
		byName := make(map[string]Pack, len(builtins))
		for _, b := range builtins {
			byName[b.Name()] = b
		}
		for _, name := range enabled {
			if name == CoreName {
				continue
			}
			b, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("unknown framework %q", name)
			}
			plugins = append(plugins, b)
		}
	} else {
		for _, b := range builtins {
			if b.Detect(s) {
				logger.Debug("framework detected", "framework", b.Name())
				plugins = append(plugins, b)
			}
		}
	}

	return append(plugins, Core()), nil
}

// Apply registers every plugin onto r in order and returns the result.
func Apply(r registry.Registry, plugins []Plugin) registry.Registry {
	for _, p := range plugins {
		r = p.Register(r)
	}
	return r
}

// Names returns the plugin names in order.
func Names(plugins []Plugin) []string {
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.Name()
	}
	return out
}
