// Package frameworks provides the plugins that populate a registry.Registry:
// built-in framework packs that register patterns when their framework is
// detected in the fact store, and user pattern packs loaded from YAML.
package frameworks

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// Plugin registers patterns for one framework or pattern pack.
type Plugin interface {
	// Name identifies the plugin; it is recorded as the patterns' origin.
	Name() string
	// Detect reports whether the plugin applies to the codebase in s.
	Detect(s *facts.Store) bool
	// Register returns r with the plugin's patterns appended.
	Register(r registry.Registry) registry.Registry
}

// PackPattern is one pattern entry of a pack.
type PackPattern struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category,omitempty"`
	Language string `yaml:"language,omitempty"`
}

// Pack is a declarative plugin: detection markers plus pattern lists.
type Pack struct {
	PackName string `yaml:"name"`
	// Markers are text markers; the pack applies when any of them occurs in
	// the fact store. An empty list always applies.
	Markers []string `yaml:"detect,omitempty"`
	// Language is the default language of the pack's patterns.
	Language   string        `yaml:"language,omitempty"`
	Sources    []PackPattern `yaml:"sources,omitempty"`
	Sinks      []PackPattern `yaml:"sinks,omitempty"`
	Sanitizers []PackPattern `yaml:"sanitizers,omitempty"`
}

// Name implements Plugin.
func (p Pack) Name() string { return p.PackName }

// Detect implements Plugin.
func (p Pack) Detect(s *facts.Store) bool {
	if len(p.Markers) == 0 {
		return true
	}
	if s == nil {
		return false
	}
	for _, marker := range p.Markers {
		if s.ContainsText(marker) {
			return true
		}
	}
	return false
}

// Register implements Plugin. Sources are registered before sinks and sinks
// before sanitizers, each list in file order.
func (p Pack) Register(r registry.Registry) registry.Registry {
	r = r.WithOrigin(p.PackName)
	for _, group := range []struct {
		kind     registry.Kind
		patterns []PackPattern
	}{
		{registry.KindSource, p.Sources},
		{registry.KindSink, p.Sinks},
		{registry.KindSanitizer, p.Sanitizers},
	} {
		for _, pp := range group.patterns {
			r = r.Register(registry.Pattern{
				Kind:     group.kind,
				Text:     pp.Pattern,
				Category: orDefault(pp.Category, registry.CategoryGeneric),
				Language: orDefault(pp.Language, p.Language),
			})
		}
	}
	return r.WithOrigin("")
}

// Len returns the number of patterns in the pack.
func (p Pack) Len() int {
	return len(p.Sources) + len(p.Sinks) + len(p.Sanitizers)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Validate checks that the pack is usable.
func (p Pack) Validate() error {
	if strings.TrimSpace(p.PackName) == "" {
		return fmt.Errorf("pattern pack has no name")
	}
	for _, list := range [][]PackPattern{p.Sources, p.Sinks, p.Sanitizers} {
		for i, pp := range list {
			if strings.TrimSpace(pp.Pattern) == "" {
				return fmt.Errorf("pattern pack %s: entry %d has an empty pattern", p.PackName, i)
			}
		}
	}
	return nil
}

// ParsePack decodes a YAML pattern pack.
func ParsePack(data []byte) (Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pack{}, fmt.Errorf("failed to parse pattern pack: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Pack{}, err
	}
	return p, nil
}

// LoadPack reads a YAML pattern pack from path.
func LoadPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("failed to read pattern pack: %w", err)
	}
	p, err := ParsePack(data)
	if err != nil {
		return Pack{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadPacks reads every pack in paths, in order.
func LoadPacks(paths []string) ([]Pack, error) {
	packs := make([]Pack, 0, len(paths))
	for _, path := range paths {
		p, err := LoadPack(path)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// Marshal encodes the pack as YAML.
func (p Pack) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
