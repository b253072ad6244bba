// Package registry holds the ordered catalog of taint-relevant string
// patterns: sources, sinks and sanitizers.
//
// A Registry is an immutable value. Register* methods return an updated copy,
// so framework plugins compose as pure builder calls and a finished Registry
// is safe for concurrent reads.
package registry

import (
	"strings"

	"github.com/l3aro/go-taint-query/internal/lang"
)

// Kind classifies a pattern.
type Kind string

const (
	KindSource    Kind = "source"
	KindSink      Kind = "sink"
	KindSanitizer Kind = "sanitizer"
)

// Well-known categories. Plugins may use any string.
const (
	CategoryUserInput       = "user_input"
	CategorySQL             = "sql"
	CategoryCommand         = "command"
	CategoryXSS             = "xss"
	CategoryCodeInjection   = "code_injection"
	CategoryDeserialization = "deserialization"
	CategoryWeakCrypto      = "weak_crypto"
	CategoryPath            = "path"
	CategoryRedirect        = "redirect"
	CategorySSRF            = "ssrf"
	CategoryGeneric         = "generic"
)

// Pattern is one registered (text, category, language) triple.
type Pattern struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Text     string `json:"pattern" yaml:"pattern"`
	Category string `json:"category" yaml:"category"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"` // "" or "*" = any
	// Origin names the plugin that registered the pattern.
	Origin string `json:"origin,omitempty" yaml:"-"`
}

// Registry is an insertion-ordered pattern list.
type Registry struct {
	patterns []Pattern
	origin   string
}

// New returns an empty registry.
func New() Registry {
	return Registry{}
}

// WithOrigin returns a copy whose subsequent registrations are tagged with
// origin.
func (r Registry) WithOrigin(origin string) Registry {
	r.origin = origin
	return r
}

// RegisterSource returns a copy of r with a source pattern appended.
func (r Registry) RegisterSource(pattern, category, language string) Registry {
	return r.Register(Pattern{Kind: KindSource, Text: pattern, Category: category, Language: language})
}

// RegisterSink returns a copy of r with a sink pattern appended.
func (r Registry) RegisterSink(pattern, category, language string) Registry {
	return r.Register(Pattern{Kind: KindSink, Text: pattern, Category: category, Language: language})
}

// RegisterSanitizer returns a copy of r with a sanitizer pattern appended.
func (r Registry) RegisterSanitizer(pattern, category, language string) Registry {
	return r.Register(Pattern{Kind: KindSanitizer, Text: pattern, Category: category, Language: language})
}

// Register appends p. Empty pattern text is ignored since it would match
// everything.
func (r Registry) Register(p Pattern) Registry {
	if strings.TrimSpace(p.Text) == "" {
		return r
	}
	if p.Origin == "" {
		p.Origin = r.origin
	}
	out := make([]Pattern, len(r.patterns), len(r.patterns)+1)
	copy(out, r.patterns)
	r.patterns = append(out, p)
	return r
}

// Match scans patterns of kind in registration order and returns the category
// of the first one whose text is contained in text.
func (r Registry) Match(kind Kind, text, language string) (string, bool) {
	p, ok := r.MatchPattern(kind, text, language)
	if !ok {
		return "", false
	}
	return p.Category, true
}

// MatchPattern is Match returning the whole winning pattern.
func (r Registry) MatchPattern(kind Kind, text, language string) (Pattern, bool) {
	if text == "" {
		return Pattern{}, false
	}
	for _, p := range r.patterns {
		if p.Kind != kind || !lang.Matches(p.Language, language) {
			continue
		}
		if strings.Contains(text, p.Text) {
			return p, true
		}
	}
	return Pattern{}, false
}

// MatchAll returns every pattern of kind contained in text, in registration
// order. The first element, if any, is what MatchPattern returns.
func (r Registry) MatchAll(kind Kind, text, language string) []Pattern {
	if text == "" {
		return nil
	}
	var out []Pattern
	for _, p := range r.patterns {
		if p.Kind == kind && lang.Matches(p.Language, language) && strings.Contains(text, p.Text) {
			out = append(out, p)
		}
	}
	return out
}

// MatchSource is Match(KindSource, ...).
func (r Registry) MatchSource(text, language string) (string, bool) {
	return r.Match(KindSource, text, language)
}

// MatchSink is Match(KindSink, ...).
func (r Registry) MatchSink(text, language string) (string, bool) {
	return r.Match(KindSink, text, language)
}

// MatchSanitizer is Match(KindSanitizer, ...).
func (r Registry) MatchSanitizer(text, language string) (string, bool) {
	return r.Match(KindSanitizer, text, language)
}

// Patterns returns a copy of the patterns of kind, in registration order.
// An empty kind returns every pattern.
func (r Registry) Patterns(kind Kind) []Pattern {
	var out []Pattern
	for _, p := range r.patterns {
		if kind == "" || p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered patterns.
func (r Registry) Len() int {
	return len(r.patterns)
}
