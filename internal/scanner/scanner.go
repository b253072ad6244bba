// Package scanner walks a source tree and lists the files a taint run can
// parse. It honors .gtqignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-taint-query/internal/lang"
)

// IgnoreFileName is read from every directory of a scanned tree.
const IgnoreFileName = ".gtqignore"

// FileInfo describes one discovered file.
type FileInfo struct {
	Path     string // slash-separated, relative to the root
	FullPath string
	Language string
	Size     int64
}

// Options configures a scan.
type Options struct {
	// Languages limits results to these language tags; empty keeps every
	// file with a known language.
	Languages []string
	// Excludes are directory names skipped wherever they occur.
	Excludes []string
	// Hidden includes dot files and directories.
	Hidden bool
}

// DefaultOptions lists the languages with statement parsers and skips the
// usual dependency and build directories.
func DefaultOptions() Options {
	return Options{
		Languages: []string{lang.Python, lang.JavaScript, lang.TypeScript},
		Excludes: []string{
			"node_modules", "__pycache__", ".venv", "venv", "site-packages",
			"dist", "build", "vendor", ".tox", ".nox", "coverage",
		},
	}
}

// rule is one parsed ignore-file line.
type rule struct {
	base     string // directory of the ignore file, relative to the root
	segments []string
	negate   bool
	dirOnly  bool
	anchored bool
}

func parseRule(base, line string) rule {
	r := rule{base: base}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") || strings.Contains(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	r.segments = strings.Split(line, "/")
	return r
}

// match reports whether rel, a path relative to the root, is covered by r.
func (r rule) match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}
	parts := strings.Split(rel, "/")
	if r.anchored {
		return globSegments(r.segments, parts)
	}
	for i := range parts {
		if globSegments(r.segments, parts[i:]) {
			return true
		}
	}
	return false
}

func globSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if globSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return globSegments(pattern[1:], parts[1:])
}

func ignored(rules []rule, rel string, isDir bool) bool {
	out := false
	for _, r := range rules {
		if r.match(rel, isDir) {
			out = !r.negate
		}
	}
	return out
}

func loadRules(dir, base string) ([]rule, error) {
	f, err := os.Open(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rules []rule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, parseRule(base, line))
	}
	return rules, sc.Err()
}

// Scan walks root and returns the files opts selects, in lexical order.
// Unreadable entries are skipped.
func Scan(ctx context.Context, root string, opts Options) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	wanted := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		wanted[l] = true
	}
	excluded := make(map[string]bool, len(opts.Excludes))
	for _, e := range opts.Excludes {
		excluded[strings.ToLower(e)] = true
	}

	rules, err := loadRules(absRoot, "")
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", IgnoreFileName, err)
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if (!opts.Hidden && strings.HasPrefix(name, ".")) || excluded[strings.ToLower(name)] || ignored(rules, rel, true) {
				return filepath.SkipDir
			}
			nested, err := loadRules(p, rel)
			if err == nil {
				rules = append(rules, nested...)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !opts.Hidden && strings.HasPrefix(name, ".") {
			return nil
		}
		language := lang.ForFile(name)
		if language == "" || (len(wanted) > 0 && !wanted[language]) {
			return nil
		}
		if ignored(rules, rel, false) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: rel, FullPath: p, Language: language, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}
