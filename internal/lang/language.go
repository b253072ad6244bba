// Package lang maps fact-store file paths to the language tags used by
// source, sink and sanitizer patterns.
package lang

import (
	"path/filepath"
	"strings"
)

const (
	Python     = "python"
	JavaScript = "javascript"
	TypeScript = "typescript"
	Go         = "go"
	Java       = "java"
	Ruby       = "ruby"
	PHP        = "php"
	CSharp     = "csharp"
	Rust       = "rust"
)

// languageMap maps file extensions to programming languages.
var languageMap = map[string]string{
	// Python
	".py":  Python,
	".pyw": Python,
	".pyi": Python,

	// JavaScript/TypeScript
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".ts":  TypeScript,
	".tsx": TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".vue": JavaScript,

	".go":   Go,
	".java": Java,
	".kt":   Java,
	".rb":   Ruby,
	".erb":  Ruby,
	".php":  PHP,
	".cs":   CSharp,
	".rs":   Rust,
}

// DetectLanguage returns the programming language for a given file extension.
// Returns empty string if the extension is not recognized.
func DetectLanguage(ext string) string {
	return languageMap[strings.ToLower(ext)]
}

// ForFile returns the language of path based on its extension.
func ForFile(path string) string {
	return DetectLanguage(filepath.Ext(path))
}

// Matches reports whether a pattern tagged with patternLang applies to code
// written in lang. Empty and "*" pattern languages match everything, as does
// an unknown (empty) code language. TypeScript code also matches JavaScript
// patterns.
func Matches(patternLang, lang string) bool {
	if patternLang == "" || patternLang == "*" || lang == "" {
		return true
	}
	if strings.EqualFold(patternLang, lang) {
		return true
	}
	return strings.EqualFold(patternLang, JavaScript) && strings.EqualFold(lang, TypeScript)
}
