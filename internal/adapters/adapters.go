// Package adapters implements quench's language adapter registry (spec
// §4.2): per-language glob sets for source/test/ignore classification, the
// default escape-pattern set each language ships, and the comment/directive
// syntax the suppress check parses. Adapters are configuration producers,
// not policy runners — every check consults the registry rather than
// hard-coding per-language knowledge itself.
package adapters

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Language is the project language detected from marker files (spec §3).
type Language string

const (
	LanguageRust       Language = "rust"
	LanguageGo         Language = "go"
	LanguageJavaScript Language = "javascript"
	LanguageRuby       Language = "ruby"
	LanguageShell      Language = "shell"
	LanguageGeneric    Language = "generic"
)

// FileKind is the classification a registry assigns to a path (spec §3).
type FileKind string

const (
	KindSource FileKind = "Source"
	KindTest   FileKind = "Test"
	KindOther  FileKind = "Other"
)

// EscapeAction is what the escapes check does with a match (spec §4.8).
type EscapeAction string

const (
	ActionCount   EscapeAction = "count"
	ActionComment EscapeAction = "comment"
	ActionForbid  EscapeAction = "forbid"
)

// EscapePattern is one default (or user-configured) escape rule an adapter
// contributes to the escapes check.
type EscapePattern struct {
	Name           string
	Pattern        string
	Action         EscapeAction
	RequiredText   string // for Action == ActionComment; empty means any comment suffices
	MaxCount       int    // for Action == ActionCount
	TestPolicy     EscapeAction
}

// CommentSyntax describes how to recognize comments for the justification
// walk (spec §4.8) and the suppress directive parse (spec §4.9).
type CommentSyntax struct {
	Line       string // e.g. "//", "#"
	BlockStart string // e.g. "/*", "" if none
	BlockEnd   string // e.g. "*/"
}

// Adapter is the per-language configuration producer: glob sets, default
// escape patterns, comment syntax, and suppress directive prefixes.
type Adapter struct {
	Language Language

	SourceGlobs []string
	TestGlobs   []string
	IgnoreGlobs []string

	DefaultEscapes []EscapePattern
	Comment        CommentSyntax

	// SuppressPrefixes lists the literal directive prefixes the suppress
	// check scans for (spec §4.9), e.g. "//nolint", "# rubocop:disable".
	SuppressPrefixes []string

	// Extensions is the set of file extensions (including the leading dot)
	// this adapter claims, used by the registry's first-match selection.
	Extensions []string

	// MarkerFiles are root-relative filenames/globs whose presence selects
	// this adapter's Language as the project language (spec §3).
	MarkerFiles []string
}

func (a Adapter) matchesAny(globs []string, relPath string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, slashed); ok {
			return true
		}
	}
	return false
}

// Registry resolves a file path to a FileKind and an Adapter (spec §4.2).
type Registry struct {
	adapters []Adapter
	generic  Adapter
	language Language
}

// New builds a registry from the effective adapter configuration: one
// Adapter per configured language plus the always-present Generic fallback.
func New(adapters []Adapter, projectLanguage Language) *Registry {
	r := &Registry{
		adapters: adapters,
		generic:  Generic(),
		language: projectLanguage,
	}
	return r
}

// DetectLanguage inspects root for the first matching marker file, in the
// order spec §3 fixes: Cargo.toml, go.mod, package.json|tsconfig.json,
// Gemfile|*.gemspec|config.ru|config/application.rb, any *.sh, else Generic.
func DetectLanguage(root string, exists func(relPath string) bool, hasShellFiles func() bool) Language {
	switch {
	case exists("Cargo.toml"):
		return LanguageRust
	case exists("go.mod"):
		return LanguageGo
	case exists("package.json") || exists("tsconfig.json"):
		return LanguageJavaScript
	case exists("Gemfile") || hasGemspec(root, exists) || exists("config.ru") || exists("config/application.rb"):
		return LanguageRuby
	case hasShellFiles():
		return LanguageShell
	default:
		return LanguageGeneric
	}
}

func hasGemspec(root string, exists func(relPath string) bool) bool {
	// The exists closures callers pass test one literal path, so the
	// *.gemspec marker is matched by globbing root directly; exists is still
	// consulted for closures that answer for the pattern itself.
	if matches, _ := filepath.Glob(filepath.Join(root, "*.gemspec")); len(matches) > 0 {
		return true
	}
	return exists("*.gemspec")
}

// Classify assigns a FileKind to relPath using the contractual precedence
// ignore > test > source > other (spec §4.2), consulting every registered
// adapter's glob sets (union of built-in defaults and user overrides).
func (r *Registry) Classify(relPath string) FileKind {
	for _, a := range r.adapters {
		if a.matchesAny(a.IgnoreGlobs, relPath) {
			return KindOther
		}
	}
	if r.generic.matchesAny(r.generic.IgnoreGlobs, relPath) {
		return KindOther
	}

	for _, a := range r.adapters {
		if a.matchesAny(a.TestGlobs, relPath) {
			return KindTest
		}
	}
	if r.generic.matchesAny(r.generic.TestGlobs, relPath) {
		return KindTest
	}

	for _, a := range r.adapters {
		if a.matchesAny(a.SourceGlobs, relPath) {
			return KindSource
		}
	}
	if r.generic.matchesAny(r.generic.SourceGlobs, relPath) {
		return KindSource
	}

	return KindOther
}

// AdapterFor returns the adapter claiming relPath's extension, selected by
// first matching extension (spec §4.2); the Generic adapter is the fallback
// when no registered adapter claims it.
func (r *Registry) AdapterFor(relPath string) Adapter {
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, a := range r.adapters {
		for _, e := range a.Extensions {
			if e == ext {
				return a
			}
		}
	}
	return r.generic
}

// ProjectLanguage returns the language detected for the project root.
func (r *Registry) ProjectLanguage() Language {
	return r.language
}
