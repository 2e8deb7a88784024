// Package matcher compiles a user-supplied pattern string to the fastest
// applicable matcher tier (spec §4.3): byte-literal search, multi-literal
// Aho-Corasick, or full regex. All three tiers implement Matcher and are
// required to produce an identical ordered match set for equivalent input —
// callers never need to know which tier a given pattern landed on.
package matcher

import (
	"regexp"
	"sort"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Match is one pattern occurrence: a byte range into the searched content.
type Match struct {
	ByteOffset int
	Length     int
}

// Matcher finds every non-overlapping-by-priority occurrence of a compiled
// pattern in content. Implementations are safe for concurrent use by
// multiple goroutines against different content (they hold no per-call
// mutable state).
type Matcher interface {
	FindAll(content []byte) []Match
}

// Tier identifies which matcher tier a compiled pattern landed on, exposed
// for diagnostics and the conformance test in §8 invariant 6.
type Tier int

const (
	TierLiteral Tier = iota
	TierMultiLiteral
	TierRegex
)

func (t Tier) String() string {
	switch t {
	case TierLiteral:
		return "literal"
	case TierMultiLiteral:
		return "multi-literal"
	case TierRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// metacharacters that disqualify a pattern from the literal tier.
const metacharacters = `.+*?()[]{}|^$\`

// Compile normalizes and compiles pattern to the cheapest tier that can
// express it exactly:
//
//  1. no metacharacters at all → byte-literal search.
//  2. a flat top-level alternation of literal-only alternatives (optionally
//     parenthesized, e.g. "foo|bar|baz") → multi-literal Aho-Corasick.
//  3. anything else → regex.
func Compile(pattern string) (Matcher, Tier, error) {
	if pattern == "" {
		return nil, TierLiteral, errEmptyPattern
	}

	if !strings.ContainsAny(pattern, metacharacters) {
		return literalMatcher(pattern), TierLiteral, nil
	}

	if alts, ok := flatLiteralAlternation(pattern); ok {
		m := ahocorasick.NewTrieBuilder().AddStrings(alts).Build()
		return &multiLiteralMatcher{trie: m}, TierMultiLiteral, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, TierRegex, err
	}
	return &regexMatcher{re: re}, TierRegex, nil
}

var errEmptyPattern = errString("empty pattern")

type errString string

func (e errString) Error() string { return string(e) }

// flatLiteralAlternation reports whether pattern is exactly a top-level
// alternation of metacharacter-free alternatives, optionally wrapped in a
// single non-capturing or capturing group: "foo|bar", "(foo|bar)",
// "(?:foo|bar)". Any other construct (nested groups, anchors, char classes
// inside an alternative, …) disqualifies the pattern for this tier.
func flatLiteralAlternation(pattern string) (alts []string, ok bool) {
	body := pattern
	if strings.HasPrefix(body, "(?:") && strings.HasSuffix(body, ")") {
		body = body[3 : len(body)-1]
	} else if strings.HasPrefix(body, "(") && strings.HasSuffix(body, ")") {
		body = body[1 : len(body)-1]
	}

	if !strings.Contains(body, "|") {
		return nil, false
	}

	parts := strings.Split(body, "|")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, metacharacters) {
			return nil, false
		}
	}
	return parts, true
}

// literalMatcher is the byte-search tier. strings.Index / bytes.Index in the
// Go runtime use an optimized search (Rabin-Karp with a fast path for short
// needles) that benefits from SIMD-capable primitives on amd64/arm64; quench
// relies on that rather than hand-rolling SIMD itself.
type literalMatcher string

func (m literalMatcher) FindAll(content []byte) []Match {
	needle := string(m)
	var matches []Match
	start := 0
	for {
		idx := strings.Index(string(content[start:]), needle)
		if idx < 0 {
			break
		}
		abs := start + idx
		matches = append(matches, Match{ByteOffset: abs, Length: len(needle)})
		start = abs + len(needle)
		if start > len(content) {
			break
		}
	}
	return matches
}

type multiLiteralMatcher struct {
	trie *ahocorasick.Trie
}

func (m *multiLiteralMatcher) FindAll(content []byte) []Match {
	hits := m.trie.Match(content)
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{ByteOffset: int(h.Pos()), Length: len(h.Match())})
	}
	return resolveOverlaps(matches)
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) FindAll(content []byte) []Match {
	locs := m.re.FindAllIndex(content, -1)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{ByteOffset: loc[0], Length: loc[1] - loc[0]})
	}
	return resolveOverlaps(matches)
}

// resolveOverlaps enforces the cross-tier contract guarantee (spec §4.3):
// matches sorted by byte offset; when two matches overlap, the earlier start
// wins, and among equal starts the longer match wins.
func resolveOverlaps(matches []Match) []Match {
	if len(matches) < 2 {
		return matches
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].ByteOffset != matches[j].ByteOffset {
			return matches[i].ByteOffset < matches[j].ByteOffset
		}
		return matches[i].Length > matches[j].Length
	})

	result := matches[:0:0]
	result = append(result, matches[0])
	for _, m := range matches[1:] {
		last := result[len(result)-1]
		if m.ByteOffset < last.ByteOffset+last.Length {
			continue // overlaps the winning match; earliest-start-longest-length already kept it
		}
		result = append(result, m)
	}
	return result
}
