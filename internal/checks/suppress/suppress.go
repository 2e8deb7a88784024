// Package suppress implements the lint-suppression check (spec §4.9):
// parses each language's suppression-directive syntax, resolves the
// governing policy per suppressed code (per-code allow/forbid lists take
// precedence over the scope's default policy), and emits suppress_missing_comment
// or suppress_forbidden as applicable. Runs per file since every decision is
// local to the directive's own line and its immediate context.
package suppress

import (
	"context"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// Policy is the governing treatment of a suppressed code (spec §4.9).
type Policy string

const (
	PolicyAllow   Policy = "allow"
	PolicyComment Policy = "comment"
	PolicyForbid  Policy = "forbid"
)

// ScopePolicy is one scope's (Source or Test) suppression policy.
type ScopePolicy struct {
	Default     Policy
	AllowCodes  []string
	ForbidCodes []string
}

func (sp ScopePolicy) resolve(code string) Policy {
	if code != "" {
		for _, c := range sp.ForbidCodes {
			if strings.EqualFold(c, code) {
				return PolicyForbid
			}
		}
		for _, c := range sp.AllowCodes {
			if strings.EqualFold(c, code) {
				return PolicyAllow
			}
		}
	}
	if sp.Default == "" {
		return PolicyComment
	}
	return sp.Default
}

// Config configures the suppress check. Typical defaults: Source requires a
// justification comment, Test allows suppression freely (spec §4.9).
type Config struct {
	Source ScopePolicy
	Test   ScopePolicy
}

// Check implements check.PerFileCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "suppress" }

// directive is one parsed suppression directive: the codes it names (empty
// means "global", e.g. a bare `//nolint`) and whether a reason/justification
// already accompanies it on its own line.
type directive struct {
	line      int // 1-based
	codes     []string
	hasReason bool
}

func (c *Check) CheckFile(_ context.Context, fc check.FileContext) ([]violation.Violation, error) {
	if fc.Content == nil || fc.Kind == adapters.KindOther {
		return nil, nil
	}
	directives := parseDirectives(fc.Adapter.Language, fc.Content.Bytes())
	if len(directives) == 0 {
		return nil, nil
	}

	scope := c.cfg.Source
	if fc.Kind == adapters.KindTest {
		scope = c.cfg.Test
	}

	lines := strings.Split(string(fc.Content.Bytes()), "\n")

	var out []violation.Violation
	for _, d := range directives {
		codes := d.codes
		if len(codes) == 0 {
			codes = []string{""}
		}
		for _, code := range codes {
			switch scope.resolve(code) {
			case PolicyForbid:
				out = append(out, violation.Violation{
					File:   violation.StrPtr(fc.RelPath),
					Line:   violation.IntPtr(d.line),
					Type:   "suppress_forbidden",
					Advice: "this suppression is forbidden in this scope; fix the underlying issue instead",
				})
			case PolicyComment:
				if d.hasReason || hasPrecedingComment(lines, d.line) {
					continue
				}
				out = append(out, violation.Violation{
					File:   violation.StrPtr(fc.RelPath),
					Line:   violation.IntPtr(d.line),
					Type:   "suppress_missing_comment",
					Advice: "add a reason for this suppression",
				})
			case PolicyAllow:
				// no-op
			}
		}
	}
	return out, nil
}

// hasPrecedingComment skips blank lines upward from the directive and reports
// whether the nearest non-blank line starts with `//`, `#` or `*`. Any such
// line counts as a justification; directive lines and Rust attributes
// (`#[...]`) are not told apart from plain comments.
func hasPrecedingComment(lines []string, directiveLine int) bool {
	i := directiveLine - 2 // 0-based index of the line above the directive
	for i >= 0 {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			i--
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "*") {
			return true
		}
		break
	}
	return false
}

var (
	goNolint     = regexp.MustCompile(`//\s*nolint(?::([\w,-]+))?(?:\s*//\s*(\S.*))?`)
	rustAttr     = regexp.MustCompile(`#\[(?:allow|expect)\(([^)]*)\)\]`)
	eslintNext   = regexp.MustCompile(`//\s*eslint-disable-next-line(?:\s+([\w,\-/ ]+))?`)
	eslintBlock  = regexp.MustCompile(`/\*\s*eslint-disable\b`)
	biomeIgnore  = regexp.MustCompile(`//\s*biome-ignore\s+(\S+)\s*:\s*(\S.*)?`)
	tsIgnore     = regexp.MustCompile(`//\s*@ts-(ignore|expect-error)\b(.*)`)
	rubocop      = regexp.MustCompile(`#\s*rubocop:(disable|todo)\s+([\w/,. ]+)`)
	standardDis  = regexp.MustCompile(`#\s*standard:disable\s+([\w/,. ]+)`)
	shellcheckRe = regexp.MustCompile(`#\s*shellcheck\s+disable=([A-Z0-9,]+)`)
)

func parseDirectives(lang adapters.Language, data []byte) []directive {
	lines := strings.Split(string(data), "\n")
	var out []directive

	for i, line := range lines {
		lineNo := i + 1
		switch lang {
		case adapters.LanguageGo:
			if m := goNolint.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[1]), hasReason: m[2] != ""})
			}
		case adapters.LanguageRust:
			if m := rustAttr.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[1])})
			}
		case adapters.LanguageJavaScript:
			if m := eslintNext.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[1])})
			}
			if eslintBlock.MatchString(line) {
				out = append(out, directive{line: lineNo})
			}
			if m := biomeIgnore.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: []string{m[1]}, hasReason: strings.TrimSpace(m[2]) != ""})
			}
			if m := tsIgnore.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: []string{"ts-" + m[1]}, hasReason: strings.TrimSpace(m[2]) != ""})
			}
		case adapters.LanguageRuby:
			if m := rubocop.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[2])})
			}
			if m := standardDis.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[1])})
			}
		case adapters.LanguageShell:
			if m := shellcheckRe.FindStringSubmatch(line); m != nil {
				out = append(out, directive{line: lineNo, codes: splitCodes(m[1])})
			}
		}
	}
	return out
}

func splitCodes(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
