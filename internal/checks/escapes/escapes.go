// Package escapes implements the escapes check (spec §4.8): scans the
// effective pattern set (adapter defaults plus user additions) against every
// classified file, applying each pattern's count/comment/forbid action and
// per-scope test policy. Runs as an aggregate check because the count
// action's threshold_exceeded violation and the by_pattern/by_package
// metrics both need totals across the whole file set.
package escapes

import (
	"context"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/matcher"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// Config configures the escapes check. Extra adds user-configured patterns
// on top of each language's adapter defaults.
type Config struct {
	Extra    map[adapters.Language][]adapters.EscapePattern
	Packages []string

	// Cache, when set, memoizes compiled patterns across RunAggregate calls
	// that share it in the same process instead of recompiling once per
	// RunAggregate call.
	Cache *matcher.Cache
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "escapes" }

// PatternMetrics is one pattern's match count, split by file scope. Exported
// so callers (e.g. the ratchet metrics feeder) can read it back out of a
// violation.Result's Metrics map without reparsing.
type PatternMetrics struct {
	Source int `json:"source"`
	Test   int `json:"test"`
}

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	compiled := make(map[string]matcher.Matcher)
	byPattern := make(map[string]*PatternMetrics)
	byPackage := make(map[string]map[string]*PatternMetrics)
	countTotals := make(map[string]int)
	maxCounts := make(map[string]int)
	var violations []violation.Violation

	for _, fc := range rc.Files {
		if fc.Content == nil || fc.Kind == adapters.KindOther {
			continue
		}
		patterns := effectivePatterns(fc.Adapter, c.cfg.Extra)
		if len(patterns) == 0 {
			continue
		}

		data := fc.Content.Bytes()
		var lines []string // split lazily, only if a comment action needs it
		idx := matcher.NewLineIndex(data)
		pkg := longestPrefixPackage(fc.RelPath, c.cfg.Packages)

		for _, p := range patterns {
			action := effectiveAction(p, fc.Kind)
			if action == adapters.ActionAllow {
				continue
			}

			m, ok := compiled[p.Pattern]
			if !ok {
				var compiledM matcher.Matcher
				var err error
				if c.cfg.Cache != nil {
					compiledM, _, err = c.cfg.Cache.Compile(p.Pattern)
				} else {
					compiledM, _, err = matcher.Compile(p.Pattern)
				}
				if err != nil {
					continue // malformed pattern: skip rather than abort the run
				}
				compiled[p.Pattern] = compiledM
				m = compiledM
			}

			matches := m.FindAll(data)
			if len(matches) == 0 {
				continue
			}

			bumpMetrics(byPattern, p.Name, fc.Kind, len(matches))
			if pkg != "" {
				if byPackage[pkg] == nil {
					byPackage[pkg] = make(map[string]*PatternMetrics)
				}
				bumpMetrics(byPackage[pkg], p.Name, fc.Kind, len(matches))
			}

			switch action {
			case adapters.ActionForbid:
				// effectiveAction already resolved Test scope's own policy,
				// so a forbid here applies regardless of kind (spec §4.8).
				violations = append(violations, forbidViolations(fc.RelPath, p, idx, matches)...)

			case adapters.ActionComment:
				if lines == nil {
					lines = strings.Split(string(data), "\n")
				}
				violations = append(violations, commentViolations(fc.RelPath, p, lines, idx, matches)...)

			case adapters.ActionCount:
				countTotals[p.Name] += len(matches)
				maxCounts[p.Name] = p.MaxCount
			}
		}
	}

	violations = append(violations, thresholdExceededViolations(countTotals, maxCounts)...)

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}

	return violation.Result{
		Name:           c.Name(),
		Status:         status,
		Violations:     violations,
		Metrics:        toMetricsMap(byPattern),
		PackageMetrics: toPackageMetricsMap(byPackage),
	}, nil
}

// effectivePatterns merges a file's adapter default escapes with any
// user-configured additions for that language.
func effectivePatterns(a adapters.Adapter, extra map[adapters.Language][]adapters.EscapePattern) []adapters.EscapePattern {
	out := append([]adapters.EscapePattern(nil), a.DefaultEscapes...)
	out = append(out, extra[a.Language]...)
	return out
}

// effectiveAction resolves which action governs a pattern in a given file's
// scope (spec §4.8): Source uses the pattern's base action; Test uses its
// configured test policy.
func effectiveAction(p adapters.EscapePattern, kind adapters.FileKind) adapters.EscapeAction {
	if kind == adapters.KindTest {
		if p.TestPolicy == "" {
			return adapters.ActionAllow
		}
		return p.TestPolicy
	}
	return p.Action
}

func forbidViolations(relPath string, p adapters.EscapePattern, idx *matcher.LineIndex, matches []matcher.Match) []violation.Violation {
	out := make([]violation.Violation, 0, len(matches))
	for _, m := range matches {
		out = append(out, violation.Violation{
			File:    violation.StrPtr(relPath),
			Line:    violation.IntPtr(idx.Line(m.ByteOffset)),
			Type:    "forbidden",
			Advice:  "remove this use of " + p.Name + " or replace it with an approved alternative",
			Pattern: violation.StrPtr(p.Name),
		})
	}
	return out
}

func commentViolations(relPath string, p adapters.EscapePattern, lines []string, idx *matcher.LineIndex, matches []matcher.Match) []violation.Violation {
	var out []violation.Violation
	for _, m := range matches {
		line := idx.Line(m.ByteOffset)
		if hasJustification(lines, line, p.RequiredText) {
			continue
		}
		out = append(out, violation.Violation{
			File:    violation.StrPtr(relPath),
			Line:    violation.IntPtr(line),
			Type:    "missing_comment",
			Advice:  justificationAdvice(p),
			Pattern: violation.StrPtr(p.Name),
		})
	}
	return out
}

func justificationAdvice(p adapters.EscapePattern) string {
	if p.RequiredText != "" {
		return "add a justification comment containing " + p.RequiredText + " above or after this use of " + p.Name
	}
	return "add a justification comment above or after this use of " + p.Name
}

// hasJustification checks the matched line itself, then walks upward over
// comment-only lines (skipping blank lines) looking for a comment that
// satisfies requiredText (spec §4.8).
func hasJustification(lines []string, matchLine int, requiredText string) bool {
	i := matchLine - 1 // 0-based index of the matched line
	if i < 0 || i >= len(lines) {
		return false
	}
	if lineHasComment(lines[i], requiredText) {
		return true
	}

	i--
	for i >= 0 {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			i--
			continue
		}
		if !isCommentOnlyLine(trimmed) {
			break
		}
		if containsRequiredText(trimmed, requiredText) {
			return true
		}
		i--
	}
	return false
}

func lineHasComment(line, requiredText string) bool {
	idx := strings.Index(line, "//")
	if idx < 0 {
		idx = strings.Index(line, "#")
	}
	if idx < 0 {
		return false
	}
	return containsRequiredText(line[idx:], requiredText)
}

func isCommentOnlyLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}

func containsRequiredText(comment, requiredText string) bool {
	if requiredText == "" {
		return true
	}
	return strings.Count(comment, requiredText) == 1
}

func bumpMetrics(m map[string]*PatternMetrics, name string, kind adapters.FileKind, n int) {
	if m[name] == nil {
		m[name] = &PatternMetrics{}
	}
	if kind == adapters.KindTest {
		m[name].Test += n
	} else {
		m[name].Source += n
	}
}

// thresholdExceededViolations emits one threshold_exceeded violation per
// count-action pattern whose total occurrences exceed its configured
// MaxCount (spec §4.8).
func thresholdExceededViolations(totals, maxCounts map[string]int) []violation.Violation {
	var out []violation.Violation
	for name, total := range totals {
		max := maxCounts[name]
		if total > max {
			out = append(out, violation.Violation{
				Type:      "threshold_exceeded",
				Advice:    "reduce uses of " + name + " to at most " + strconv.Itoa(max),
				Pattern:   violation.StrPtr(name),
				Value:     total,
				Threshold: max,
			})
		}
	}
	return out
}

func toMetricsMap(byPattern map[string]*PatternMetrics) map[string]interface{} {
	if len(byPattern) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(byPattern))
	for name, m := range byPattern {
		out[name] = *m
	}
	return out
}

func toPackageMetricsMap(byPackage map[string]map[string]*PatternMetrics) map[string]interface{} {
	if len(byPackage) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(byPackage))
	for pkg, m := range byPackage {
		out[pkg] = toMetricsMap(m)
	}
	return out
}

func longestPrefixPackage(relPath string, packages []string) string {
	best := ""
	for _, p := range packages {
		prefix := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(relPath, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	return strings.TrimSuffix(best, "/")
}
