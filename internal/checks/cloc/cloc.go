// Package cloc implements the line-counting check (spec §4.7): blank,
// comment, and code line tallies per file, per-package aggregation, and
// size-threshold violations. It runs as an aggregate check rather than a
// per-file one because the per-package rollup needs every file's counts at
// once before it can emit by_package metrics.
package cloc

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// Thresholds bounds one file's size (spec §4.7). Zero means unbounded.
type Thresholds struct {
	MaxLinesSource int
	MaxLinesTest   int
	MaxTokens      int
}

// Config configures the CLOC check. Packages lists package-root prefixes
// (relative to the project root) used for longest-prefix file-to-package
// assignment; a file matching no prefix is left out of by_package.
type Config struct {
	Default  Thresholds
	Packages []string
}

// Counts is one file's (or package's) line tally.
type Counts struct {
	Blank   int `json:"blank"`
	Comment int `json:"comment"`
	Code    int `json:"code"`
	Tokens  int `json:"tokens"`
}

func (c *Counts) add(o Counts) {
	c.Blank += o.Blank
	c.Comment += o.Comment
	c.Code += o.Code
	c.Tokens += o.Tokens
}

func (c Counts) lines() int { return c.Blank + c.Comment + c.Code }

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

// New builds the CLOC check from cfg.
func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "cloc" }

var cfgTestAttr = regexp.MustCompile(`^\s*#\[cfg\(test\)\]\s*$`)
var fnName = regexp.MustCompile(`\bfn\s+([A-Za-z_][A-Za-z0-9_]*)`)

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	var violations []violation.Violation
	byPackage := make(map[string]*Counts)
	var total Counts

	for _, fc := range rc.Files {
		if fc.Content == nil || fc.Kind == adapters.KindOther {
			continue
		}
		data := fc.Content.Bytes()
		counts := countFile(data, fc.Adapter)

		if fc.Adapter.Language == adapters.LanguageRust && fc.Kind == adapters.KindSource {
			itemViolations, blocks := rustInlineTestViolations(fc.RelPath, data)
			violations = append(violations, itemViolations...)

			if len(blocks) > 0 {
				source, test := splitRustCounts(data, fc.Adapter, blocks)
				counts = source
				violations = append(violations, thresholdViolations(fc.RelPath, adapters.KindTest, test, c.cfg.Default)...)
				total.add(test)
				addToPackage(byPackage, c.cfg.Packages, fc.RelPath, test)
			}
		}

		violations = append(violations, thresholdViolations(fc.RelPath, fc.Kind, counts, c.cfg.Default)...)

		total.add(counts)
		addToPackage(byPackage, c.cfg.Packages, fc.RelPath, counts)
	}

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}

	var packageMetrics map[string]interface{}
	if len(byPackage) > 0 {
		packageMetrics = make(map[string]interface{}, len(byPackage))
		for pkg, counts := range byPackage {
			packageMetrics[pkg] = *counts
		}
	}

	return violation.Result{
		Name:           c.Name(),
		Status:         status,
		Violations:     violations,
		Metrics:        total,
		PackageMetrics: packageMetrics,
	}, nil
}

func thresholdViolations(relPath string, kind adapters.FileKind, counts Counts, th Thresholds) []violation.Violation {
	var out []violation.Violation

	maxLines := th.MaxLinesSource
	lineType := "file_too_large_lines"
	if kind == adapters.KindTest {
		maxLines = th.MaxLinesTest
		lineType = "file_too_large_lines_test"
	}
	if maxLines > 0 && counts.lines() > maxLines {
		out = append(out, violation.Violation{
			File:      violation.StrPtr(relPath),
			Type:      lineType,
			Advice:    "split this file or move unrelated logic into a new one",
			Value:     counts.lines(),
			Threshold: maxLines,
		})
	}
	if th.MaxTokens > 0 && counts.Tokens > th.MaxTokens {
		out = append(out, violation.Violation{
			File:      violation.StrPtr(relPath),
			Type:      "file_too_large_tokens",
			Advice:    "split this file; its approximate token count exceeds the configured limit",
			Value:     counts.Tokens,
			Threshold: th.MaxTokens,
		})
	}
	return out
}

// addToPackage folds counts into byPackage under relPath's longest-prefix
// package match, leaving byPackage untouched when relPath matches none.
func addToPackage(byPackage map[string]*Counts, packages []string, relPath string, counts Counts) {
	pkg := longestPrefixPackage(relPath, packages)
	if pkg == "" {
		return
	}
	if byPackage[pkg] == nil {
		byPackage[pkg] = &Counts{}
	}
	byPackage[pkg].add(counts)
}

// longestPrefixPackage assigns relPath to the longest matching entry in
// packages (spec §4.7's "at most one package by longest-prefix match").
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

// countFile classifies every line of data as blank, comment, or code and
// approximates the file's token count (spec §4.7: ceil(chars / 4)).
func countFile(data []byte, adapter adapters.Adapter) Counts {
	var counts Counts
	tallyLines(data, adapter, func(int) *Counts { return &counts })

	chars := utf8.RuneCountInString(string(data))
	counts.Tokens = int(math.Ceil(float64(chars) / 4.0))
	return counts
}

// tallyLines classifies every line of data as blank, comment, or code,
// routing each line's tally into whichever Counts bucketOf returns for that
// (1-based) line number. Shared by countFile's single-bucket case and
// splitRustCounts's source/test reclassification.
func tallyLines(data []byte, adapter adapters.Adapter, bucketOf func(lineNo int) *Counts) {
	nested := adapter.Language == adapters.LanguageRust
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	depth := 0
	for idx, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		code, hadComment, newDepth := stripComments(line, adapter.Comment, depth, nested)
		depth = newDepth

		counts := bucketOf(idx + 1)
		switch {
		case strings.TrimSpace(code) != "":
			counts.Code++
		case hadComment:
			counts.Comment++
		default:
			counts.Blank++
		}
	}
}

// splitRustCounts tallies data the same way countFile does, but routes lines
// falling inside blocks (spec §4.7's cfg(test) reclassification) into test
// instead of source. Tokens are split proportionally to each bucket's share
// of the file's classified lines, since the ceil(chars/4) approximation has
// no per-line boundary to split on exactly.
func splitRustCounts(data []byte, adapter adapters.Adapter, blocks []rustCfgTestBlock) (source, test Counts) {
	inBlock := make(map[int]bool)
	for _, b := range blocks {
		for l := b.Start; l <= b.End; l++ {
			inBlock[l] = true
		}
	}

	tallyLines(data, adapter, func(lineNo int) *Counts {
		if inBlock[lineNo] {
			return &test
		}
		return &source
	})

	chars := utf8.RuneCountInString(string(data))
	totalTokens := int(math.Ceil(float64(chars) / 4.0))
	if lines := source.lines() + test.lines(); lines > 0 {
		source.Tokens = totalTokens * source.lines() / lines
		test.Tokens = totalTokens - source.Tokens
	} else {
		source.Tokens = totalTokens
	}
	return source, test
}

// stripComments removes line- and block-comment spans from one line,
// returning the remaining (potential-code) text, whether any comment text
// was seen, and the block-comment depth carried into the next line. depth
// tracks nesting only when nested is true (Rust's block comments nest;
// most languages' don't).
func stripComments(line string, cs adapters.CommentSyntax, depth int, nested bool) (string, bool, int) {
	var b strings.Builder
	hadComment := false
	i := 0
	for i < len(line) {
		if depth > 0 {
			if cs.BlockEnd != "" && strings.HasPrefix(line[i:], cs.BlockEnd) {
				hadComment = true
				i += len(cs.BlockEnd)
				depth--
				continue
			}
			if nested && cs.BlockStart != "" && strings.HasPrefix(line[i:], cs.BlockStart) {
				depth++
				i += len(cs.BlockStart)
				continue
			}
			hadComment = true
			i++
			continue
		}
		if cs.Line != "" && strings.HasPrefix(line[i:], cs.Line) {
			hadComment = true
			break
		}
		if cs.BlockStart != "" && strings.HasPrefix(line[i:], cs.BlockStart) {
			hadComment = true
			depth = 1
			i += len(cs.BlockStart)
			continue
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String(), hadComment, depth
}

// rustCfgTestBlock is one #[cfg(test)]-attributed item's full contiguous
// extent (1-based, inclusive line numbers), used to reclassify its lines
// from Source to Test for accounting (spec §4.7).
type rustCfgTestBlock struct {
	Start int
	End   int
	Kind  string
}

// rustInlineTestViolations locates contiguous #[cfg(test)]-attributed item
// ranges, classifies each by item kind (spec §4.7): a test module, a bare
// attributed helper function, or any other attributed item, and computes
// each item's full block extent via the same brace-depth scan
// internal/checks/testscorrelation uses to find inline #[cfg(test)] blocks.
func rustInlineTestViolations(relPath string, data []byte) ([]violation.Violation, []rustCfgTestBlock) {
	lines := strings.Split(string(data), "\n")
	var out []violation.Violation
	var blocks []rustCfgTestBlock

	for i := 0; i < len(lines); i++ {
		if !cfgTestAttr.MatchString(lines[i]) {
			continue
		}
		j := i + 1
		for j < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j]), "#[") {
			j++
		}
		if j >= len(lines) {
			break
		}

		kind, violType, advice := classifyCfgTestItem(lines[j])

		end := j
		depth := 0
		started := false
		for k := j; k < len(lines); k++ {
			for _, ch := range lines[k] {
				switch ch {
				case '{':
					depth++
					started = true
				case '}':
					depth--
				}
			}
			end = k
			if started && depth <= 0 {
				break
			}
		}

		startLine := i + 1 // 1-based, the attribute line itself
		out = append(out, violation.Violation{
			File:   violation.StrPtr(relPath),
			Line:   violation.IntPtr(startLine),
			Type:   violType,
			Advice: advice,
			Value:  kind,
		})
		blocks = append(blocks, rustCfgTestBlock{Start: startLine, End: end + 1, Kind: kind})

		i = end // resume scanning after the item's full block, not just its declaration line
	}
	return out, blocks
}

func classifyCfgTestItem(decl string) (kind, violType, advice string) {
	trimmed := strings.TrimSpace(decl)
	switch {
	case strings.HasPrefix(trimmed, "mod "):
		if strings.Contains(trimmed, "test") {
			return "module", "inline_cfg_test", "inline test module counted toward this file's test accounting"
		}
		return "item", "cfg_test_item", "cfg(test)-gated item counted toward this file's test accounting"
	case fnName.MatchString(trimmed):
		name := fnName.FindStringSubmatch(trimmed)[1]
		if strings.HasPrefix(name, "test") {
			return "item", "cfg_test_item", "cfg(test)-gated test function counted toward this file's test accounting"
		}
		return "helper", "cfg_test_helper", "cfg(test)-gated helper function counted toward this file's test accounting"
	default:
		return "item", "cfg_test_item", "cfg(test)-gated item counted toward this file's test accounting"
	}
}
