// Package testscorrelation implements the tests-correlation check (spec
// §4.13): for each added or modified Source file in a change set, decide
// whether the change set also touches a corresponding test, trying several
// correlation strategies in order before emitting missing_tests.
package testscorrelation

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/gitctx"
	"github.com/alfredjeanlab/quench/internal/matcher"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// PlaceholderPolicy governs whether a placeholder test (#[ignore], todo!(),
// test.todo(), test.skip()) counts as correlation.
type PlaceholderPolicy string

const (
	PlaceholderAllow  PlaceholderPolicy = "allow" // default
	PlaceholderForbid PlaceholderPolicy = "forbid"
)

// ScopeMode selects how the change set is grouped for the asymmetric
// test-only/source-only rule (spec §4.13).
type ScopeMode string

const (
	ScopeBranch ScopeMode = "branch"
	ScopeCommit ScopeMode = "commit"
)

// Config configures the tests-correlation check.
type Config struct {
	Scope        ScopeMode
	Placeholders PlaceholderPolicy
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "tests" }

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	if rc.ChangeSet == nil {
		return violation.Result{Name: c.Name(), Status: violation.StatusSkipped}, nil
	}

	byPath := make(map[string]check.FileContext, len(rc.Files))
	for _, fc := range rc.Files {
		byPath[fc.RelPath] = fc
	}

	if c.cfg.Scope == ScopeCommit && allTestOnly(rc.ChangeSet.Files, rc.Registry) {
		// Degraded commit-scope handling: without per-commit boundaries (not
		// yet wired into internal/gitctx), a change set that is entirely
		// Test files is treated the same as a test-only commit — allowed.
		return violation.Result{Name: c.Name(), Status: violation.StatusPassed}, nil
	}

	testBases := buildTestBaseIndex(rc.ChangeSet.Files, rc.Registry)

	var violations []violation.Violation
	for _, f := range rc.ChangeSet.Files {
		if rc.Registry.Classify(f.RelPath) != adapters.KindSource {
			continue
		}
		if isExcluded(f.RelPath) {
			continue
		}
		adapter := rc.Registry.AdapterFor(f.RelPath)
		if c.correlates(f, adapter, testBases, byPath, rc.ChangeSet) {
			continue
		}

		changeType := f.ChangeType
		lines := f.LinesChanged
		violations = append(violations, violation.Violation{
			File:         violation.StrPtr(f.RelPath),
			Type:         "missing_tests",
			Advice:       "add or update a test correlated with this change",
			ChangeType:   &changeType,
			LinesChanged: &lines,
		})
	}

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}
	return violation.Result{Name: c.Name(), Status: status, Violations: violations}, nil
}

func allTestOnly(files []gitctx.FileChange, reg *adapters.Registry) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if reg.Classify(f.RelPath) != adapters.KindTest {
			return false
		}
	}
	return true
}

var affixes = []string{"_test", "_tests", ".test", ".spec", "test_"}

// stripAffixes removes the first matching affix from base (spec §4.13),
// so e.g. "widget_test" and "widget" correlate to the same base name.
func stripAffixes(base string) string {
	for _, a := range affixes {
		if strings.HasPrefix(a, ".") {
			if strings.HasSuffix(base, a) {
				return strings.TrimSuffix(base, a)
			}
			continue
		}
		if strings.HasSuffix(a, "_") {
			if strings.HasPrefix(base, a) {
				return strings.TrimPrefix(base, a)
			}
			continue
		}
		if strings.HasSuffix(base, a) {
			return strings.TrimSuffix(base, a)
		}
	}
	return base
}

func baseWithoutExt(relPath string) string {
	base := path.Base(relPath)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

func buildTestBaseIndex(files []gitctx.FileChange, reg *adapters.Registry) map[string]bool {
	idx := make(map[string]bool)
	for _, f := range files {
		if reg.Classify(f.RelPath) != adapters.KindTest {
			continue
		}
		idx[stripAffixes(baseWithoutExt(f.RelPath))] = true
	}
	return idx
}

var defaultExcludedBasenames = map[string]bool{
	"main.go": true, "main.rs": true, "lib.rs": true, "mod.rs": true,
	"index.js": true, "index.ts": true, "index.jsx": true, "index.tsx": true,
	"__init__.py": true,
}

func isExcluded(relPath string) bool {
	if defaultExcludedBasenames[path.Base(relPath)] {
		return true
	}
	return strings.Contains(relPath, "/generated/") || strings.HasPrefix(relPath, "generated/")
}

func (c *Check) correlates(f gitctx.FileChange, adapter adapters.Adapter, testBases map[string]bool, byPath map[string]check.FileContext, cs *gitctx.ChangeSet) bool {
	base := stripAffixes(baseWithoutExt(f.RelPath))

	// 1. expected locations
	for _, candidate := range expectedTestPaths(f.RelPath, adapter.Language) {
		if cs.HasFile(candidate) {
			return true
		}
	}

	// 2. base-name index
	if testBases[base] {
		return true
	}

	// 3. inline (Rust #[cfg(test)] diff non-empty)
	if adapter.Language == adapters.LanguageRust {
		if fc, ok := byPath[f.RelPath]; ok && len(f.AddedLines) > 0 {
			if inlineCfgTestTouched(fc.Content.Bytes(), f.AddedLines) {
				return true
			}
		}
	}

	// 4. placeholder
	if c.cfg.Placeholders != PlaceholderForbid {
		for _, candidate := range expectedTestPaths(f.RelPath, adapter.Language) {
			if fc, ok := byPath[candidate]; ok && isPlaceholderTest(fc.Content.Bytes()) {
				return true
			}
		}
	}

	return false
}

func expectedTestPaths(relPath string, lang adapters.Language) []string {
	dir := path.Dir(relPath)
	base := baseWithoutExt(relPath)
	ext := path.Ext(relPath)

	switch lang {
	case adapters.LanguageGo:
		return []string{path.Join(dir, base+"_test.go")}
	case adapters.LanguageRust:
		return []string{path.Join(dir, "tests", base+".rs"), path.Join("tests", base+".rs")}
	case adapters.LanguageJavaScript:
		return []string{
			path.Join(dir, "__tests__", base+".test"+ext),
			path.Join(dir, base+".test"+ext),
			path.Join(dir, base+".spec"+ext),
		}
	case adapters.LanguageRuby:
		return []string{
			path.Join("spec", dir, base+"_spec.rb"),
			path.Join("test", dir, base+"_test.rb"),
		}
	case adapters.LanguageShell:
		return []string{
			path.Join(dir, base+"_test.bats"),
			path.Join(dir, "test_"+base+".bats"),
		}
	default:
		return []string{path.Join(dir, base+"_test"+ext)}
	}
}

var cfgTestAttr = regexp.MustCompile(`(?m)^\s*#\[cfg\(test\)\]\s*$`)

// inlineCfgTestTouched reports whether any of addedLines falls inside a
// #[cfg(test)] block, by brace-depth scanning from each attribute line
// (the same technique internal/checks/cloc uses to find the block's extent).
func inlineCfgTestTouched(data []byte, addedLines []int) bool {
	added := make(map[int]bool, len(addedLines))
	for _, l := range addedLines {
		added[l] = true
	}

	locs := cfgTestAttr.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return false
	}

	idx := matcher.NewLineIndex(data)
	lines := strings.Split(string(data), "\n")

	for _, loc := range locs {
		attrLine := idx.Line(loc[0])
		depth := 0
		started := false
		for i := attrLine; i <= len(lines); i++ {
			l := lines[i-1]
			for _, ch := range l {
				switch ch {
				case '{':
					depth++
					started = true
				case '}':
					depth--
				}
			}
			if added[i] {
				return true
			}
			if started && depth <= 0 {
				break
			}
		}
	}
	return false
}

var placeholderMarkers = []string{"#[ignore]", "todo!()", "test.todo(", "test.skip("}

func isPlaceholderTest(data []byte) bool {
	content := string(data)
	for _, m := range placeholderMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
