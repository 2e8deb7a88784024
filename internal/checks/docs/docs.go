// Package docs implements the documentation-index check (spec §4.12):
// index-file detection and traversal (exists/toc/linked/auto modes) plus two
// always-on sub-checks, TOC validation and markdown link validation, run
// over a configured set of markdown globs.
package docs

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// IndexMode selects how the specs directory's table of contents is derived.
type IndexMode string

const (
	ModeExists IndexMode = "exists"
	ModeTOC    IndexMode = "toc"
	ModeLinked IndexMode = "linked"
	ModeAuto   IndexMode = "auto"
)

// DefaultIndexPriority is the index-file base-name search order (spec §4.12).
var DefaultIndexPriority = []string{"CLAUDE.md", "00-overview.md", "overview.md"}

// Config configures the docs check.
type Config struct {
	SpecsDir      string
	Mode          IndexMode
	IndexPriority []string // empty uses DefaultIndexPriority
	MarkdownGlobs []string // globs the always-on sub-checks walk; empty matches every .md file
}

func (c Config) priority() []string {
	if len(c.IndexPriority) == 0 {
		return DefaultIndexPriority
	}
	return c.IndexPriority
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "docs" }

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	if c.cfg.SpecsDir == "" {
		return violation.Result{Name: c.Name(), Status: violation.StatusSkipped}, nil
	}

	byPath := make(map[string]check.FileContext, len(rc.Files))
	var markdown []check.FileContext
	for _, fc := range rc.Files {
		byPath[fc.RelPath] = fc
		if strings.HasSuffix(fc.RelPath, ".md") {
			markdown = append(markdown, fc)
		}
	}

	var violations []violation.Violation

	indexPath, found := findIndex(markdown, c.cfg.SpecsDir, c.cfg.priority())
	if !found {
		violations = append(violations, violation.Violation{
			Type:   "missing_index",
			Advice: "add one of the configured index files (" + strings.Join(c.cfg.priority(), ", ") + ") under " + c.cfg.SpecsDir,
		})
	} else {
		indexContent := string(byPath[indexPath].Content.Bytes())
		mode := c.cfg.Mode
		if mode == "" || mode == ModeAuto {
			if len(extractTreeBlocks(indexContent)) > 0 {
				mode = ModeTOC
			} else {
				mode = ModeLinked
			}
		}

		specFiles := specFilesUnder(markdown, c.cfg.SpecsDir, indexPath)

		switch mode {
		case ModeTOC:
			referenced := referencedBySpec(indexContent, c.cfg.SpecsDir)
			violations = append(violations, unreachableViolations(specFiles, referenced)...)
		case ModeLinked:
			visited := bfsLinks(indexPath, byPath, c.cfg.SpecsDir)
			violations = append(violations, unreachableViolations(specFiles, visited)...)
		case ModeExists:
			// presence alone is sufficient; no further traversal.
		}
	}

	violations = append(violations, tocValidationViolations(markdown, c.cfg.MarkdownGlobs, rc.Root, byPath)...)
	violations = append(violations, linkValidationViolations(markdown, c.cfg.MarkdownGlobs, byPath)...)

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}
	return violation.Result{Name: c.Name(), Status: status, Violations: violations}, nil
}

func findIndex(markdown []check.FileContext, specsDir string, priority []string) (string, bool) {
	for _, name := range priority {
		want := path.Join(specsDir, name)
		for _, fc := range markdown {
			if fc.RelPath == want {
				return fc.RelPath, true
			}
		}
	}
	return "", false
}

func specFilesUnder(markdown []check.FileContext, specsDir, indexPath string) []string {
	prefix := strings.TrimSuffix(specsDir, "/") + "/"
	var out []string
	for _, fc := range markdown {
		if fc.RelPath != indexPath && strings.HasPrefix(fc.RelPath, prefix) {
			out = append(out, fc.RelPath)
		}
	}
	return out
}

func unreachableViolations(specFiles []string, reachable map[string]bool) []violation.Violation {
	var out []violation.Violation
	for _, f := range specFiles {
		if !reachable[f] {
			out = append(out, violation.Violation{
				File:   violation.StrPtr(f),
				Type:   "unreachable_spec",
				Advice: "reference this file from the specs index, or remove it",
			})
		}
	}
	return out
}

var treeBlockFence = regexp.MustCompile("(?s)```tree\\n(.*?)```")
var treeEntry = regexp.MustCompile(`^((?:[│ ]{4})*)(?:├── |└── )(.+)$`)

func extractTreeBlocks(content string) []string {
	var out []string
	for _, m := range treeBlockFence.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return out
}

// referencedBySpec parses every fenced tree block in content and resolves
// each file-shaped entry relative to specsDir (spec §4.12's toc mode).
func referencedBySpec(content, specsDir string) map[string]bool {
	reachable := make(map[string]bool)
	for _, block := range extractTreeBlocks(content) {
		reachable = mergeReachable(reachable, parseTreeBlock(block, specsDir))
	}
	return reachable
}

func mergeReachable(a, b map[string]bool) map[string]bool {
	for k := range b {
		a[k] = true
	}
	return a
}

func parseTreeBlock(block, specsDir string) map[string]bool {
	reachable := make(map[string]bool)
	var stack []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := treeEntry.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		depth := len(m[1]) / 4
		name := strings.TrimSpace(m[2])
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")

		if depth > len(stack) {
			depth = len(stack)
		}
		stack = stack[:depth]

		if isDir {
			stack = append(stack, name)
			continue
		}
		full := path.Join(append(append([]string{specsDir}, stack...), name)...)
		reachable[full] = true
	}
	return reachable
}

var mdLink = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)

// bfsLinks walks markdown links breadth-first from startPath, following only
// .md targets inside specsDir (spec §4.12's linked mode).
func bfsLinks(startPath string, byPath map[string]check.FileContext, specsDir string) map[string]bool {
	visited := map[string]bool{startPath: true}
	queue := []string{startPath}
	prefix := strings.TrimSuffix(specsDir, "/") + "/"

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		fc, ok := byPath[cur]
		if !ok {
			continue
		}
		content := string(fc.Content.Bytes())
		dir := path.Dir(cur)
		for _, m := range mdLink.FindAllStringSubmatch(content, -1) {
			target := stripAnchor(m[1])
			if target == "" || strings.Contains(target, "://") || !strings.HasSuffix(target, ".md") {
				continue
			}
			resolved := path.Clean(path.Join(dir, target))
			if !strings.HasPrefix(resolved, prefix) {
				continue
			}
			if visited[resolved] {
				continue
			}
			visited[resolved] = true
			queue = append(queue, resolved)
		}
	}
	return visited
}

func stripAnchor(target string) string {
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	return strings.TrimSpace(target)
}

func matchesGlobs(relPath string, globs []string) bool {
	if len(globs) == 0 {
		return strings.HasSuffix(relPath, ".md")
	}
	for _, g := range globs {
		if matched, _ := path.Match(g, relPath); matched {
			return true
		}
		if matched, _ := path.Match(g, path.Base(relPath)); matched {
			return true
		}
	}
	return false
}

// tocValidationViolations checks every file-shaped tree-block entry in every
// matched markdown file resolves, trying three strategies in order (spec
// §4.12): relative to the containing file, relative to the project root,
// and with one leading path component stripped.
func tocValidationViolations(markdown []check.FileContext, globs []string, root string, byPath map[string]check.FileContext) []violation.Violation {
	var out []violation.Violation
	for _, fc := range markdown {
		if !matchesGlobs(fc.RelPath, globs) {
			continue
		}
		content := string(fc.Content.Bytes())
		dir := path.Dir(fc.RelPath)
		for _, block := range extractTreeBlocks(content) {
			for _, entry := range flattenTreeEntries(block) {
				if resolveEntry(entry, dir, byPath) {
					continue
				}
				out = append(out, violation.Violation{
					File:   violation.StrPtr(fc.RelPath),
					Type:   "broken_toc",
					Advice: "fix or remove the tree entry \"" + entry + "\"; it does not resolve to a file",
				})
			}
		}
	}
	return out
}

// flattenTreeEntries returns every file-shaped leaf's raw (unresolved) path,
// built the same way parseTreeBlock does but without anchoring to specsDir.
func flattenTreeEntries(block string) []string {
	var out []string
	var stack []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := treeEntry.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		depth := len(m[1]) / 4
		name := strings.TrimSpace(m[2])
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = stack[:depth]
		if isDir {
			stack = append(stack, name)
			continue
		}
		out = append(out, path.Join(append(append([]string{}, stack...), name)...))
	}
	return out
}

func resolveEntry(entry, containingDir string, byPath map[string]check.FileContext) bool {
	candidates := []string{
		path.Clean(path.Join(containingDir, entry)),
		path.Clean(entry),
	}
	if parts := strings.SplitN(entry, "/", 2); len(parts) == 2 {
		candidates = append(candidates, path.Clean(parts[1]))
	}
	for _, cand := range candidates {
		if _, ok := byPath[cand]; ok {
			return true
		}
	}
	return false
}

func linkValidationViolations(markdown []check.FileContext, globs []string, byPath map[string]check.FileContext) []violation.Violation {
	var out []violation.Violation
	for _, fc := range markdown {
		if !matchesGlobs(fc.RelPath, globs) {
			continue
		}
		content := string(fc.Content.Bytes())
		dir := path.Dir(fc.RelPath)
		for _, m := range mdLink.FindAllStringSubmatch(content, -1) {
			target := stripAnchor(m[1])
			if target == "" || strings.Contains(target, "://") {
				continue
			}
			resolved := path.Clean(path.Join(dir, target))
			if _, ok := byPath[resolved]; ok {
				continue
			}
			out = append(out, violation.Violation{
				File:   violation.StrPtr(fc.RelPath),
				Type:   "broken_link",
				Advice: "fix or remove the link to \"" + target + "\"; it does not resolve to a file",
			})
		}
	}
	return out
}
