// Package agents implements the agent-context-file check (spec §4.11):
// presence/forbid rules, cross-file section sync, required/forbidden
// sections, markdown content rules (tables, diagrams), and size limits for
// agent instruction files (CLAUDE.md, AGENTS.md, .cursorrules, ...) at the
// project root and per-package scope.
package agents

import (
	"context"
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// FilePolicy governs whether an agent file must exist or must not.
type FilePolicy string

const (
	PolicyRequired FilePolicy = "required"
	PolicyForbid   FilePolicy = "forbid"
)

// AgentFile is one configured agent-context filename and its policy.
type AgentFile struct {
	Name   string
	Policy FilePolicy
}

// RequiredSection is a required H2 section, with optional per-section advice.
type RequiredSection struct {
	Name   string
	Advice string
}

// ScopeConfig is the rule set applied at one scope (root, or each package).
type ScopeConfig struct {
	Files                 []AgentFile
	Sync                  bool
	SyncSource            string // filename designated the sync source of truth
	RequiredSections      []RequiredSection
	ForbiddenSectionGlobs []string
	MaxLines              int
	MaxTokens             int
}

// Config configures the agents check.
type Config struct {
	Root          ScopeConfig
	Package       ScopeConfig
	Packages      []string
	CheckTables   bool
	CheckDiagrams bool
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "agents" }

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	byPath := make(map[string]check.FileContext, len(rc.Files))
	for _, fc := range rc.Files {
		byPath[fc.RelPath] = fc
	}

	var violations []violation.Violation

	violations = append(violations, c.checkScope("", c.cfg.Root, byPath)...)
	for _, pkg := range c.cfg.Packages {
		violations = append(violations, c.checkScope(strings.TrimSuffix(pkg, "/")+"/", c.cfg.Package, byPath)...)
	}

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}
	return violation.Result{Name: c.Name(), Status: status, Violations: violations}, nil
}

func (c *Check) checkScope(prefix string, sc ScopeConfig, byPath map[string]check.FileContext) []violation.Violation {
	var out []violation.Violation

	for _, af := range sc.Files {
		relPath := path.Join(prefix, af.Name)
		fc, exists := byPath[relPath]
		switch af.Policy {
		case PolicyRequired:
			if !exists {
				out = append(out, violation.Violation{
					File:   violation.StrPtr(relPath),
					Type:   "missing_file",
					Advice: "add " + af.Name + " for this scope",
				})
				continue
			}
		case PolicyForbid:
			if exists {
				out = append(out, violation.Violation{
					File:   violation.StrPtr(relPath),
					Type:   "forbidden_file",
					Advice: "remove " + af.Name + "; it is not permitted in this scope",
				})
			}
			continue
		}
		if !exists {
			continue
		}

		content := string(fc.Content.Bytes())
		sections := parseSections(content)

		out = append(out, sizeViolations(relPath, content, sc.MaxLines, sc.MaxTokens)...)
		out = append(out, requiredSectionViolations(relPath, sections, sc.RequiredSections)...)
		out = append(out, forbiddenSectionViolations(relPath, sections, sc.ForbiddenSectionGlobs)...)
		out = append(out, contentRuleViolations(relPath, content, c.cfg.CheckTables, c.cfg.CheckDiagrams)...)
	}

	if sc.Sync && sc.SyncSource != "" {
		sourcePath := path.Join(prefix, sc.SyncSource)
		sourceFC, ok := byPath[sourcePath]
		if ok {
			sourceSections := parseSections(string(sourceFC.Content.Bytes()))
			for _, af := range sc.Files {
				if af.Name == sc.SyncSource || af.Policy != PolicyRequired {
					continue
				}
				targetPath := path.Join(prefix, af.Name)
				targetFC, ok := byPath[targetPath]
				if !ok {
					continue
				}
				out = append(out, syncViolations(targetPath, sourceSections, parseSections(string(targetFC.Content.Bytes())))...)
			}
		}
	}

	return out
}

// section is one H2-delimited markdown section.
type section struct {
	Name string
	Body string
	Line int
}

var h2Heading = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

func parseSections(content string) []section {
	locs := h2Heading.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}
	var out []section
	for i, loc := range locs {
		name := content[loc[2]:loc[3]]
		start := loc[1]
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, section{
			Name: name,
			Body: strings.TrimSpace(content[start:end]),
			Line: strings.Count(content[:loc[0]], "\n") + 1,
		})
	}
	return out
}

func findSection(sections []section, name string) (section, bool) {
	for _, s := range sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return section{}, false
}

func requiredSectionViolations(relPath string, sections []section, required []RequiredSection) []violation.Violation {
	var out []violation.Violation
	for _, req := range required {
		if _, ok := findSection(sections, req.Name); ok {
			continue
		}
		advice := req.Advice
		if advice == "" {
			advice = "add a \"## " + req.Name + "\" section"
		}
		out = append(out, violation.Violation{
			File:   violation.StrPtr(relPath),
			Type:   "missing_section",
			Advice: advice,
		})
	}
	return out
}

func forbiddenSectionViolations(relPath string, sections []section, globs []string) []violation.Violation {
	var out []violation.Violation
	for _, s := range sections {
		for _, g := range globs {
			if matched, _ := path.Match(g, s.Name); matched {
				out = append(out, violation.Violation{
					File:   violation.StrPtr(relPath),
					Line:   violation.IntPtr(s.Line),
					Type:   "forbidden_section",
					Advice: fmt.Sprintf("remove the %q section; it matches a forbidden pattern", s.Name),
				})
			}
		}
	}
	return out
}

// syncViolations compares each source section's body against the matching
// target section, case-insensitively by name (spec §4.11).
func syncViolations(targetPath string, sourceSections, targetSections []section) []violation.Violation {
	var out []violation.Violation
	for _, src := range sourceSections {
		tgt, ok := findSection(targetSections, src.Name)
		if !ok || tgt.Body != src.Body {
			out = append(out, violation.Violation{
				File:   violation.StrPtr(targetPath),
				Type:   "out_of_sync",
				Advice: "section \"" + src.Name + "\" differs from the sync source; run --fix to resync",
			})
		}
	}
	return out
}

var mermaidFence = regexp.MustCompile("(?m)^```mermaid\\b")
var boxDrawing = regexp.MustCompile(`[\x{2500}-\x{257F}]`)
var tableRow = regexp.MustCompile(`^\s*\|.*\|\s*$`)
var tableSeparator = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)

func contentRuleViolations(relPath, content string, checkTables, checkDiagrams bool) []violation.Violation {
	var out []violation.Violation
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if checkTables && tableRow.MatchString(line) && i+1 < len(lines) && tableSeparator.MatchString(lines[i+1]) {
			out = append(out, violation.Violation{
				File:   violation.StrPtr(relPath),
				Line:   violation.IntPtr(i + 1),
				Type:   "table",
				Advice: "avoid markdown tables in agent-context files; prefer plain prose or lists",
			})
		}
		if checkDiagrams && boxDrawing.MatchString(line) {
			out = append(out, violation.Violation{
				File:   violation.StrPtr(relPath),
				Line:   violation.IntPtr(i + 1),
				Type:   "diagram",
				Advice: "avoid box-drawing diagrams in agent-context files; prefer plain prose",
			})
		}
	}
	if checkDiagrams {
		for _, loc := range mermaidFence.FindAllStringIndex(content, -1) {
			out = append(out, violation.Violation{
				File:   violation.StrPtr(relPath),
				Line:   violation.IntPtr(strings.Count(content[:loc[0]], "\n") + 1),
				Type:   "diagram",
				Advice: "avoid mermaid diagrams in agent-context files; prefer plain prose",
			})
		}
	}
	return out
}

func sizeViolations(relPath, content string, maxLines, maxTokens int) []violation.Violation {
	var out []violation.Violation
	lines := strings.Count(content, "\n") + 1
	if maxLines > 0 && lines > maxLines {
		out = append(out, violation.Violation{
			File:      violation.StrPtr(relPath),
			Type:      "file_too_large",
			Advice:    "split this file; it exceeds the configured line limit",
			Value:     lines,
			Threshold: maxLines,
		})
	}
	if maxTokens > 0 {
		tokens := int(math.Ceil(float64(utf8.RuneCountInString(content)) / 4.0))
		if tokens > maxTokens {
			out = append(out, violation.Violation{
				File:      violation.StrPtr(relPath),
				Type:      "file_too_large",
				Advice:    "split this file; its approximate token count exceeds the configured limit",
				Value:     tokens,
				Threshold: maxTokens,
			})
		}
	}
	return out
}

// Sync rewrites target's content by replacing each of its sections with the
// matching section from source, appending any source section the target is
// missing (spec §4.11's --fix). dryRun callers should diff the return value
// against the target's current content themselves.
func Sync(sourceContent, targetContent string) string {
	sourceSections := parseSections(sourceContent)
	targetSections := parseSections(targetContent)

	var b strings.Builder
	seen := make(map[string]bool)
	for _, tgt := range targetSections {
		src, ok := findSection(sourceSections, tgt.Name)
		seen[strings.ToLower(tgt.Name)] = true
		if ok {
			b.WriteString("## " + tgt.Name + "\n\n" + src.Body + "\n\n")
		} else {
			b.WriteString("## " + tgt.Name + "\n\n" + tgt.Body + "\n\n")
		}
	}
	for _, src := range sourceSections {
		if seen[strings.ToLower(src.Name)] {
			continue
		}
		b.WriteString("## " + src.Name + "\n\n" + src.Body + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
