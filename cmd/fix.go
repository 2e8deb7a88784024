/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/checks/agents"
	"github.com/alfredjeanlab/quench/internal/checks/license"
	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/pkg/config"
	"github.com/alfredjeanlab/quench/pkg/logger"
	"github.com/alfredjeanlab/quench/pkg/safeio"
	"github.com/pmezard/go-difflib/difflib"
)

// applyFixes runs every check's available fixer against a completed check
// run's results (spec §4.17's license --fix, §4.11.2's agents --fix). In
// dry-run mode nothing is written; a unified diff is printed instead.
func applyFixes(root string, cfg *config.Config, registry *adapters.Registry, results map[string]violation.Result, dryRun bool, out io.Writer) {
	if cfg.Checks.License {
		fixLicense(root, *cfg, registry, results["license"], dryRun, out)
	}
	if cfg.Checks.Agents {
		fixAgents(root, cfg.Agents, dryRun, out)
	}
}

// fixLicense writes a license header into every file the license check
// flagged missing_license, preserving a leading shebang (license.Fix).
// wrong_license and outdated_year are reported but not rewritten: the check
// only knows how to detect a stale header, not safely replace one in place.
func fixLicense(root string, cfg config.Config, registry *adapters.Registry, result violation.Result, dryRun bool, out io.Writer) {
	year := time.Now().Year()
	seen := make(map[string]bool)
	for _, v := range result.Violations {
		if v.Type != "missing_license" || v.File == nil || seen[*v.File] {
			continue
		}
		seen[*v.File] = true

		relPath := *v.File
		content, err := safeio.ReadFileContained(root, filepath.Join(root, relPath))
		if err != nil {
			logger.Warn("license fix: could not read file", logger.String("file", relPath), logger.Err(err))
			continue
		}
		adapter := registry.AdapterFor(relPath)
		fixed := license.Fix(content, adapter.Comment, cfg.License.SPDX, cfg.License.Copyright, year)

		if dryRun {
			printDiff(out, relPath, content, fixed)
			continue
		}
		if err := safeio.WriteFilePreservePerms(filepath.Join(root, relPath), fixed); err != nil {
			logger.Warn("license fix: could not write file", logger.String("file", relPath), logger.Err(err))
			continue
		}
		fmt.Fprintf(out, "fixed: %s (license header)\n", relPath)
	}
}

// fixAgents rewrites every agent-context file the Root scope names as a sync
// target, section-by-section, from its configured sync source (agents.Sync).
func fixAgents(root string, cfg config.AgentsConfig, dryRun bool, out io.Writer) {
	var sourcePath string
	for _, f := range cfg.Files {
		if f.Sync && f.SyncSource != "" {
			sourcePath = f.SyncSource
			break
		}
	}
	if sourcePath == "" {
		return
	}

	sourceContent, err := safeio.ReadFileContained(root, filepath.Join(root, sourcePath))
	if err != nil {
		logger.Warn("agents fix: could not read sync source", logger.String("file", sourcePath), logger.Err(err))
		return
	}

	for _, f := range cfg.Files {
		if !f.Sync || f.Forbid || f.Path == sourcePath {
			continue
		}
		targetContent, err := safeio.ReadFileContained(root, filepath.Join(root, f.Path))
		if err != nil {
			continue // not present; the agents check's missing_file violation covers this
		}

		synced := agents.Sync(string(sourceContent), string(targetContent))
		if synced == string(targetContent) {
			continue
		}

		if dryRun {
			printDiff(out, f.Path, targetContent, []byte(synced))
			continue
		}
		if err := safeio.WriteFilePreservePerms(filepath.Join(root, f.Path), []byte(synced)); err != nil {
			logger.Warn("agents fix: could not write file", logger.String("file", f.Path), logger.Err(err))
			continue
		}
		fmt.Fprintf(out, "fixed: %s (synced from %s)\n", f.Path, sourcePath)
	}
}

// printDiff renders a unified diff of a fix that --dry-run suppressed from
// being written, grounded on goneat's hook_executor preview-before-apply
// pattern (spec SPEC_FULL.md §D).
func printDiff(out io.Writer, relPath string, before, after []byte) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: relPath,
		ToFile:   relPath,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		logger.Warn("dry-run: could not render diff", logger.String("file", relPath), logger.Err(err))
		return
	}
	fmt.Fprintf(out, "preview: %s\n%s", relPath, text)
}
