// Package policy implements the lint-config-hygiene check (spec §4.10):
// forces lint-rule changes into a standalone review by failing any change
// set that mixes a lint-configuration file with a Source or Test file.
package policy

import (
	"context"
	"path/filepath"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// Config lists the lint-configuration filenames (base names, e.g.
// ".golangci.yml", "clippy.toml", ".eslintrc.json") that trigger this check.
type Config struct {
	ConfigFiles []string
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "policy" }

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	if rc.ChangeSet == nil || len(c.cfg.ConfigFiles) == 0 {
		return violation.Result{Name: c.Name(), Status: violation.StatusSkipped}, nil
	}

	var touchesLintConfig, touchesSourceOrTest bool
	for _, f := range rc.ChangeSet.Files {
		base := filepath.Base(f.RelPath)
		if containsFile(c.cfg.ConfigFiles, base) {
			touchesLintConfig = true
			continue
		}
		kind := rc.Registry.Classify(f.RelPath)
		if kind == adapters.KindSource || kind == adapters.KindTest {
			touchesSourceOrTest = true
		}
	}

	if !touchesLintConfig || !touchesSourceOrTest {
		return violation.Result{Name: c.Name(), Status: violation.StatusPassed}, nil
	}

	return violation.Result{
		Name:   c.Name(),
		Status: violation.StatusFailed,
		Violations: []violation.Violation{{
			Type:   "lint_policy",
			Advice: "split lint-configuration changes into a standalone review, separate from source or test changes",
		}},
	}, nil
}

func containsFile(files []string, base string) bool {
	for _, f := range files {
		if f == base {
			return true
		}
	}
	return false
}
