// Package commitcheck implements the commit-message half of the git
// integration check (spec §4.14): conventional-commits grammar parsing via
// go-conventionalcommits, and a documentation sub-check that at least one
// configured agent file documents the commit format.
package commitcheck

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	cc "github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// DefaultAllowedTypes is the default type allowlist (spec §4.14).
var DefaultAllowedTypes = []string{
	"feat", "fix", "chore", "docs", "test", "refactor", "perf", "ci", "build", "style",
}

// Config configures the commit check.
type Config struct {
	AllowedTypes  []string // empty uses DefaultAllowedTypes
	AllowedScopes []string // empty means any scope is allowed
	AgentFiles    []string // configured agent-context files checked for format docs
}

func (c Config) allowedTypes() []string {
	if len(c.AllowedTypes) == 0 {
		return DefaultAllowedTypes
	}
	return c.AllowedTypes
}

// Check implements check.AggregateCheck.
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "commit" }

func (c *Check) RunAggregate(_ context.Context, rc check.RunContext) (violation.Result, error) {
	if rc.CommitMessage == "" {
		return violation.Result{Name: c.Name(), Status: violation.StatusSkipped}, nil
	}

	var violations []violation.Violation
	violations = append(violations, c.checkMessage(rc.CommitMessage)...)
	violations = append(violations, c.checkDocs(rc.Files)...)

	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}
	return violation.Result{Name: c.Name(), Status: status, Violations: violations}, nil
}

// checkMessage parses msg under the conventional-commits grammar
// (<type>[(<scope>)][!]: <description>) and validates type/scope against
// the configured allowlists.
func (c *Check) checkMessage(msg string) []violation.Violation {
	machine := parser.NewMachine(parser.WithTypes(cc.TypesConventional))
	result, err := machine.Parse([]byte(msg))
	if err != nil {
		return []violation.Violation{{
			Type:   "invalid_format",
			Advice: "commit message must follow <type>[(<scope>)][!]: <description>",
		}}
	}

	commit, ok := result.(*cc.ConventionalCommit)
	if !ok {
		return []violation.Violation{{
			Type:   "invalid_format",
			Advice: "commit message must follow <type>[(<scope>)][!]: <description>",
		}}
	}

	var violations []violation.Violation
	if !containsFold(c.cfg.allowedTypes(), commit.Type) {
		violations = append(violations, violation.Violation{
			Type:   "invalid_type",
			Advice: "commit type \"" + commit.Type + "\" is not in the configured allowlist",
		})
	}
	if commit.Scope != nil && len(c.cfg.AllowedScopes) > 0 && !containsFold(c.cfg.AllowedScopes, *commit.Scope) {
		violations = append(violations, violation.Violation{
			Type:   "invalid_scope",
			Advice: "commit scope \"" + *commit.Scope + "\" is not in the configured allowlist",
		})
	}
	return violations
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// checkDocs verifies at least one configured agent file documents the
// commit format, detected either by type-prefix occurrences (e.g. "feat:")
// or the phrase "conventional commits".
func (c *Check) checkDocs(files []check.FileContext) []violation.Violation {
	if len(c.cfg.AgentFiles) == 0 {
		return nil
	}
	byPath := make(map[string]check.FileContext, len(files))
	for _, fc := range files {
		byPath[fc.RelPath] = fc
	}

	for _, name := range c.cfg.AgentFiles {
		fc, ok := byPath[name]
		if !ok {
			continue
		}
		content := strings.ToLower(string(fc.Content.Bytes()))
		if strings.Contains(content, "conventional commits") {
			return nil
		}
		for _, t := range c.cfg.allowedTypes() {
			if strings.Contains(content, t+":") || strings.Contains(content, t+"(") {
				return nil
			}
		}
	}

	return []violation.Violation{{
		Type:   "missing_docs",
		Advice: "document the commit-message format in one of the configured agent files",
	}}
}

// Fix creates .gitmessage (if absent) under root and sets the commit.template
// git config key (if unset), never overwriting existing state (spec §4.14).
func Fix(root string) error {
	gitmessagePath := filepath.Join(root, ".gitmessage")
	if _, err := os.Stat(gitmessagePath); os.IsNotExist(err) {
		template := "<type>[(<scope>)][!]: <description>\n\n# Allowed types: " + strings.Join(DefaultAllowedTypes, ", ") + "\n"
		if err := os.WriteFile(gitmessagePath, []byte(template), 0o644); err != nil {
			return err
		}
	}

	existing := runGit(root, "config", "--get", "commit.template")
	if existing != "" {
		return nil
	}
	cmd := exec.Command("git", "config", "commit.template", ".gitmessage")
	cmd.Dir = root
	return cmd.Run()
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, _ := cmd.Output()
	return strings.TrimSpace(string(out))
}
