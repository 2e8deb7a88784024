/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/pkg/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter quench.toml for the detected (or given) language profile",
	Long: `init writes a starter quench.toml with the checks, escape patterns, and agent
file list appropriate for one or more language profiles (go, rust, javascript, ruby, shell).
When --profile is omitted, the project's dominant language is auto-detected from its marker
files (go.mod, Cargo.toml, package.json, ...).

Examples:
  quench init                       # auto-detect and write quench.toml
  quench init --profile go,rust     # a polyglot repo's config
  quench init --dry-run             # preview without writing
  quench init --force               # overwrite an existing quench.toml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("profile", "", "Comma-separated language profiles (go,rust,javascript,ruby,shell); default: auto-detect")
	initCmd.Flags().Bool("force", false, "Overwrite an existing quench.toml")
	initCmd.Flags().Bool("dry-run", false, "Print the generated config without writing it")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	profileFlag, _ := cmd.Flags().GetString("profile")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	profiles := parseProfiles(profileFlag, root)
	cfg := profileConfig(profiles)

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding quench.toml: %w", err)
	}

	out := cmd.OutOrStdout()
	if dryRun {
		_, err := fmt.Fprintf(out, "# quench.toml (profiles: %s)\n%s", strings.Join(profiles, ","), data)
		return err
	}

	path := filepath.Join(root, "quench.toml")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- config file, not a secret
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, err = fmt.Fprintf(out, "wrote %s (profiles: %s)\n", path, strings.Join(profiles, ","))
	return err
}

func parseProfiles(flag, root string) []string {
	if flag != "" {
		var out []string
		for _, p := range strings.Split(flag, ",") {
			p = strings.TrimSpace(strings.ToLower(p))
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	lang := adapters.DetectLanguage(root, func(relPath string) bool {
		_, err := os.Stat(filepath.Join(root, relPath))
		return err == nil
	}, func() bool {
		matches, _ := filepath.Glob(filepath.Join(root, "*.sh"))
		return len(matches) > 0
	})
	return []string{string(lang)}
}

// profileConfig builds a language-aware starter config: the shared check
// defaults plus an agent-file list and escape-pattern seed per requested
// profile.
func profileConfig(profiles []string) config.Config {
	cfg := config.Config{
		Version: config.CurrentSchemaVersion,
		Checks: config.ChecksConfig{
			Cloc: true, Escapes: true, Suppress: true, Policy: true,
			Docs: true, Tests: true, Agents: true, Git: true,
		},
		Walk:     config.WalkConfig{MaxDepth: 100},
		Cloc:     config.ClocConfig{MaxLinesSource: 800, MaxLinesTest: 1200, InlineTestMode: "reclassify"},
		Suppress: config.SuppressConfig{SourcePolicy: "comment", TestPolicy: "allow"},
		Docs:     config.DocsConfig{Dir: "docs", IndexMode: "auto"},
		Tests:    config.TestsConfig{Scope: "branch", Placeholders: "allow"},
		Git: config.GitConfig{
			CommitTypes: []string{"feat", "fix", "chore", "docs", "test", "refactor", "perf", "ci", "build", "style"},
		},
		License: config.LicenseConfig{SPDX: "Apache-2.0"},
		Ratchet: config.RatchetConfig{
			Mode:         "file",
			BaselinePath: filepath.Join(".quench", "baseline.json"),
			StaleAfter:   30 * 24 * time.Hour,
		},
		Output: config.OutputConfig{ViolationCap: 15},
	}

	for _, p := range profiles {
		switch p {
		case "rust":
			cfg.Checks.Build = true
			cfg.Agents.Files = append(cfg.Agents.Files, config.AgentFile{Path: "CLAUDE.md", Required: true, MaxLines: 400})
			cfg.Escapes.Patterns = append(cfg.Escapes.Patterns, config.EscapePattern{
				Name: "unwrap", Pattern: `\.unwrap\(\)`, Scope: "both", Action: "comment", TestPolicy: "allow",
			})
		case "go":
			cfg.Agents.Files = append(cfg.Agents.Files, config.AgentFile{Path: "CLAUDE.md", Required: true, MaxLines: 400})
			cfg.Escapes.Patterns = append(cfg.Escapes.Patterns, config.EscapePattern{
				Name: "panic", Pattern: `\bpanic\(`, Scope: "source", Action: "comment",
			})
		case "javascript":
			cfg.Agents.Files = append(cfg.Agents.Files, config.AgentFile{Path: "AGENTS.md", Required: true, MaxLines: 400})
			cfg.Escapes.Patterns = append(cfg.Escapes.Patterns, config.EscapePattern{
				Name: "any_cast", Pattern: `as any`, Scope: "both", Action: "comment", TestPolicy: "allow",
			})
		case "ruby", "shell":
			cfg.Agents.Files = append(cfg.Agents.Files, config.AgentFile{Path: "AGENTS.md", Required: true, MaxLines: 400})
		default:
			cfg.Agents.Files = append(cfg.Agents.Files, config.AgentFile{Path: "CLAUDE.md", Required: true, MaxLines: 400})
		}
	}

	return cfg
}
