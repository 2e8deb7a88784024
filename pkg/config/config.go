// Package config loads and validates quench.toml: the tree of per-check and
// per-adapter option groups described in spec §3 and §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// CurrentSchemaVersion is the only config schema version quench understands.
// Config.Version must equal this value; anything else is a config error.
const CurrentSchemaVersion = 1

// Config is the root of quench's configuration tree.
type Config struct {
	Version int `mapstructure:"version" toml:"version"`

	Checks  ChecksConfig        `mapstructure:"checks" toml:"checks"`
	Walk    WalkConfig          `mapstructure:"walk" toml:"walk"`
	Cloc    ClocConfig          `mapstructure:"cloc" toml:"cloc"`
	Escapes EscapesConfig       `mapstructure:"escapes" toml:"escapes"`
	Suppress SuppressConfig     `mapstructure:"suppress" toml:"suppress"`
	Policy  PolicyConfig        `mapstructure:"policy" toml:"policy"`
	Agents  AgentsConfig        `mapstructure:"agents" toml:"agents"`
	Docs    DocsConfig          `mapstructure:"docs" toml:"docs"`
	Tests   TestsConfig         `mapstructure:"tests" toml:"tests"`
	Git     GitConfig           `mapstructure:"git" toml:"git"`
	Suites  []SuiteConfig       `mapstructure:"suites" toml:"suites"`
	Build   BuildConfig         `mapstructure:"build" toml:"build"`
	License LicenseConfig       `mapstructure:"license" toml:"license"`
	Ratchet RatchetConfig       `mapstructure:"ratchet" toml:"ratchet"`
	Output  OutputConfig        `mapstructure:"output" toml:"output"`
}

// ChecksConfig holds the enable/disable state of each check. It is read from
// quench.toml only; the check command has no per-check enable/disable flags.
type ChecksConfig struct {
	Cloc    bool `mapstructure:"cloc" toml:"cloc"`
	Escapes bool `mapstructure:"escapes" toml:"escapes"`
	Suppress bool `mapstructure:"suppress" toml:"suppress"`
	Policy  bool `mapstructure:"policy" toml:"policy"`
	Docs    bool `mapstructure:"docs" toml:"docs"`
	Tests   bool `mapstructure:"tests" toml:"tests"`
	Agents  bool `mapstructure:"agents" toml:"agents"`
	Git     bool `mapstructure:"git" toml:"git"`
	Build   bool `mapstructure:"build" toml:"build"`
	License bool `mapstructure:"license" toml:"license"`
}

// WalkConfig configures the parallel walker (§4.1).
type WalkConfig struct {
	MaxDepth int      `mapstructure:"max_depth" toml:"max_depth"`
	Ignore   []string `mapstructure:"ignore" toml:"ignore"`
}

// ClocConfig configures the CLOC check (§4.7).
type ClocConfig struct {
	MaxLinesSource int      `mapstructure:"max_lines_source" toml:"max_lines_source"`
	MaxLinesTest   int      `mapstructure:"max_lines_test" toml:"max_lines_test"`
	MaxTokens      int      `mapstructure:"max_tokens" toml:"max_tokens"`
	Packages       []string `mapstructure:"packages" toml:"packages"`
	InlineTestMode string   `mapstructure:"inline_test_mode" toml:"inline_test_mode"` // "reclassify" | "count"
}

// EscapePattern is one entry in the effective escape-pattern set (§4.8).
type EscapePattern struct {
	Name        string `mapstructure:"name" toml:"name"`
	Pattern     string `mapstructure:"pattern" toml:"pattern"`
	Scope       string `mapstructure:"scope" toml:"scope"`  // "source" | "test" | "both"
	Action      string `mapstructure:"action" toml:"action"` // "count" | "comment" | "forbid"
	Max         int    `mapstructure:"max" toml:"max"`
	CommentText string `mapstructure:"comment_text" toml:"comment_text"`
	TestPolicy  string `mapstructure:"test_policy" toml:"test_policy"` // "forbid" | "comment" | "allow"
}

// EscapesConfig configures the Escapes check.
type EscapesConfig struct {
	Patterns []EscapePattern `mapstructure:"patterns" toml:"patterns"`
}

// SuppressConfig configures the Suppress check (§4.9).
type SuppressConfig struct {
	SourcePolicy string   `mapstructure:"source_policy" toml:"source_policy"` // "comment" | "forbid" | "allow"
	TestPolicy   string   `mapstructure:"test_policy" toml:"test_policy"`
	Forbid       []string `mapstructure:"forbid" toml:"forbid"`
	Allow        []string `mapstructure:"allow" toml:"allow"`
	CommentText  string   `mapstructure:"comment_text" toml:"comment_text"`
}

// PolicyConfig configures the lint-config-hygiene check (§4.10).
type PolicyConfig struct {
	LintConfigFiles []string `mapstructure:"lint_config_files" toml:"lint_config_files"`
}

// AgentFile is one entry in the Agents check's configured file list.
type AgentFile struct {
	Path               string            `mapstructure:"path" toml:"path"`
	Required           bool              `mapstructure:"required" toml:"required"`
	Forbid             bool              `mapstructure:"forbid" toml:"forbid"`
	Sync               bool              `mapstructure:"sync" toml:"sync"`
	SyncSource         string            `mapstructure:"sync_source" toml:"sync_source"`
	RequiredSections   []string          `mapstructure:"required_sections" toml:"required_sections"`
	SectionAdvice      map[string]string `mapstructure:"section_advice" toml:"section_advice"`
	ForbiddenSections  []string          `mapstructure:"forbidden_sections" toml:"forbidden_sections"`
	MaxLines           int               `mapstructure:"max_lines" toml:"max_lines"`
	MaxTokens          int               `mapstructure:"max_tokens" toml:"max_tokens"`
	AllowTables        bool              `mapstructure:"allow_tables" toml:"allow_tables"`
	AllowDiagrams      bool              `mapstructure:"allow_diagrams" toml:"allow_diagrams"`
}

// AgentsConfig configures the Agents check (§4.11).
type AgentsConfig struct {
	Files []AgentFile `mapstructure:"files" toml:"files"`
}

// DocsConfig configures the Docs check (§4.12).
type DocsConfig struct {
	Dir       string   `mapstructure:"dir" toml:"dir"`
	IndexMode string   `mapstructure:"index_mode" toml:"index_mode"` // "exists" | "toc" | "linked" | "auto"
	Globs     []string `mapstructure:"globs" toml:"globs"`
}

// TestsConfig configures the Tests Correlation check (§4.13).
type TestsConfig struct {
	Scope        string   `mapstructure:"scope" toml:"scope"` // "branch" | "commit"
	Placeholders string   `mapstructure:"placeholders" toml:"placeholders"` // "allow" | "forbid"
	Exclude      []string `mapstructure:"exclude" toml:"exclude"`
}

// GitConfig configures git integration and the commit check (§4.14).
type GitConfig struct {
	BaseRef       string   `mapstructure:"base_ref" toml:"base_ref"`
	CommitTypes   []string `mapstructure:"commit_types" toml:"commit_types"`
	RequireScope  bool     `mapstructure:"require_scope" toml:"require_scope"`
}

// SuiteConfig describes one test-runner suite (§4.15).
type SuiteConfig struct {
	Name     string        `mapstructure:"name" toml:"name"`
	Kind     string        `mapstructure:"kind" toml:"kind"` // cargo|bats|pytest|jest|vitest|bun|go|custom
	Path     string        `mapstructure:"path" toml:"path"`
	Setup    string        `mapstructure:"setup" toml:"setup"`
	Env      map[string]string `mapstructure:"env" toml:"env"`
	MaxTotal time.Duration `mapstructure:"max_total" toml:"max_total"`
	MaxAvg   time.Duration `mapstructure:"max_avg" toml:"max_avg"`
	MaxTest  time.Duration `mapstructure:"max_test" toml:"max_test"`
	CoverageMin float64    `mapstructure:"coverage_min" toml:"coverage_min"`
}

// BuildConfig configures the Build check (§4.16).
type BuildConfig struct {
	Targets       []string          `mapstructure:"targets" toml:"targets"`
	SizeMax       string            `mapstructure:"size_max" toml:"size_max"`
	ColdTimeMax   time.Duration     `mapstructure:"cold_time_max" toml:"cold_time_max"`
	HotTimeMax    time.Duration     `mapstructure:"hot_time_max" toml:"hot_time_max"`
	PerTargetSize map[string]string `mapstructure:"per_target_size" toml:"per_target_size"`
}

// LicenseConfig configures the License check (§4.17).
type LicenseConfig struct {
	SPDX      string   `mapstructure:"spdx" toml:"spdx"`
	Copyright string   `mapstructure:"copyright" toml:"copyright"`
	Patterns  []string `mapstructure:"patterns" toml:"patterns"`
}

// RatchetConfig configures baseline storage and regression tolerances (§4.18).
type RatchetConfig struct {
	Mode           string             `mapstructure:"mode" toml:"mode"` // "file" | "notes"
	BaselinePath   string             `mapstructure:"baseline_path" toml:"baseline_path"`
	NotesRef       string             `mapstructure:"notes_ref" toml:"notes_ref"`
	Tolerance      map[string]float64 `mapstructure:"tolerance" toml:"tolerance"`
	StaleAfter     time.Duration      `mapstructure:"stale_after" toml:"stale_after"`
}

// OutputConfig configures the output assembler (§4.19).
type OutputConfig struct {
	ViolationCap int  `mapstructure:"violation_cap" toml:"violation_cap"`
	NoLimit      bool `mapstructure:"no_limit" toml:"no_limit"`
}

// strictSections lists config sections that reject unknown keys outright
// (spec §3: "unknown keys inside deny_unknown_fields sections are errors").
var strictSections = []string{"escapes", "suppress"}

// StrictError reports unknown keys found inside a deny_unknown_fields section.
type StrictError struct {
	Section string
	Keys    []string
}

func (e *StrictError) Error() string {
	return fmt.Sprintf("config section %q has unknown keys: %s", e.Section, strings.Join(e.Keys, ", "))
}

func defaultConfig() Config {
	return Config{
		Version: CurrentSchemaVersion,
		Checks: ChecksConfig{
			Cloc: true, Escapes: true, Suppress: true, Policy: true,
			Docs: true, Tests: true, Agents: true, Git: true,
			Build: false, License: false,
		},
		Walk: WalkConfig{MaxDepth: 100},
		Cloc: ClocConfig{
			MaxLinesSource: 800, MaxLinesTest: 1200, MaxTokens: 0,
			InlineTestMode: "reclassify",
		},
		Suppress: SuppressConfig{SourcePolicy: "comment", TestPolicy: "allow"},
		Docs:     DocsConfig{Dir: "docs", IndexMode: "auto"},
		Tests:    TestsConfig{Scope: "branch", Placeholders: "allow"},
		Git: GitConfig{
			CommitTypes: []string{"feat", "fix", "chore", "docs", "test", "refactor", "perf", "ci", "build", "style"},
		},
		License: LicenseConfig{SPDX: "Apache-2.0"},
		Ratchet: RatchetConfig{
			Mode:         "file",
			BaselinePath: filepath.Join(".quench", "baseline.json"),
			StaleAfter:   30 * 24 * time.Hour,
		},
		Output: OutputConfig{ViolationCap: 15},
	}
}

// FindConfigFile searches startDir then its parents for quench.toml, stopping
// at the first directory containing a .git entry (the VCS root) inclusive.
// Returns "" if none is found.
func FindConfigFile(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		dir = startDir
	}
	for {
		candidate := filepath.Join(dir, "quench.toml")
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load searches for quench.toml starting at startDir and returns the decoded,
// defaulted, strictly-validated config. A missing file is not an error: the
// defaults are returned as-is.
func Load(startDir string) (*Config, error) {
	path := FindConfigFile(startDir)

	v := viper.New()
	v.SetConfigType("toml")
	applyDefaults(v, defaultConfig())
	v.SetEnvPrefix("QUENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var raw []byte
	if path != "" {
		var err error
		raw, err = os.ReadFile(path) // #nosec G304 -- path discovered via FindConfigFile under the project root
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if path != "" {
		if cfg.Version != CurrentSchemaVersion {
			return nil, fmt.Errorf("quench.toml: version %d is not supported (expected %d)", cfg.Version, CurrentSchemaVersion)
		}
		if err := checkStrictSections(raw); err != nil {
			return nil, err
		}
	} else if cfg.Version == 0 {
		cfg.Version = CurrentSchemaVersion
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper, d Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("checks.cloc", d.Checks.Cloc)
	v.SetDefault("checks.escapes", d.Checks.Escapes)
	v.SetDefault("checks.suppress", d.Checks.Suppress)
	v.SetDefault("checks.policy", d.Checks.Policy)
	v.SetDefault("checks.docs", d.Checks.Docs)
	v.SetDefault("checks.tests", d.Checks.Tests)
	v.SetDefault("checks.agents", d.Checks.Agents)
	v.SetDefault("checks.git", d.Checks.Git)
	v.SetDefault("checks.build", d.Checks.Build)
	v.SetDefault("checks.license", d.Checks.License)
	v.SetDefault("walk.max_depth", d.Walk.MaxDepth)
	v.SetDefault("cloc.max_lines_source", d.Cloc.MaxLinesSource)
	v.SetDefault("cloc.max_lines_test", d.Cloc.MaxLinesTest)
	v.SetDefault("cloc.inline_test_mode", d.Cloc.InlineTestMode)
	v.SetDefault("suppress.source_policy", d.Suppress.SourcePolicy)
	v.SetDefault("suppress.test_policy", d.Suppress.TestPolicy)
	v.SetDefault("docs.dir", d.Docs.Dir)
	v.SetDefault("docs.index_mode", d.Docs.IndexMode)
	v.SetDefault("tests.scope", d.Tests.Scope)
	v.SetDefault("tests.placeholders", d.Tests.Placeholders)
	v.SetDefault("git.commit_types", d.Git.CommitTypes)
	v.SetDefault("license.spdx", d.License.SPDX)
	v.SetDefault("ratchet.mode", d.Ratchet.Mode)
	v.SetDefault("ratchet.baseline_path", d.Ratchet.BaselinePath)
	v.SetDefault("ratchet.stale_after", d.Ratchet.StaleAfter)
	v.SetDefault("output.violation_cap", d.Output.ViolationCap)
}

// checkStrictSections decodes the raw TOML document into an untyped map and
// rejects any key under a strict section that the corresponding struct
// doesn't know about, per spec §3's deny_unknown_fields rule.
func checkStrictSections(raw []byte) error {
	var doc map[string]interface{}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing config for strict validation: %w", err)
	}

	known := map[string]map[string]bool{
		"escapes": {"patterns": true},
		"suppress": {
			"source_policy": true, "test_policy": true, "forbid": true,
			"allow": true, "comment_text": true,
		},
	}

	for _, section := range strictSections {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var unknown []string
		for key := range m {
			if !known[section][key] {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			return &StrictError{Section: section, Keys: unknown}
		}
	}
	return nil
}
