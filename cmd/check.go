/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/cache"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/checks/agents"
	"github.com/alfredjeanlab/quench/internal/checks/build"
	"github.com/alfredjeanlab/quench/internal/checks/cloc"
	"github.com/alfredjeanlab/quench/internal/checks/commitcheck"
	"github.com/alfredjeanlab/quench/internal/checks/docs"
	"github.com/alfredjeanlab/quench/internal/checks/escapes"
	"github.com/alfredjeanlab/quench/internal/checks/license"
	"github.com/alfredjeanlab/quench/internal/checks/policy"
	"github.com/alfredjeanlab/quench/internal/checks/suppress"
	"github.com/alfredjeanlab/quench/internal/checks/testscorrelation"
	"github.com/alfredjeanlab/quench/internal/gitctx"
	"github.com/alfredjeanlab/quench/internal/matcher"
	"github.com/alfredjeanlab/quench/internal/output"
	"github.com/alfredjeanlab/quench/internal/ratchet"
	"github.com/alfredjeanlab/quench/internal/testrunner"
	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/internal/walk"
	"github.com/alfredjeanlab/quench/pkg/config"
	"github.com/alfredjeanlab/quench/pkg/exitcode"
	"github.com/alfredjeanlab/quench/pkg/ignore"
	"github.com/alfredjeanlab/quench/pkg/logger"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Run every enabled check against a source tree",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("format", "text", "Output format: text|json")
	checkCmd.Flags().Bool("ci", false, "CI mode: disable the per-check violation cap and diff the change set against the base ref")
	checkCmd.Flags().Bool("timing", false, "Print file-scan and cache-hit counters after the run")
	checkCmd.Flags().Bool("no-ratchet", false, "Skip baseline comparison even when a baseline exists")
	checkCmd.Flags().String("base-ref", "", "Git ref the base-mode change set is diffed against (auto-detected when empty)")
	checkCmd.Flags().Bool("staged", false, "Scope checks to the staged change set instead of the working tree")
	checkCmd.Flags().Bool("fix", false, "Apply every check's available fixer (license headers, agents file sync)")
	checkCmd.Flags().Bool("dry-run", false, "With --fix, preview a unified diff instead of writing files")
	checkCmd.Flags().Int("limit", 0, "Override the configured per-check violation cap (0 means unlimited)")
	checkCmd.Flags().Bool("no-limit", false, "Disable the per-check violation cap, as --ci does, without changing the change scope")
	checkCmd.Flags().String("save", "", "Write the post-run metrics as the new ratchet baseline to this file (empty disables)")
	checkCmd.Flags().Bool("verbose", false, "Shorthand for --log-level debug")
	checkCmd.Flags().String("color", "auto", "Color the text renderer: auto|always|never")
}

func runCheck(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		logger.Error("failed to load config", logger.Err(err))
		os.Exit(exitcode.ConfigError)
	}

	format, _ := cmd.Flags().GetString("format")
	ci, _ := cmd.Flags().GetBool("ci")
	timing, _ := cmd.Flags().GetBool("timing")
	noRatchet, _ := cmd.Flags().GetBool("no-ratchet")
	baseRefFlag, _ := cmd.Flags().GetString("base-ref")
	staged, _ := cmd.Flags().GetBool("staged")
	fix, _ := cmd.Flags().GetBool("fix")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noLimit, _ := cmd.Flags().GetBool("no-limit")
	savePath, _ := cmd.Flags().GetString("save")
	verbose, _ := cmd.Flags().GetBool("verbose")
	colorMode, _ := cmd.Flags().GetString("color")

	if verbose {
		raiseLogLevel(cmd)
	}

	var limitOverride *int
	if cmd.Flags().Changed("limit") {
		n, _ := cmd.Flags().GetInt("limit")
		limitOverride = &n
	}

	registry := buildRegistry(absRoot, *cfg)
	matcherCache := matcher.NewCache()
	var timer *output.Timing
	if timing {
		timer = output.NewTiming()
	}

	results, err := runChecks(cmd.Context(), absRoot, cfg, registry, matcherCache, checkOptions{
		CI:            ci,
		Staged:        staged,
		BaseRef:       baseRefFlag,
		NoLimit:       noLimit,
		LimitOverride: limitOverride,
	}, timer)
	if err != nil {
		logger.Error("check run failed", logger.Err(err))
		os.Exit(exitcode.Internal)
	}

	if fix {
		applyFixes(absRoot, cfg, registry, results, dryRun, cmd.OutOrStdout())
	}

	current := ratchet.Baseline{Metrics: metricsFromResults(results)}
	if !noRatchet {
		applyRatchetCompare(absRoot, *cfg, results, current)
	}
	if savePath != "" {
		store := ratchetStoreFrom(absRoot, cfg.Ratchet)
		store.FilePath = savePath
		if err := store.Save(current); err != nil {
			logger.Warn("failed to save ratchet baseline", logger.String("path", savePath), logger.Err(err))
		}
	}

	totals := output.NewTotals()
	totals.Violations = output.CountViolations(results)

	assembler := output.New(output.Options{
		Format: formatFor(format),
		Color:  resolveColorFlag(colorMode, cmd.OutOrStdout()),
		Writer: cmd.OutOrStdout(),
	})
	if err := assembler.Render(results, totals); err != nil {
		return err
	}
	if timer != nil {
		_ = timer.Print(cmd.ErrOrStderr())
	}

	if !output.Passed(results) {
		os.Exit(exitcode.CheckFailed)
	}
	return nil
}

func formatFor(s string) output.Format {
	if s == "json" {
		return output.FormatJSON
	}
	return output.FormatText
}

// resolveColorFlag applies the explicit --color override on top of spec
// §6's environment-sensing default (output.ResolveColor).
func resolveColorFlag(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return output.ResolveColor(w)
	}
}

// raiseLogLevel reinitializes the logger at debug level for --verbose,
// preserving whatever --json/--no-color the user already set.
func raiseLogLevel(cmd *cobra.Command) {
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	_ = logger.Initialize(logger.Config{
		Level:     logger.DebugLevel,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "quench",
	})
}

// buildRegistry assembles the fixed adapter set with each adapter's defaults
// and detects the project language from root's marker files. Escapes check
// patterns configured per language are not folded in here; buildChecks
// passes them to the escapes check as escapes.Config.Extra.
func buildRegistry(root string, cfg config.Config) *adapters.Registry {
	set := []adapters.Adapter{adapters.Go(), adapters.Rust(), adapters.JavaScript(), adapters.Ruby(), adapters.Shell(), adapters.Generic()}

	lang := adapters.DetectLanguage(root, func(relPath string) bool {
		_, err := os.Stat(filepath.Join(root, relPath))
		return err == nil
	}, func() bool {
		matches, _ := filepath.Glob(filepath.Join(root, "*.sh"))
		return len(matches) > 0
	})

	return adapters.New(set, lang)
}

// checkOptions threads the CLI's run-scope flags into runChecks.
type checkOptions struct {
	CI            bool
	Staged        bool
	BaseRef       string
	NoLimit       bool
	LimitOverride *int
}

func runChecks(ctx context.Context, root string, cfg *config.Config, registry *adapters.Registry, mc *matcher.Cache, opts checkOptions, timer *output.Timing) (map[string]violation.Result, error) {
	ignorer, err := ignore.NewMatcher(root)
	if err != nil {
		return nil, fmt.Errorf("building ignore matcher: %w", err)
	}

	var fileCache *cache.Cache
	cacheDir := filepath.Join(root, ".quench", "cache")
	fileCache, err = cache.Open(cacheDir)
	if err != nil {
		logger.Warn("cache unavailable, running without it", logger.Err(err))
		fileCache = nil
	}
	if fileCache != nil {
		defer fileCache.Close()
	}

	mode := gitctx.ModeWorking
	switch {
	case opts.Staged:
		mode = gitctx.ModeStaged
	case opts.CI:
		mode = gitctx.ModeBase
	}
	baseRef := opts.BaseRef
	if baseRef == "" {
		baseRef = gitctx.DetectBaseRef(root)
	}
	changeSet, err := gitctx.ExtractChangeSet(root, mode, baseRef)
	if err != nil {
		logger.Warn("change set unavailable, change-set-aware checks will be skipped", logger.Err(err))
		changeSet = nil
	}

	perFile, aggregate := buildChecks(*cfg, mc)

	violationCap := cfg.Output.ViolationCap
	switch {
	case opts.CI || opts.NoLimit:
		violationCap = 0
	case opts.LimitOverride != nil:
		violationCap = *opts.LimitOverride
	}

	runner := check.New(perFile, aggregate, fileCache, registry, check.Config{
		ViolationCap: violationCap,
		ConfigHash:   configHash(cfg),
	})
	if changeSet != nil {
		runner = runner.WithChangeSet(changeSet)
	}

	walker := walk.New(root, ignorer, walk.WithMaxDepth(cfg.Walk.MaxDepth))
	entries, walkErrs := walker.Walk(ctx)
	if timer != nil {
		counted := make(chan walk.Entry)
		go func(in <-chan walk.Entry) {
			defer close(counted)
			for e := range in {
				timer.FileScanned()
				counted <- e
			}
		}(entries)
		entries = counted
	}

	go func() {
		for e := range walkErrs {
			logger.Warn("walk error", logger.Err(e))
		}
	}()

	results := runner.Run(ctx, root, entries)

	if r, ok := results["suppress"]; ok {
		enrichSuppressBlame(root, r.Violations)
	}

	if cfg.Checks.Build {
		buildResult, buildMetrics := runBuildCheck(ctx, root, *cfg)
		buildResult.Metrics = buildMetrics
		results["build"] = buildResult
	}
	if len(cfg.Suites) > 0 {
		suitesResult, suiteMetrics := runSuites(ctx, root, *cfg)
		suitesResult.Metrics = suiteMetrics
		results["tests_runner"] = suitesResult
	}

	return results, nil
}

func buildChecks(cfg config.Config, mc *matcher.Cache) ([]check.PerFileCheck, []check.AggregateCheck) {
	var perFile []check.PerFileCheck
	var aggregate []check.AggregateCheck

	if cfg.Checks.Suppress {
		perFile = append(perFile, suppress.New(suppressConfigFrom(cfg.Suppress)))
	}
	if cfg.Checks.License {
		perFile = append(perFile, license.New(license.Config{
			SPDX:            cfg.License.SPDX,
			CopyrightHolder: cfg.License.Copyright,
		}))
	}
	if cfg.Checks.Cloc {
		aggregate = append(aggregate, cloc.New(cloc.Config{
			Default: cloc.Thresholds{
				MaxLinesSource: cfg.Cloc.MaxLinesSource,
				MaxLinesTest:   cfg.Cloc.MaxLinesTest,
				MaxTokens:      cfg.Cloc.MaxTokens,
			},
			Packages: cfg.Cloc.Packages,
		}))
	}
	if cfg.Checks.Escapes {
		aggregate = append(aggregate, escapes.New(escapes.Config{
			Extra:    escapePatternsByLanguage(cfg.Escapes.Patterns),
			Packages: cfg.Cloc.Packages,
			Cache:    mc,
		}))
	}
	if cfg.Checks.Policy {
		aggregate = append(aggregate, policy.New(policy.Config{ConfigFiles: cfg.Policy.LintConfigFiles}))
	}
	if cfg.Checks.Agents {
		aggregate = append(aggregate, agents.New(agentsConfigFrom(cfg.Agents)))
	}
	if cfg.Checks.Docs {
		aggregate = append(aggregate, docs.New(docs.Config{
			SpecsDir:      cfg.Docs.Dir,
			Mode:          docs.IndexMode(cfg.Docs.IndexMode),
			MarkdownGlobs: cfg.Docs.Globs,
		}))
	}
	if cfg.Checks.Tests {
		aggregate = append(aggregate, testscorrelation.New(testscorrelation.Config{
			Scope:        testscorrelation.ScopeMode(cfg.Tests.Scope),
			Placeholders: testscorrelation.PlaceholderPolicy(cfg.Tests.Placeholders),
		}))
	}
	if cfg.Checks.Git {
		aggregate = append(aggregate, commitcheck.New(commitcheck.Config{AllowedTypes: cfg.Git.CommitTypes}))
	}

	return perFile, aggregate
}

func suppressConfigFrom(c config.SuppressConfig) suppress.Config {
	return suppress.Config{
		Source: suppress.ScopePolicy{Default: suppress.Policy(c.SourcePolicy), ForbidCodes: c.Forbid, AllowCodes: c.Allow},
		Test:   suppress.ScopePolicy{Default: suppress.Policy(c.TestPolicy), ForbidCodes: c.Forbid, AllowCodes: c.Allow},
	}
}

func agentsConfigFrom(c config.AgentsConfig) agents.Config {
	var files []agents.AgentFile
	for _, f := range c.Files {
		policy := agents.PolicyRequired
		if f.Forbid {
			policy = agents.PolicyForbid
		}
		files = append(files, agents.AgentFile{Name: f.Path, Policy: policy})
	}
	var sections []agents.RequiredSection
	for _, f := range c.Files {
		for _, s := range f.RequiredSections {
			sections = append(sections, agents.RequiredSection{Name: s, Advice: f.SectionAdvice[s]})
		}
	}
	root := agents.ScopeConfig{Files: files, RequiredSections: sections}
	for _, f := range c.Files {
		if f.MaxLines > 0 {
			root.MaxLines = f.MaxLines
		}
		if f.MaxTokens > 0 {
			root.MaxTokens = f.MaxTokens
		}
		if f.Sync {
			root.Sync = true
			root.SyncSource = f.SyncSource
		}
		root.ForbiddenSectionGlobs = append(root.ForbiddenSectionGlobs, f.ForbiddenSections...)
	}
	return agents.Config{Root: root}
}

// escapePatternsByLanguage splits the flat escapes.patterns config list into
// per-language adapter additions (spec §4.8's "user-configured additions").
// Patterns apply to every adapter's language since quench.toml does not
// scope a pattern to one language.
func escapePatternsByLanguage(patterns []config.EscapePattern) map[adapters.Language][]adapters.EscapePattern {
	out := make(map[adapters.Language][]adapters.EscapePattern)
	for _, lang := range []adapters.Language{adapters.LanguageGo, adapters.LanguageRust, adapters.LanguageJavaScript, adapters.LanguageRuby, adapters.LanguageShell, adapters.LanguageGeneric} {
		for _, p := range patterns {
			action := adapters.EscapeAction(p.Action)
			testPolicy := adapters.ActionAllow
			if p.Scope == "test" || p.Scope == "both" {
				testPolicy = adapters.EscapeAction(p.TestPolicy)
				if testPolicy == "" {
					testPolicy = action
				}
			}
			if p.Scope == "test" {
				action = adapters.ActionAllow
			}
			out[lang] = append(out[lang], adapters.EscapePattern{
				Name:         p.Name,
				Pattern:      p.Pattern,
				Action:       action,
				RequiredText: p.CommentText,
				MaxCount:     p.Max,
				TestPolicy:   testPolicy,
			})
		}
	}
	return out
}

// enrichSuppressBlame attaches commit and author/age information to each
// suppress violation via `git blame`, so a reviewer can see who introduced a
// suppression and how stale it is without a separate lookup. Best-effort: a
// violation with no file/line, or a path git blame can't resolve (untracked,
// no repo), is left as-is.
func enrichSuppressBlame(root string, violations []violation.Violation) {
	for i := range violations {
		v := &violations[i]
		if v.File == nil || v.Line == nil {
			continue
		}
		info, ok := gitctx.BlameLine(root, *v.File, *v.Line)
		if !ok {
			continue
		}
		v.Commit = violation.StrPtr(info.Commit)
		if info.Author != "" {
			v.Advice = fmt.Sprintf("%s (introduced by %s, %s ago)", v.Advice, info.Author, info.Age(time.Now()).Round(24*time.Hour))
		}
	}
}

// runBuildCheck runs the build check and returns its result alongside the
// raw per-target metrics (build.size, build.time_cold, build.time_hot) the
// ratchet subsystem tracks (spec §4.16, §4.18).
func runBuildCheck(ctx context.Context, root string, cfg config.Config) (violation.Result, map[string]float64) {
	targets, err := build.EnumerateRustTargets(root)
	if err != nil {
		logger.Warn("no build targets discovered, skipping build check", logger.Err(err))
		return violation.Result{Name: "build", Status: violation.StatusSkipped}, nil
	}

	global := build.Thresholds{MaxColdTime: cfg.Build.ColdTimeMax, MaxHotTime: cfg.Build.HotTimeMax}
	if cfg.Build.SizeMax != "" {
		if sz, err := build.ParseSize(cfg.Build.SizeMax); err == nil {
			global.MaxSize = sz
		}
	}
	perTarget := make(map[string]build.Thresholds, len(cfg.Build.PerTargetSize))
	for name, sizeStr := range cfg.Build.PerTargetSize {
		sz, err := build.ParseSize(sizeStr)
		if err != nil {
			continue
		}
		perTarget[name] = build.Thresholds{MaxSize: sz}
	}

	checker := build.New(root, build.Config{
		Targets:           targets,
		Global:            global,
		PerTarget:         perTarget,
		MeasureBuildTimes: cfg.Build.ColdTimeMax > 0 || cfg.Build.HotTimeMax > 0,
	})
	violations, measurements, err := checker.Run(ctx)
	if err != nil {
		logger.Warn("build check failed", logger.Err(err))
		return violation.Result{Name: "build", Status: violation.StatusSkipped, Error: err.Error()}, nil
	}
	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}

	metrics := make(map[string]float64, len(measurements)*3)
	for _, m := range measurements {
		metrics["build.size."+m.Target] = float64(m.Size)
		if m.HasTimes {
			metrics["build.time_cold."+m.Target] = m.Cold.Seconds()
			metrics["build.time_hot."+m.Target] = m.Hot.Seconds()
		}
	}

	return violation.Result{Name: "build", Status: status, Violations: violations}, metrics
}

func configHash(cfg *config.Config) string {
	data, _ := json.Marshal(cfg)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// runSuites runs every configured suite and returns its result alongside the
// per-suite timing and coverage metrics the ratchet subsystem tracks, plus
// an aggregate coverage.total averaged across every suite whose driver could
// measure one (spec §4.15, §4.18).
func runSuites(ctx context.Context, root string, cfg config.Config) (violation.Result, map[string]float64) {
	var all []violation.Violation
	metrics := make(map[string]float64)
	var coverageSum float64
	var coverageCount int
	var goReports []testrunner.CoverageReport

	for _, s := range cfg.Suites {
		sc := testrunner.SuiteConfig{
			Kind:  testrunner.RunnerKind(s.Kind),
			Path:  filepath.Join(root, s.Path),
			Env:   s.Env,
			Setup: s.Setup,
			Thresholds: testrunner.Thresholds{
				MaxTotal:    s.MaxTotal,
				MaxAvg:      s.MaxAvg,
				MaxTest:     s.MaxTest,
				MinCoverage: s.CoverageMin,
			},
		}
		result, err := testrunner.RunSuite(ctx, sc)
		if err != nil {
			logger.Warn("suite run failed", logger.String("suite", s.Name), logger.Err(err))
			continue
		}
		coverage := testrunner.MeasureCoverage(ctx, sc)
		all = append(all, testrunner.ThresholdViolations(s.Name, result, sc.Thresholds, coverage, true)...)

		metrics["tests.time_total."+s.Name] = result.TotalDuration.Seconds()
		if len(result.PerTest) > 0 {
			avg := result.TotalDuration / time.Duration(len(result.PerTest))
			metrics["tests.time_avg."+s.Name] = avg.Seconds()

			var maxTest time.Duration
			for _, t := range result.PerTest {
				if t.Duration > maxTest {
					maxTest = t.Duration
				}
			}
			metrics["tests.time_test."+s.Name] = maxTest.Seconds()
		}
		if coverage.Measured {
			metrics["coverage."+s.Name] = coverage.Pct
			coverageSum += coverage.Pct
			coverageCount++
		}
		if len(coverage.Report.Lines) > 0 {
			goReports = append(goReports, coverage.Report)
		}
	}
	if coverageCount > 0 {
		metrics["coverage.total"] = coverageSum / float64(coverageCount)
	}
	if len(goReports) > 0 {
		metrics["coverage.merged"] = testrunner.MergeCoverage(goReports).Percent()
	}

	status := violation.StatusPassed
	if len(all) > 0 {
		status = violation.StatusFailed
	}
	return violation.Result{Name: "tests_runner", Status: status, Violations: all}, metrics
}

func ratchetStoreFrom(root string, cfg config.RatchetConfig) ratchet.Store {
	return ratchet.Store{
		Mode:     ratchet.Mode(cfg.Mode),
		Root:     root,
		FilePath: cfg.BaselinePath,
		NotesRef: cfg.NotesRef,
	}
}

func applyRatchetCompare(root string, cfg config.Config, results map[string]violation.Result, current ratchet.Baseline) {
	store := ratchetStoreFrom(root, cfg.Ratchet)
	baseline, ok, err := store.Load("")
	if err != nil || !ok {
		return
	}

	violations := ratchet.Compare(baseline, current.Metrics, cfg.Ratchet.Tolerance)
	status := violation.StatusPassed
	if len(violations) > 0 {
		status = violation.StatusFailed
	}
	results["ratchet"] = violation.Result{Name: "ratchet", Status: status, Violations: violations}
}

// metricsFromResults extracts the spec-named metrics each check's Result
// carries (spec §4.18): per-pattern escapes counts, per-target build size
// and time, and per-suite test timing/coverage. Any check with no typed
// metrics of its own still contributes a violation-count metric, so the
// ratchet can track a regression in a check that doesn't otherwise expose
// one.
func metricsFromResults(results map[string]violation.Result) map[string]float64 {
	out := make(map[string]float64)
	for name, r := range results {
		switch name {
		case "escapes":
			mergeEscapesMetrics(out, r.Metrics)
			continue
		case "build", "tests_runner":
			if m, ok := r.Metrics.(map[string]float64); ok {
				for k, v := range m {
					out[k] = v
				}
			}
			continue
		}
		out[name+".violations"] = float64(len(r.Violations))
	}
	return out
}

func mergeEscapesMetrics(out map[string]float64, metrics interface{}) {
	byPattern, ok := metrics.(map[string]interface{})
	if !ok {
		return
	}
	for pattern, raw := range byPattern {
		pm, ok := raw.(escapes.PatternMetrics)
		if !ok {
			continue
		}
		out["escapes."+pattern+".source"] = float64(pm.Source)
		out["escapes."+pattern+".test"] = float64(pm.Test)
	}
}
