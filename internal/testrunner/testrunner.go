// Package testrunner implements quench's uniform test-runner driver contract
// (spec §4.15): given a suite configuration, execute the suite in CI mode and
// return pass/fail, total duration, and per-test timing, regardless of which
// underlying tool produced it.
package testrunner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/pkg/logger"
)

// RunnerKind selects the underlying test tool.
type RunnerKind string

const (
	RunnerCargo  RunnerKind = "cargo"
	RunnerBats   RunnerKind = "bats"
	RunnerPytest RunnerKind = "pytest"
	RunnerJest   RunnerKind = "jest"
	RunnerVitest RunnerKind = "vitest"
	RunnerBun    RunnerKind = "bun"
	RunnerGo     RunnerKind = "go"
	RunnerCustom RunnerKind = "custom"
)

// CheckLevel is a per-threshold on/off switch (spec §4.15: "only when the
// corresponding check level is not off").
type CheckLevel string

const (
	LevelOff  CheckLevel = "off"
	LevelWarn CheckLevel = "warn"
	LevelFail CheckLevel = "fail"
)

// Thresholds are the optional per-suite timing/coverage gates.
type Thresholds struct {
	MaxTotal     time.Duration
	MaxAvg       time.Duration
	MaxTest      time.Duration
	MinCoverage  float64 // percent, 0-100; 0 disables
	CoverageMode CheckLevel
	TimingMode   CheckLevel
}

// SuiteConfig describes one test suite to execute.
type SuiteConfig struct {
	Kind       RunnerKind
	Path       string // working directory the command runs in
	Env        map[string]string
	Setup      string // optional shell command run before the suite
	Command    string // for RunnerCustom: the arbitrary command to run
	Thresholds Thresholds
}

// TestResult is one individual test's outcome.
type TestResult struct {
	Name     string
	Duration time.Duration
	Passed   bool
}

// SuiteResult is the uniform return shape every driver produces.
type SuiteResult struct {
	Passed        bool
	TotalDuration time.Duration
	PerTest       []TestResult
}

// RunSuite dispatches to the driver matching cfg.Kind.
func RunSuite(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	if cfg.Setup != "" {
		if err := runSetup(ctx, cfg); err != nil {
			return SuiteResult{}, fmt.Errorf("setup command failed: %w", err)
		}
	}

	switch cfg.Kind {
	case RunnerCargo:
		return runCargo(ctx, cfg)
	case RunnerBats:
		return runBats(ctx, cfg)
	case RunnerPytest:
		return runPytest(ctx, cfg)
	case RunnerJest, RunnerVitest, RunnerBun:
		return runJSSuite(ctx, cfg)
	case RunnerGo:
		return runGoTest(ctx, cfg)
	case RunnerCustom:
		return runCustomSuite(ctx, cfg)
	default:
		return SuiteResult{}, fmt.Errorf("testrunner: unknown runner kind %q", cfg.Kind)
	}
}

func runSetup(ctx context.Context, cfg SuiteConfig) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Setup)
	cmd.Dir = cfg.Path
	cmd.Env = suiteEnv(cfg)
	return cmd.Run()
}

func suiteEnv(cfg SuiteConfig) []string {
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func runCommand(ctx context.Context, cfg SuiteConfig, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cfg.Path
	cmd.Env = suiteEnv(cfg)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// --- cargo ---

type cargoEvent struct {
	Type     string  `json:"type"`
	Event    string  `json:"event"`
	Name     string  `json:"name"`
	ExecTime float64 `json:"exec_time"`
}

func runCargo(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	out, runErr := runCommand(ctx, cfg, "cargo", "test", "--release", "--", "--format", "json")
	result := parseCargoEvents(out)
	if runErr != nil {
		logger.Warn("testrunner: cargo test exited non-zero", logger.Err(runErr))
	}
	return result, nil
}

func parseCargoEvents(out []byte) SuiteResult {
	var result SuiteResult
	result.Passed = true
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev cargoEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "test":
			passed := ev.Event == "ok" || ev.Event == "ignored"
			if ev.Event == "failed" {
				passed = false
				result.Passed = false
			}
			d := time.Duration(ev.ExecTime * float64(time.Second))
			result.PerTest = append(result.PerTest, TestResult{Name: ev.Name, Duration: d, Passed: passed})
			result.TotalDuration += d
		case "suite":
			if ev.Event == "failed" {
				result.Passed = false
			}
		}
	}
	return result
}

// --- bats ---

var batsResultLine = regexp.MustCompile(`^(ok|not ok)\s+\d+\s+(.*?)(?:\s*#\s*time=(\d+(?:\.\d+)?)(ms|s))?$`)

func runBats(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	out, runErr := runCommand(ctx, cfg, "bats", "--timing")
	_ = runErr
	return parseBatsTAP(out), nil
}

func parseBatsTAP(out []byte) SuiteResult {
	var result SuiteResult
	result.Passed = true
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := batsResultLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		passed := m[1] == "ok"
		if !passed {
			result.Passed = false
		}
		var d time.Duration
		if m[3] != "" {
			v, _ := strconv.ParseFloat(m[3], 64)
			if m[4] == "ms" {
				d = time.Duration(v * float64(time.Millisecond))
			} else {
				d = time.Duration(v * float64(time.Second))
			}
		}
		result.PerTest = append(result.PerTest, TestResult{Name: m[2], Duration: d, Passed: passed})
		result.TotalDuration += d
	}
	return result
}

// --- pytest ---

var pytestResultLine = regexp.MustCompile(`^(\S+)\s+(PASSED|FAILED|ERROR|SKIPPED)\b`)
var pytestDurationLine = regexp.MustCompile(`^(\d+\.\d+)s\s+\w+\s+(\S+)`)

func runPytest(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	out, runErr := runCommand(ctx, cfg, "pytest", "--durations=0", "-v")
	_ = runErr
	return parsePytestOutput(out), nil
}

func parsePytestOutput(out []byte) SuiteResult {
	var result SuiteResult
	result.Passed = true
	statuses := make(map[string]bool)
	var order []string
	durations := make(map[string]time.Duration)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := pytestResultLine.FindStringSubmatch(line); m != nil {
			passed := m[2] == "PASSED" || m[2] == "SKIPPED"
			if m[2] == "FAILED" || m[2] == "ERROR" {
				passed = false
				result.Passed = false
			}
			if _, ok := statuses[m[1]]; !ok {
				order = append(order, m[1])
			}
			statuses[m[1]] = passed
			continue
		}
		if m := pytestDurationLine.FindStringSubmatch(line); m != nil {
			secs, _ := strconv.ParseFloat(m[1], 64)
			durations[m[2]] = time.Duration(secs * float64(time.Second))
		}
	}
	for _, name := range order {
		d := durations[name]
		result.PerTest = append(result.PerTest, TestResult{Name: name, Duration: d, Passed: statuses[name]})
		result.TotalDuration += d
	}
	return result
}

// --- jest / vitest / bun (shared --json report shape) ---

type jsReport struct {
	Success     bool `json:"success"`
	TestResults []struct {
		AssertionResults []struct {
			FullName        string  `json:"fullName"`
			Title            string  `json:"title"`
			Status           string  `json:"status"`
			DurationSeconds  float64 `json:"duration"` // milliseconds in jest; normalized below
		} `json:"assertionResults"`
	} `json:"testResults"`
}

func runJSSuite(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	bin := string(cfg.Kind)
	out, runErr := runCommand(ctx, cfg, bin, "--json")
	_ = runErr
	return parseJSReport(out), nil
}

func parseJSReport(out []byte) SuiteResult {
	var result SuiteResult
	var report jsReport
	if err := json.Unmarshal(extractLastJSONObject(out), &report); err != nil {
		return SuiteResult{Passed: false}
	}
	result.Passed = report.Success
	for _, file := range report.TestResults {
		for _, a := range file.AssertionResults {
			name := a.FullName
			if name == "" {
				name = a.Title
			}
			passed := a.Status == "passed"
			d := time.Duration(a.DurationSeconds * float64(time.Millisecond))
			result.PerTest = append(result.PerTest, TestResult{Name: name, Duration: d, Passed: passed})
			result.TotalDuration += d
		}
	}
	return result
}

// extractLastJSONObject returns the last top-level `{...}` in out, since
// jest/vitest/bun --json reporters may emit diagnostic lines before the
// final JSON report.
func extractLastJSONObject(out []byte) []byte {
	last := out
	for i := 0; i < len(out); i++ {
		if out[i] != '{' {
			continue
		}
		var raw json.RawMessage
		dec := json.NewDecoder(bytes.NewReader(out[i:]))
		if dec.Decode(&raw) == nil {
			last = raw
			i += int(dec.InputOffset()) - 1
		}
	}
	return last
}

// --- go test -json ---

type goTestEvent struct {
	Action  string  `json:"Action"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
}

func runGoTest(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	out, runErr := runCommand(ctx, cfg, "go", "test", "-json", "./...")
	_ = runErr
	return parseGoTestEvents(out), nil
}

func parseGoTestEvents(out []byte) SuiteResult {
	var result SuiteResult
	result.Passed = true
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev goTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Test == "" {
			continue
		}
		switch ev.Action {
		case "pass":
			d := time.Duration(ev.Elapsed * float64(time.Second))
			result.PerTest = append(result.PerTest, TestResult{Name: ev.Test, Duration: d, Passed: true})
			result.TotalDuration += d
		case "fail":
			d := time.Duration(ev.Elapsed * float64(time.Second))
			result.PerTest = append(result.PerTest, TestResult{Name: ev.Test, Duration: d, Passed: false})
			result.TotalDuration += d
			result.Passed = false
		}
	}
	return result
}

// --- custom ---

func runCustomSuite(ctx context.Context, cfg SuiteConfig) (SuiteResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Command)
	cmd.Dir = cfg.Path
	cmd.Env = suiteEnv(cfg)
	err := cmd.Run()
	return SuiteResult{Passed: err == nil, TotalDuration: time.Since(start)}, nil
}

// --- coverage measurement ---

// CoverageMeasurement is one suite's measured line-coverage percentage, when
// its driver is able to produce one. Report carries the underlying per-line
// data for drivers precise enough to build one (currently go test), so
// multiple suites' coverage can be combined with MergeCoverage rather than
// just averaged.
type CoverageMeasurement struct {
	Pct      float64
	Measured bool
	Report   CoverageReport
}

var coverPercentToken = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// MeasureCoverage invokes the coverage tool matching cfg.Kind, when one
// exists for that driver (spec §4.15's coverage_below_min gate): cargo
// llvm-cov for Rust, go test's own coverprofile for Go, pytest-cov for
// Python, and kcov for bash/bats. Jest, Vitest, Bun, and custom suites have
// no coverage-reporting convention shared across this driver set, so they
// are left unmeasured rather than guessing at a command.
func MeasureCoverage(ctx context.Context, cfg SuiteConfig) CoverageMeasurement {
	switch cfg.Kind {
	case RunnerCargo:
		out, _ := runCommand(ctx, cfg, "cargo", "llvm-cov", "--summary-only")
		if pct, ok := parseCargoLlvmCovLine(out); ok {
			return CoverageMeasurement{Pct: pct, Measured: true}
		}
	case RunnerPytest:
		out, _ := runCommand(ctx, cfg, "pytest", "--cov", "--cov-report=term")
		if pct, ok := parseCoverageTotalLine(out); ok {
			return CoverageMeasurement{Pct: pct, Measured: true}
		}
	case RunnerGo:
		if report, ok := measureGoCoverage(ctx, cfg); ok {
			return CoverageMeasurement{Pct: report.Percent(), Measured: true, Report: report}
		}
	case RunnerBats:
		if pct, ok := measureKcovCoverage(ctx, cfg); ok {
			return CoverageMeasurement{Pct: pct, Measured: true}
		}
	}
	return CoverageMeasurement{}
}

// parseCargoLlvmCovLine extracts the "Lines Cover" percentage from a `cargo
// llvm-cov --summary-only` TOTAL row, whose coverage columns run Regions,
// Functions, Lines, then Branches, in that order.
func parseCargoLlvmCovLine(out []byte) (float64, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(strings.TrimSpace(line), "TOTAL") {
			continue
		}
		matches := coverPercentToken.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		idx := 2
		if idx >= len(matches) {
			idx = len(matches) - 1
		}
		if pct, err := strconv.ParseFloat(matches[idx][1], 64); err == nil {
			return pct, true
		}
	}
	return 0, false
}

// parseCoverageTotalLine extracts the trailing percentage from a TOTAL
// summary row, the shape pytest-cov's term reporter produces.
func parseCoverageTotalLine(out []byte) (float64, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "TOTAL") {
			continue
		}
		matches := coverPercentToken.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		if pct, err := strconv.ParseFloat(matches[len(matches)-1][1], 64); err == nil {
			return pct, true
		}
	}
	return 0, false
}

// measureGoCoverage runs the suite under `go test -coverprofile` and parses
// the resulting profile into a CoverageReport (spec §4.15).
func measureGoCoverage(ctx context.Context, cfg SuiteConfig) (CoverageReport, bool) {
	tmp, err := os.CreateTemp("", "quench-gocover-*.out")
	if err != nil {
		return CoverageReport{}, false
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if _, err := runCommand(ctx, cfg, "go", "test", "-coverprofile="+tmpPath, "./..."); err != nil {
		logger.Warn("testrunner: go test coverage run failed", logger.Err(err))
	}

	data, err := os.ReadFile(tmpPath) // #nosec G304 -- tmpPath is process-owned, created above
	if err != nil {
		return CoverageReport{}, false
	}
	report := parseGoCoverProfile(data)
	if len(report.Lines) == 0 {
		return CoverageReport{}, false
	}
	return report, true
}

var goCoverProfileLine = regexp.MustCompile(`^(\S+\.go):(\d+)\.\d+,(\d+)\.\d+\s+\d+\s+(\d+)$`)

// parseGoCoverProfile parses a `go test -coverprofile` file's statement
// blocks into per-line coverage, marking every line in a block's range
// covered when the block's execution count is nonzero.
func parseGoCoverProfile(data []byte) CoverageReport {
	report := CoverageReport{Lines: make(map[string]map[int]bool)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := goCoverProfileLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		file := m[1]
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		count, _ := strconv.Atoi(m[4])
		covered := count > 0

		dst, ok := report.Lines[file]
		if !ok {
			dst = make(map[int]bool)
			report.Lines[file] = dst
		}
		for ln := start; ln <= end; ln++ {
			dst[ln] = dst[ln] || covered
		}
	}
	return report
}

// measureKcovCoverage runs the bats suite under kcov and reads the merged
// summary's percent_covered field (spec §4.15).
func measureKcovCoverage(ctx context.Context, cfg SuiteConfig) (float64, bool) {
	tmpDir, err := os.MkdirTemp("", "quench-kcov-*")
	if err != nil {
		return 0, false
	}
	defer os.RemoveAll(tmpDir)

	cmd := exec.CommandContext(ctx, "kcov", tmpDir, "bats", cfg.Path)
	cmd.Dir = cfg.Path
	cmd.Env = suiteEnv(cfg)
	if err := cmd.Run(); err != nil {
		logger.Warn("testrunner: kcov run failed", logger.Err(err))
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "kcov-merged", "coverage.json")) // #nosec G304 -- tmpDir is process-owned, created above
	if err != nil {
		return 0, false
	}
	return parseKcovSummary(data)
}

func parseKcovSummary(data []byte) (float64, bool) {
	var summary struct {
		PercentCovered string `json:"percent_covered"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(summary.PercentCovered, 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// --- thresholds ---

// ThresholdViolations emits timing/coverage violations, honoring spec §4.15's
// "only in CI mode and only when the corresponding check level is not off".
func ThresholdViolations(suiteName string, result SuiteResult, th Thresholds, coverage CoverageMeasurement, ciMode bool) []violation.Violation {
	if !ciMode {
		return nil
	}
	var out []violation.Violation
	suite := violation.StrPtr(suiteName)

	if th.TimingMode != LevelOff {
		if th.MaxTotal > 0 && result.TotalDuration > th.MaxTotal {
			out = append(out, violation.Violation{
				Suite: suite, Type: "time_total_exceeded",
				Advice:    "total suite duration exceeds the configured limit",
				Value:     result.TotalDuration.String(),
				Threshold: th.MaxTotal.String(),
			})
		}
		if th.MaxAvg > 0 && len(result.PerTest) > 0 {
			avg := result.TotalDuration / time.Duration(len(result.PerTest))
			if avg > th.MaxAvg {
				out = append(out, violation.Violation{
					Suite: suite, Type: "time_avg_exceeded",
					Advice:    "average per-test duration exceeds the configured limit",
					Value:     avg.String(),
					Threshold: th.MaxAvg.String(),
				})
			}
		}
		if th.MaxTest > 0 {
			for _, t := range result.PerTest {
				if t.Duration > th.MaxTest {
					out = append(out, violation.Violation{
						Suite: suite, Type: "time_test_exceeded",
						Advice:    "test \"" + t.Name + "\" exceeds the configured per-test limit",
						Value:     t.Duration.String(),
						Threshold: th.MaxTest.String(),
					})
				}
			}
		}
	}

	if th.CoverageMode != LevelOff && th.MinCoverage > 0 && coverage.Measured && coverage.Pct < th.MinCoverage {
		out = append(out, violation.Violation{
			Suite: suite, Type: "coverage_below_min",
			Advice:    "line coverage is below the configured minimum",
			Value:     coverage.Pct,
			Threshold: th.MinCoverage,
		})
	}

	return out
}
