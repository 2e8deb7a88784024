// Package output implements the output assembler (spec §4.19): a uniform
// rendering of a scan's check results for either local developer feedback
// (terse colorized text) or CI consumption (buffered JSON), plus the
// optional --timing counters (spec §B's prometheus wiring).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/alfredjeanlab/quench/internal/violation"
)

// Format selects the rendering mode (spec §6's `--output text|json`).
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Totals carries the run-level summary fields every output mode surfaces
// (spec §6's JSON `totals` field).
type Totals struct {
	RunID        string  `json:"run_id"`
	FilesScanned int     `json:"files_scanned"`
	Violations   int     `json:"violations"`
	DurationSecs float64 `json:"duration_secs"`
}

// NewTotals stamps a fresh per-run correlation id (spec §B: "google/uuid...
// per-run correlation id in JSON output totals").
func NewTotals() Totals {
	return Totals{RunID: uuid.NewString()}
}

// Options tunes how Assembler renders.
type Options struct {
	Format Format
	Color  bool
	Writer io.Writer
}

// ResolveColor applies spec §6's environment-sensing rule: color defaults
// off when CLAUDE_CODE, CODEX, or CURSOR is set, or when w is not a
// terminal; otherwise on.
func ResolveColor(w io.Writer) bool {
	if os.Getenv("CLAUDE_CODE") != "" || os.Getenv("CODEX") != "" || os.Getenv("CURSOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			return info.Mode()&os.ModeCharDevice != 0
		}
		return false
	}
	return false
}

// Assembler renders a completed set of check results (spec §4.19).
type Assembler struct {
	opts Options
}

func New(opts Options) *Assembler {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Assembler{opts: opts}
}

// Passed reports the overall pass/fail per spec §7/§8: 0 iff every enabled
// check is Passed or Skipped (violation.Result.Passed already covers
// Stub, which the runner never produces but which a future check kind
// might).
func Passed(results map[string]violation.Result) bool {
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}

// Render writes results in the configured format.
func (a *Assembler) Render(results map[string]violation.Result, totals Totals) error {
	switch a.opts.Format {
	case FormatJSON:
		return a.renderJSON(results, totals)
	default:
		return a.renderText(results, totals)
	}
}

// jsonEnvelope is the top-level JSON object (spec §6).
type jsonEnvelope struct {
	Passed bool              `json:"passed"`
	Checks []jsonCheckResult `json:"checks"`
	Totals Totals            `json:"totals"`
}

type jsonCheckResult struct {
	Name           string                 `json:"name"`
	Passed         bool                   `json:"passed"`
	Violations     []violation.Violation  `json:"violations"`
	Metrics        interface{}            `json:"metrics,omitempty"`
	PackageMetrics map[string]interface{} `json:"by_package,omitempty"`
}

func (a *Assembler) renderJSON(results map[string]violation.Result, totals Totals) error {
	env := jsonEnvelope{Passed: Passed(results), Totals: totals}
	for _, name := range sortedCheckNames(results) {
		r := results[name]
		env.Checks = append(env.Checks, jsonCheckResult{
			Name:           r.Name,
			Passed:         r.Passed(),
			Violations:     r.Violations,
			Metrics:        r.Metrics,
			PackageMetrics: r.PackageMetrics,
		})
	}
	enc := json.NewEncoder(a.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// summaryTemplate renders the final one-line PASS/FAIL summary (spec §7's
// "a final PASS|FAIL summary"); kept as a tiny Handlebars template so the
// summary line's shape can be tuned without touching Go code, mirroring
// goneat's own Handlebars-templated report summaries.
const summaryTemplate = `{{#if passed}}PASS{{else}}FAIL{{/if}} ({{violations}} violation{{#unless one}}s{{/unless}} across {{files}} files, {{duration}})`

func (a *Assembler) renderText(results map[string]violation.Result, totals Totals) error {
	w := a.opts.Writer
	for _, name := range sortedCheckNames(results) {
		r := results[name]
		status := statusWord(r)
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.Name, a.colorize(status)); err != nil {
			return err
		}
		for _, v := range r.Violations {
			if err := writeViolationLine(w, v); err != nil {
				return err
			}
		}
	}

	summary, err := raymond.Render(summaryTemplate, map[string]interface{}{
		"passed":     Passed(results),
		"violations": totals.Violations,
		"one":        totals.Violations == 1,
		"files":      totals.FilesScanned,
		"duration":   strconv.FormatFloat(totals.DurationSecs, 'f', 2, 64) + "s",
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, a.colorize(summary))
	return err
}

func statusWord(r violation.Result) string {
	switch r.Status {
	case violation.StatusPassed:
		return "PASS"
	case violation.StatusSkipped:
		return "SKIP"
	case violation.StatusStub:
		return "STUB"
	case violation.StatusFixed:
		return "FIXED"
	case violation.StatusPreview:
		return "PREVIEW"
	default:
		return "FAIL"
	}
}

// writeViolationLine prints one violation as `  <file>:<line>: <type> —
// <advice>` (spec §7), aligning the location column with runewidth so
// wide-rune paths (e.g. CJK directory names) don't desync the summary
// column the way a naive len() would.
func writeViolationLine(w io.Writer, v violation.Violation) error {
	var loc strings.Builder
	if v.File != nil {
		loc.WriteString(*v.File)
		if v.Line != nil {
			loc.WriteString(":")
			loc.WriteString(strconv.Itoa(*v.Line))
		}
	}
	location := loc.String()
	padded := location
	if w := runewidth.StringWidth(location); w < 40 && location != "" {
		padded = location + strings.Repeat(" ", 40-w)
	}
	if location == "" {
		_, err := fmt.Fprintf(w, "  %s — %s\n", v.Type, v.Advice)
		return err
	}
	_, err := fmt.Fprintf(w, "  %s: %s — %s\n", padded, v.Type, v.Advice)
	return err
}

func (a *Assembler) colorize(s string) string {
	if !a.opts.Color {
		return s
	}
	switch {
	case strings.HasPrefix(s, "PASS"):
		return "\x1b[32m" + s + "\x1b[0m"
	case strings.HasPrefix(s, "FAIL"):
		return "\x1b[31m" + s + "\x1b[0m"
	case strings.HasPrefix(s, "SKIP"):
		return "\x1b[33m" + s + "\x1b[0m"
	default:
		return s
	}
}

func sortedCheckNames(results map[string]violation.Result) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountViolations sums every check's violation count, for callers building
// a Totals before Render.
func CountViolations(results map[string]violation.Result) int {
	n := 0
	for _, r := range results {
		n += len(r.Violations)
	}
	return n
}
