package ratchet

import (
	"sort"

	"github.com/alfredjeanlab/quench/internal/violation"
)

// Tolerances maps a metric name to its allowed drift before a regression is
// flagged (spec §4.18: "A regression occurs when the delta exceeds the
// per-metric tolerance"). A metric with no entry uses DefaultTolerance.
type Tolerances map[string]float64

// DefaultTolerance applies to any tracked metric without a configured
// tolerance of its own.
const DefaultTolerance = 0.0

func (t Tolerances) get(name string) float64 {
	if v, ok := t[name]; ok {
		return v
	}
	return DefaultTolerance
}

// Compare evaluates current metrics against a baseline and returns one
// regression violation per metric whose delta exceeds tolerance (spec
// §4.18). Metrics present only in current (no baseline entry) are not
// compared — there is nothing to regress against yet.
func Compare(baseline Baseline, current map[string]float64, tol Tolerances) []violation.Violation {
	names := sortedNames(current)
	var violations []violation.Violation
	for _, name := range names {
		base, ok := baseline.Metrics[name]
		if !ok {
			continue
		}
		cur := current[name]
		tolerance := tol.get(name)

		switch classify(name) {
		case Floor:
			threshold := base - tolerance
			if cur < threshold {
				violations = append(violations, regressionViolation(name, cur, threshold))
			}
		default: // Ceiling
			threshold := base + tolerance
			if cur > threshold {
				violations = append(violations, regressionViolation(name, cur, threshold))
			}
		}
	}
	return violations
}

func regressionViolation(name string, value, threshold float64) violation.Violation {
	return violation.Violation{
		Type:      metricViolationType(name),
		Advice:    "metric \"" + name + "\" regressed past its ratcheted baseline",
		Pattern:   violation.StrPtr(name),
		Value:     value,
		Threshold: threshold,
	}
}

// metricViolationType maps a metric name to one of the spec's closed
// violation types for ratchet regressions (spec §4.15, §4.16, §4.18).
func metricViolationType(name string) string {
	switch {
	case hasPrefix(name, "coverage."):
		return "coverage_below_min"
	case hasPrefix(name, "build.size"):
		return "size_exceeded"
	case hasPrefix(name, "build.time_cold"):
		return "time_cold_exceeded"
	case hasPrefix(name, "build.time_hot"):
		return "time_hot_exceeded"
	case hasPrefix(name, "tests.time_total"):
		return "time_total_exceeded"
	case hasPrefix(name, "tests.time_avg"):
		return "time_avg_exceeded"
	case hasPrefix(name, "tests.time_test"):
		return "time_test_exceeded"
	default:
		return "threshold_exceeded"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Improved reports whether current is no worse than baseline along every
// dimension baseline tracks (spec §4.18's "Improvement detection").
// A metric with no prior baseline entry counts as neutral (not a
// regression, not required to improve).
func Improved(baseline Baseline, current map[string]float64) bool {
	for name, base := range baseline.Metrics {
		cur, ok := current[name]
		if !ok {
			continue
		}
		switch classify(name) {
		case Floor:
			if cur < base {
				return false
			}
		default:
			if cur > base {
				return false
			}
		}
	}
	return true
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
