// Package ratchet implements the ratchet subsystem (spec §4.18): baseline
// storage (a local file or a VCS-notes namespace — mutually exclusive per
// repo, spec §3), per-metric regression detection against configurable
// tolerances, and monotone improvement of the stored floor/ceiling set.
package ratchet

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the baseline file schema version (spec §6's
// "{version: u32, updated: RFC3339 timestamp, commit: string?, metrics}").
const CurrentVersion = 1

// Baseline is the stored ceiling/floor set a run is compared against.
type Baseline struct {
	Version int               `json:"version"`
	Updated time.Time         `json:"updated"`
	Commit  string            `json:"commit,omitempty"`
	Metrics map[string]float64 `json:"metrics"`
}

// MetricKind distinguishes a floor metric (higher is better, e.g. coverage)
// from a ceiling metric (lower is better, e.g. escape counts, binary size,
// build/test time) — spec §4.18's "floor metrics: coverage; ceiling
// metrics: escape count, size, time."
type MetricKind int

const (
	Ceiling MetricKind = iota
	Floor
)

// classify returns the MetricKind for a metric name by its dotted prefix.
// "coverage." is the only floor family (spec §3's "coverage floor per
// package and global"); everything else quench tracks is a ceiling.
func classify(name string) MetricKind {
	if len(name) >= len("coverage.") && name[:len("coverage.")] == "coverage." {
		return Floor
	}
	return Ceiling
}

// Marshal/Unmarshal round-trip a Baseline to/from the JSON format spec §6
// names for the on-disk and VCS-notes representations alike.
func Marshal(b Baseline) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

func Unmarshal(data []byte) (Baseline, error) {
	var b Baseline
	err := json.Unmarshal(data, &b)
	return b, err
}
