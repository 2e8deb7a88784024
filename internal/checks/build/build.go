// Package build implements the build check (spec §4.16): enumerates build
// targets, measures release binary size and cold/hot build times, and
// compares each against per-target, then global, then no threshold.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/alfredjeanlab/quench/internal/violation"
)

// Target is one build target: a name and the path to its built artifact,
// relative to root.
type Target struct {
	Name         string
	ManifestPath string // e.g. Cargo.toml's [[bin]].path
	BinaryPath   string // resolved release-build output, relative to root
}

// Thresholds are the optional per-target (or global) build gates.
type Thresholds struct {
	MaxSize     int64 // bytes; 0 disables
	MaxColdTime time.Duration
	MaxHotTime  time.Duration
}

// Config configures the build check.
type Config struct {
	Targets           []Target
	Global            Thresholds
	PerTarget         map[string]Thresholds
	MeasureBuildTimes bool // when false, only binary size is measured
}

func (c Config) thresholdsFor(name string) Thresholds {
	if t, ok := c.PerTarget[name]; ok {
		return t
	}
	return c.Global
}

// Check implements a build-target enumeration and measurement pass. It is
// not a check.AggregateCheck: it shells out to the build toolchain rather
// than operating over the walked file set, so it is invoked directly by the
// cmd/ layer (spec §4.16 is a --ci-mode-only pass, same as internal/testrunner).
type Check struct {
	cfg  Config
	root string
}

func New(root string, cfg Config) *Check { return &Check{cfg: cfg, root: root} }

// Measurement is one target's raw build measurements, returned alongside
// Run's violations so the ratchet subsystem can track build.size,
// build.time_cold, and build.time_hot as metrics rather than only learning
// about a target once it fails a threshold (spec §4.18).
type Measurement struct {
	Target   string
	Size     int64
	Cold     time.Duration
	Hot      time.Duration
	HasTimes bool
}

// Run measures every configured target and returns its violations plus the
// raw per-target measurements behind them.
func (c *Check) Run(ctx context.Context) ([]violation.Violation, []Measurement, error) {
	targets := c.cfg.Targets
	if len(targets) == 0 {
		return nil, nil, nil
	}

	var violations []violation.Violation
	var measurements []Measurement
	for _, t := range targets {
		th := c.cfg.thresholdsFor(t.Name)

		size, err := c.releaseBinarySize(ctx, t)
		if err != nil {
			violations = append(violations, violation.Violation{
				Target: violation.StrPtr(t.Name),
				Type:   "missing_target",
				Advice: "target \"" + t.Name + "\" did not produce a release binary: " + err.Error(),
			})
			continue
		}
		m := Measurement{Target: t.Name, Size: size}
		if th.MaxSize > 0 && size > th.MaxSize {
			violations = append(violations, violation.Violation{
				Target:    violation.StrPtr(t.Name),
				Type:      "size_exceeded",
				Advice:    "release binary exceeds the configured size limit",
				Value:     size,
				Threshold: th.MaxSize,
			})
		}

		if !c.cfg.MeasureBuildTimes {
			measurements = append(measurements, m)
			continue
		}

		cold, hot, err := c.buildTimes(ctx, t)
		if err != nil {
			measurements = append(measurements, m)
			continue
		}
		m.Cold, m.Hot, m.HasTimes = cold, hot, true
		measurements = append(measurements, m)

		if th.MaxColdTime > 0 && cold > th.MaxColdTime {
			violations = append(violations, violation.Violation{
				Target: violation.StrPtr(t.Name), Type: "time_cold_exceeded",
				Advice:    "cold build time exceeds the configured limit",
				Value:     cold.String(),
				Threshold: th.MaxColdTime.String(),
			})
		}
		if th.MaxHotTime > 0 && hot > th.MaxHotTime {
			violations = append(violations, violation.Violation{
				Target: violation.StrPtr(t.Name), Type: "time_hot_exceeded",
				Advice:    "hot build time exceeds the configured limit",
				Value:     hot.String(),
				Threshold: th.MaxHotTime.String(),
			})
		}
	}
	return violations, measurements, nil
}

func (c *Check) releaseBinarySize(ctx context.Context, t Target) (int64, error) {
	if err := c.buildRelease(ctx, t); err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(c.root, t.BinaryPath))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (c *Check) buildRelease(ctx context.Context, t Target) error {
	cmd := exec.CommandContext(ctx, "cargo", "build", "--release", "--bin", t.Name)
	cmd.Dir = c.root
	return cmd.Run()
}

func (c *Check) buildTimes(ctx context.Context, t Target) (cold, hot time.Duration, err error) {
	clean := exec.CommandContext(ctx, "cargo", "clean", "--release", "--package", t.Name)
	clean.Dir = c.root
	_ = clean.Run()

	start := time.Now()
	if err = c.buildRelease(ctx, t); err != nil {
		return 0, 0, err
	}
	cold = time.Since(start)

	if err = touchFile(filepath.Join(c.root, t.ManifestPath)); err != nil {
		return cold, 0, err
	}
	start = time.Now()
	if err = c.buildRelease(ctx, t); err != nil {
		return cold, 0, err
	}
	hot = time.Since(start)
	return cold, hot, nil
}

func touchFile(path string) error {
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// --- target enumeration ---

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// EnumerateRustTargets parses root/Cargo.toml for [[bin]] targets, plus the
// default binary at src/main.rs when present (spec §4.16).
func EnumerateRustTargets(root string) ([]Target, error) {
	data, err := os.ReadFile(filepath.Join(root, "Cargo.toml"))
	if err != nil {
		return nil, fmt.Errorf("reading Cargo.toml: %w", err)
	}
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing Cargo.toml: %w", err)
	}

	var targets []Target
	for _, b := range manifest.Bin {
		targets = append(targets, Target{
			Name:         b.Name,
			ManifestPath: b.Path,
			BinaryPath:   filepath.Join("target", "release", b.Name),
		})
	}

	if _, err := os.Stat(filepath.Join(root, "src", "main.rs")); err == nil && manifest.Package.Name != "" {
		if !hasTarget(targets, manifest.Package.Name) {
			targets = append(targets, Target{
				Name:         manifest.Package.Name,
				ManifestPath: filepath.Join("src", "main.rs"),
				BinaryPath:   filepath.Join("target", "release", manifest.Package.Name),
			})
		}
	}
	return targets, nil
}

func hasTarget(targets []Target, name string) bool {
	for _, t := range targets {
		if t.Name == name {
			return true
		}
	}
	return false
}

// --- size-string parsing ---

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*(B|KB|MB|GB|KiB|MiB|GiB)?\s*$`)

// ParseSize parses size strings like "10 MB" (spec §4.16). KB/MB/GB are
// treated as KiB-base (1024), matching KiB/MiB/GiB exactly.
func ParseSize(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("build: invalid size string %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("build: invalid size string %q: %w", s, err)
	}
	unit := strings.ToUpper(m[2])
	var multiplier float64 = 1
	switch unit {
	case "", "B":
		multiplier = 1
	case "KB", "KIB":
		multiplier = 1024
	case "MB", "MIB":
		multiplier = 1024 * 1024
	case "GB", "GIB":
		multiplier = 1024 * 1024 * 1024
	}
	return int64(value * multiplier), nil
}
