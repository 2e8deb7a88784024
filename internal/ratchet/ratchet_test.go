package ratchet

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := Store{Mode: ModeFile, Root: root}

	b := Baseline{Metrics: map[string]float64{"coverage.total": 80.5}, Updated: time.Now()}
	if err := store.Save(b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok, err := store.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("expected baseline to be found")
	}
	if loaded.Metrics["coverage.total"] != 80.5 {
		t.Fatalf("expected 80.5, got %v", loaded.Metrics["coverage.total"])
	}
	if loaded.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, loaded.Version)
	}

	if _, err := filepath.Abs(store.filePath()); err != nil {
		t.Fatalf("filePath: %v", err)
	}
}

func TestLoadMissingBaselineIsNotAnError(t *testing.T) {
	store := Store{Mode: ModeFile, Root: t.TempDir()}
	_, ok, err := store.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("expected no baseline to be found")
	}
}

func TestCompareCoverageRegression(t *testing.T) {
	baseline := Baseline{Metrics: map[string]float64{"coverage.total": 80.0}}
	current := map[string]float64{"coverage.total": 78.5}
	tol := Tolerances{"coverage.total": 1.0}

	vs := Compare(baseline, current, tol)
	if len(vs) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(vs), vs)
	}
	if vs[0].Type != "coverage_below_min" {
		t.Fatalf("expected coverage_below_min, got %s", vs[0].Type)
	}
	if vs[0].Threshold.(float64) != 79.0 {
		t.Fatalf("expected threshold 79.0, got %v", vs[0].Threshold)
	}
}

func TestCompareEscapeCeilingRegression(t *testing.T) {
	baseline := Baseline{Metrics: map[string]float64{"escapes.unsafe.source": 2}}
	current := map[string]float64{"escapes.unsafe.source": 5}

	vs := Compare(baseline, current, nil)
	if len(vs) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(vs))
	}
}

func TestCompareWithinToleranceIsNotARegression(t *testing.T) {
	baseline := Baseline{Metrics: map[string]float64{"coverage.total": 80.0}}
	current := map[string]float64{"coverage.total": 80.5}

	vs := Compare(baseline, current, nil)
	if len(vs) != 0 {
		t.Fatalf("expected no violations, got %+v", vs)
	}
}

func TestImprovedRequiresEveryDimension(t *testing.T) {
	baseline := Baseline{Metrics: map[string]float64{
		"coverage.total":        80.0,
		"escapes.unsafe.source": 2,
	}}

	better := map[string]float64{"coverage.total": 80.5, "escapes.unsafe.source": 1}
	if !Improved(baseline, better) {
		t.Fatalf("expected improvement")
	}

	worse := map[string]float64{"coverage.total": 80.5, "escapes.unsafe.source": 3}
	if Improved(baseline, worse) {
		t.Fatalf("expected no improvement (escapes regressed)")
	}
}

func TestStaleBaselineDetected(t *testing.T) {
	old := Baseline{Updated: time.Now().Add(-48 * time.Hour)}
	if !Stale(old, 24*time.Hour) {
		t.Fatalf("expected stale baseline")
	}
	fresh := Baseline{Updated: time.Now()}
	if Stale(fresh, 24*time.Hour) {
		t.Fatalf("expected fresh baseline to not be stale")
	}
}
