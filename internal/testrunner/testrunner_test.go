package testrunner

import (
	"testing"
	"time"
)

func TestParseCargoEvents(t *testing.T) {
	data := []byte(`{"type":"suite","event":"started","test_count":2}
{"type":"test","event":"ok","name":"tests::it_works","exec_time":0.001}
{"type":"test","event":"failed","name":"tests::it_fails","exec_time":0.002}
{"type":"suite","event":"failed"}
`)
	result := parseCargoEvents(data)
	if result.Passed {
		t.Fatalf("expected overall failure when a test event failed")
	}
	if len(result.PerTest) != 2 {
		t.Fatalf("expected 2 per-test results, got %d", len(result.PerTest))
	}
	if result.PerTest[1].Passed {
		t.Fatalf("expected tests::it_fails to be marked failed")
	}
}

func TestParseBatsTAP(t *testing.T) {
	data := []byte("1..2\nok 1 first test # time=10ms\nnot ok 2 second test # time=20ms\n")
	result := parseBatsTAP(data)
	if result.Passed {
		t.Fatalf("expected overall failure")
	}
	if len(result.PerTest) != 2 {
		t.Fatalf("expected 2 per-test results, got %d", len(result.PerTest))
	}
	if result.PerTest[0].Duration != 10*time.Millisecond {
		t.Errorf("expected 10ms duration, got %v", result.PerTest[0].Duration)
	}
	if result.PerTest[1].Passed {
		t.Errorf("expected second test to be marked failed")
	}
}

func TestParsePytestOutput(t *testing.T) {
	data := []byte("test_foo.py::test_bar PASSED [ 50%]\ntest_foo.py::test_baz FAILED [100%]\n\n" +
		"0.25s call     test_foo.py::test_bar\n0.05s call     test_foo.py::test_baz\n")
	result := parsePytestOutput(data)
	if result.Passed {
		t.Fatalf("expected overall failure")
	}
	if len(result.PerTest) != 2 {
		t.Fatalf("expected 2 per-test results, got %d", len(result.PerTest))
	}
	if result.PerTest[0].Duration != 250*time.Millisecond {
		t.Errorf("expected 250ms duration, got %v", result.PerTest[0].Duration)
	}
}

func TestParseGoTestEvents(t *testing.T) {
	data := []byte(`{"Action":"run","Test":"TestFoo"}
{"Action":"pass","Test":"TestFoo","Elapsed":0.01}
{"Action":"fail","Test":"TestBar","Elapsed":0.02}
`)
	result := parseGoTestEvents(data)
	if result.Passed {
		t.Fatalf("expected overall failure")
	}
	if len(result.PerTest) != 2 {
		t.Fatalf("expected 2 per-test results, got %d", len(result.PerTest))
	}
}

func TestParseJSReport(t *testing.T) {
	data := []byte(`{"success":false,"testResults":[{"assertionResults":[` +
		`{"fullName":"a works","status":"passed","duration":5},` +
		`{"fullName":"b works","status":"failed","duration":7}]}]}`)
	result := parseJSReport(data)
	if result.Passed {
		t.Fatalf("expected overall failure")
	}
	if len(result.PerTest) != 2 {
		t.Fatalf("expected 2 per-test results, got %d", len(result.PerTest))
	}
}

func TestThresholdViolationsOnlyInCIMode(t *testing.T) {
	result := SuiteResult{TotalDuration: 10 * time.Second, PerTest: []TestResult{{Name: "a", Duration: 10 * time.Second, Passed: true}}}
	th := Thresholds{MaxTotal: time.Second, TimingMode: LevelFail}
	cov := CoverageMeasurement{Pct: 100, Measured: true}
	if vs := ThresholdViolations("suite", result, th, cov, false); len(vs) != 0 {
		t.Fatalf("expected no violations outside CI mode, got %+v", vs)
	}
	vs := ThresholdViolations("suite", result, th, cov, true)
	if len(vs) == 0 {
		t.Fatalf("expected time_total_exceeded in CI mode")
	}
}

func TestThresholdViolationsRespectOffLevel(t *testing.T) {
	result := SuiteResult{TotalDuration: 10 * time.Second}
	th := Thresholds{MaxTotal: time.Second, TimingMode: LevelOff}
	cov := CoverageMeasurement{Pct: 100, Measured: true}
	if vs := ThresholdViolations("suite", result, th, cov, true); len(vs) != 0 {
		t.Fatalf("expected no violations when TimingMode is off, got %+v", vs)
	}
}

func TestThresholdViolationsUnmeasuredCoverageNoFalsePositive(t *testing.T) {
	result := SuiteResult{}
	th := Thresholds{MinCoverage: 90, CoverageMode: LevelFail}
	if vs := ThresholdViolations("suite", result, th, CoverageMeasurement{}, true); len(vs) != 0 {
		t.Fatalf("expected no coverage_below_min when coverage was never measured, got %+v", vs)
	}
}

func TestParseGoCoverProfile(t *testing.T) {
	data := []byte("mode: set\n" +
		"pkg/foo.go:10.2,12.3 2 1\n" +
		"pkg/foo.go:20.2,22.3 1 0\n")
	report := parseGoCoverProfile(data)
	lines := report.Lines["pkg/foo.go"]
	if !lines[10] || !lines[11] || !lines[12] {
		t.Fatalf("expected lines 10-12 covered, got %+v", lines)
	}
	if lines[20] || lines[21] || lines[22] {
		t.Fatalf("expected lines 20-22 uncovered, got %+v", lines)
	}
}

func TestParseCargoLlvmCovLine(t *testing.T) {
	data := []byte("Filename  Regions  Missed  Cover  Functions  Missed  Cover  Lines  Missed  Cover  Branches  Missed  Cover\n" +
		"TOTAL     100      10      90.00%  20         2       90.00% 200    15      92.50% 0         0       -\n")
	pct, ok := parseCargoLlvmCovLine(data)
	if !ok {
		t.Fatal("expected a parsed percentage")
	}
	if pct != 92.50 {
		t.Errorf("expected the Lines Cover column (92.50), got %v", pct)
	}
}

func TestParseKcovSummary(t *testing.T) {
	pct, ok := parseKcovSummary([]byte(`{"percent_covered":"77.5"}`))
	if !ok || pct != 77.5 {
		t.Fatalf("expected 77.5, got %v ok=%v", pct, ok)
	}
}

func TestMergeCoverageMaxPerLine(t *testing.T) {
	a := CoverageReport{Lines: map[string]map[int]bool{"f.go": {1: true, 2: false}}}
	b := CoverageReport{Lines: map[string]map[int]bool{"f.go": {1: false, 2: true}}}
	merged := MergeCoverage([]CoverageReport{a, b})
	if !merged.Lines["f.go"][1] || !merged.Lines["f.go"][2] {
		t.Fatalf("expected both lines covered after merge, got %+v", merged.Lines["f.go"])
	}
}
