package testscorrelation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/fsio"
	"github.com/alfredjeanlab/quench/internal/gitctx"
	"github.com/alfredjeanlab/quench/internal/violation"
)

func registry() *adapters.Registry {
	return adapters.New([]adapters.Adapter{adapters.Go(), adapters.Rust()}, adapters.LanguageGo)
}

func fileContext(t *testing.T, relPath, content string) check.FileContext {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := fsio.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return check.FileContext{RelPath: relPath, Content: c}
}

func hasType(vs []violation.Violation, typ string) bool {
	for _, v := range vs {
		if v.Type == typ {
			return true
		}
	}
	return false
}

func TestSkippedWithoutChangeSet(t *testing.T) {
	c := New(Config{})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Registry: registry()})
	if res.Status != violation.StatusSkipped {
		t.Errorf("expected Skipped, got %s", res.Status)
	}
}

func TestExpectedLocationMatchCorrelates(t *testing.T) {
	c := New(Config{})
	rc := check.RunContext{
		Registry: registry(),
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget.go", ChangeType: violation.ChangeModified},
			{RelPath: "internal/widget/widget_test.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if hasType(res.Violations, "missing_tests") {
		t.Fatalf("did not expect missing_tests, got %+v", res.Violations)
	}
}

func TestUncorrelatedSourceFlagged(t *testing.T) {
	c := New(Config{})
	rc := check.RunContext{
		Registry: registry(),
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget.go", ChangeType: violation.ChangeModified, LinesChanged: 5},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if !hasType(res.Violations, "missing_tests") {
		t.Fatalf("expected missing_tests violation, got %+v", res.Violations)
	}
}

func TestExcludedSourceNeverFlagged(t *testing.T) {
	c := New(Config{})
	rc := check.RunContext{
		Registry: registry(),
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "cmd/quench/main.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if hasType(res.Violations, "missing_tests") {
		t.Fatalf("did not expect missing_tests for main.go, got %+v", res.Violations)
	}
}

func TestBaseNameIndexCorrelates(t *testing.T) {
	c := New(Config{})
	rc := check.RunContext{
		Registry: registry(),
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget.go", ChangeType: violation.ChangeModified},
			{RelPath: "internal/otherpkg/widget_test.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if hasType(res.Violations, "missing_tests") {
		t.Fatalf("did not expect missing_tests, base-name index should correlate, got %+v", res.Violations)
	}
}

func TestPlaceholderAtExpectedLocationCorrelates(t *testing.T) {
	testFile := fileContext(t, "internal/widget/widget_test.go", "func TestWidget(t *testing.T) { test.skip(\"todo\") }\n")
	c := New(Config{})
	rc := check.RunContext{
		Registry: registry(),
		Files:    []check.FileContext{testFile},
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if hasType(res.Violations, "missing_tests") {
		t.Fatalf("expected a placeholder test at the expected location to correlate, got %+v", res.Violations)
	}
}

func TestPlaceholderForbiddenStillFlagged(t *testing.T) {
	testFile := fileContext(t, "internal/widget/widget_test.go", "func TestWidget(t *testing.T) { test.skip(\"todo\") }\n")
	c := New(Config{Placeholders: PlaceholderForbid})
	rc := check.RunContext{
		Registry: registry(),
		Files:    []check.FileContext{testFile},
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if !hasType(res.Violations, "missing_tests") {
		t.Fatalf("expected missing_tests when placeholders are forbidden, got %+v", res.Violations)
	}
}

func TestInlineCfgTestTouchedCorrelates(t *testing.T) {
	rust := adapters.Rust()
	reg := adapters.New([]adapters.Adapter{rust}, adapters.LanguageRust)
	content := "fn f() {}\n\n#[cfg(test)]\nmod tests {\n    #[test]\n    fn it_works() {\n        assert!(true);\n    }\n}\n"
	fc := fileContext(t, "src/lib2.rs", content)
	c := New(Config{})
	rc := check.RunContext{
		Registry: reg,
		Files:    []check.FileContext{fc},
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "src/lib2.rs", ChangeType: violation.ChangeModified, AddedLines: []int{7}},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if hasType(res.Violations, "missing_tests") {
		t.Fatalf("expected inline cfg(test) edit to correlate, got %+v", res.Violations)
	}
}

func TestCommitScopeAllTestOnlyPasses(t *testing.T) {
	c := New(Config{Scope: ScopeCommit})
	rc := check.RunContext{
		Registry: registry(),
		ChangeSet: &gitctx.ChangeSet{Files: []gitctx.FileChange{
			{RelPath: "internal/widget/widget_test.go", ChangeType: violation.ChangeModified},
		}},
	}
	res, _ := c.RunAggregate(context.Background(), rc)
	if res.Status != violation.StatusPassed {
		t.Errorf("expected Passed for a test-only commit, got %s: %+v", res.Status, res.Violations)
	}
}
