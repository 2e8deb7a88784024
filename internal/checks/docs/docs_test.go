package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/fsio"
	"github.com/alfredjeanlab/quench/internal/violation"
)

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

func TestMissingIndexFlagged(t *testing.T) {
	c := New(Config{SpecsDir: "docs"})
	res, err := c.RunAggregate(context.Background(), check.RunContext{})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !hasType(res.Violations, "missing_index") {
		t.Fatalf("expected missing_index violation, got %+v", res.Violations)
	}
}

func TestSkippedWithoutSpecsDir(t *testing.T) {
	c := New(Config{})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{})
	if res.Status != violation.StatusSkipped {
		t.Errorf("expected Skipped, got %s", res.Status)
	}
}

func TestTOCModeFindsUnreachableSpec(t *testing.T) {
	index := fileContext(t, "docs/CLAUDE.md", "# Index\n\n```tree\n├── foo.md\n```\n")
	referenced := fileContext(t, "docs/foo.md", "referenced\n")
	orphan := fileContext(t, "docs/orphan.md", "not referenced\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeTOC})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{index, referenced, orphan}})

	found := false
	for _, v := range res.Violations {
		if v.Type == "unreachable_spec" && v.File != nil && *v.File == "docs/orphan.md" {
			found = true
		}
		if v.Type == "unreachable_spec" && v.File != nil && *v.File == "docs/foo.md" {
			t.Fatalf("docs/foo.md is referenced and should not be unreachable")
		}
	}
	if !found {
		t.Fatalf("expected docs/orphan.md to be unreachable_spec, got %+v", res.Violations)
	}
}

func TestLinkedModeFindsUnreachableSpec(t *testing.T) {
	index := fileContext(t, "docs/CLAUDE.md", "# Index\n\nSee [foo](foo.md).\n")
	referenced := fileContext(t, "docs/foo.md", "referenced\n")
	orphan := fileContext(t, "docs/orphan.md", "not referenced\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeLinked})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{index, referenced, orphan}})

	if !hasType(res.Violations, "unreachable_spec") {
		t.Fatalf("expected unreachable_spec violation, got %+v", res.Violations)
	}
}

func TestAutoModeChoosesTOCWhenTreeBlockPresent(t *testing.T) {
	index := fileContext(t, "docs/CLAUDE.md", "# Index\n\n```tree\n├── foo.md\n```\n")
	referenced := fileContext(t, "docs/foo.md", "x\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeAuto})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{index, referenced}})
	if hasType(res.Violations, "unreachable_spec") {
		t.Fatalf("expected no unreachable_spec, got %+v", res.Violations)
	}
}

func TestBrokenLinkDetected(t *testing.T) {
	fc := fileContext(t, "docs/CLAUDE.md", "See [missing](missing.md) for details.\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeExists})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{fc}})
	if !hasType(res.Violations, "broken_link") {
		t.Fatalf("expected broken_link violation, got %+v", res.Violations)
	}
}

func TestAbsoluteURLLinksIgnored(t *testing.T) {
	fc := fileContext(t, "docs/CLAUDE.md", "See [site](https://example.com/page) for details.\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeExists})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{fc}})
	if hasType(res.Violations, "broken_link") {
		t.Fatalf("did not expect broken_link for an absolute URL, got %+v", res.Violations)
	}
}

func TestBrokenTOCDetected(t *testing.T) {
	fc := fileContext(t, "docs/CLAUDE.md", "# Index\n\n```tree\n├── missing.md\n```\n")
	c := New(Config{SpecsDir: "docs", Mode: ModeExists})
	res, _ := c.RunAggregate(context.Background(), check.RunContext{Files: []check.FileContext{fc}})
	if !hasType(res.Violations, "broken_toc") {
		t.Fatalf("expected broken_toc violation, got %+v", res.Violations)
	}
}
