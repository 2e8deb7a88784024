package suppress

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/fsio"
)

func fileContext(t *testing.T, relPath string, kind adapters.FileKind, a adapters.Adapter, content string) check.FileContext {
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
	return check.FileContext{RelPath: relPath, Kind: kind, Adapter: a, Content: c}
}

func defaultConfig() Config {
	return Config{
		Source: ScopePolicy{Default: PolicyComment},
		Test:   ScopePolicy{Default: PolicyAllow},
	}
}

func TestGoNolintMissingReasonFlagged(t *testing.T) {
	c := New(defaultConfig())
	fc := fileContext(t, "main.go", adapters.KindSource, adapters.Go(), "x := f() //nolint:errcheck\n")
	vs, err := c.CheckFile(context.Background(), fc)
	if err != nil {
		t.Fatalf("CheckFile: %v", err)
	}
	if len(vs) != 1 || vs[0].Type != "suppress_missing_comment" {
		t.Fatalf("expected suppress_missing_comment, got %+v", vs)
	}
}

func TestGoNolintWithInlineReasonPasses(t *testing.T) {
	c := New(defaultConfig())
	fc := fileContext(t, "main.go", adapters.KindSource, adapters.Go(), "x := f() //nolint:errcheck // startup path, err is always nil\n")
	vs, _ := c.CheckFile(context.Background(), fc)
	if len(vs) != 0 {
		t.Fatalf("expected no violations, got %+v", vs)
	}
}

func TestGoNolintAllowedInTestScope(t *testing.T) {
	c := New(defaultConfig())
	fc := fileContext(t, "main_test.go", adapters.KindTest, adapters.Go(), "x := f() //nolint:errcheck\n")
	vs, _ := c.CheckFile(context.Background(), fc)
	if len(vs) != 0 {
		t.Fatalf("expected test scope to allow bare nolint, got %+v", vs)
	}
}

func TestRustAllowAttributeParsesCodes(t *testing.T) {
	c := New(defaultConfig())
	fc := fileContext(t, "src/lib.rs", adapters.KindSource, adapters.Rust(), "#[allow(dead_code, unused_variables)]\nfn f() {}\n")
	vs, _ := c.CheckFile(context.Background(), fc)
	if len(vs) != 2 {
		t.Fatalf("expected one suppress_missing_comment per code, got %d: %+v", len(vs), vs)
	}
	for _, v := range vs {
		if v.Type != "suppress_missing_comment" {
			t.Errorf("expected suppress_missing_comment, got %s", v.Type)
		}
	}
}

func TestPerCodeForbidOverridesDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.Source.ForbidCodes = []string{"unused_variables"}
	c := New(cfg)
	fc := fileContext(t, "src/lib.rs", adapters.KindSource, adapters.Rust(), "// justification\n#[allow(unused_variables)]\nfn f() {}\n")
	vs, _ := c.CheckFile(context.Background(), fc)
	if len(vs) != 1 || vs[0].Type != "suppress_forbidden" {
		t.Fatalf("expected suppress_forbidden despite the preceding comment, got %+v", vs)
	}
}

func TestShellcheckDisableParsesMultipleCodes(t *testing.T) {
	c := New(defaultConfig())
	fc := fileContext(t, "build.sh", adapters.KindSource, adapters.Shell(), "# shellcheck disable=SC1090,SC2034\nsource \"$f\"\n")
	vs, _ := c.CheckFile(context.Background(), fc)
	if len(vs) != 2 {
		t.Fatalf("expected 2 missing-comment violations (one per code), got %d: %+v", len(vs), vs)
	}
}
