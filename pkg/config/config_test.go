package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tempDir := t.TempDir()
	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Version != CurrentSchemaVersion {
		t.Errorf("expected default version %d, got %d", CurrentSchemaVersion, cfg.Version)
	}
	if !cfg.Checks.Cloc || !cfg.Checks.Escapes || !cfg.Checks.Docs || !cfg.Checks.Tests || !cfg.Checks.Agents {
		t.Error("expected fast checks enabled by default")
	}
	if cfg.Checks.Build || cfg.Checks.License {
		t.Error("expected slow checks disabled by default")
	}
	if cfg.Walk.MaxDepth != 100 {
		t.Errorf("expected default max depth 100, got %d", cfg.Walk.MaxDepth)
	}
	if cfg.Output.ViolationCap != 15 {
		t.Errorf("expected default violation cap 15, got %d", cfg.Output.ViolationCap)
	}
	if cfg.Ratchet.Mode != "file" {
		t.Errorf("expected default ratchet mode file, got %q", cfg.Ratchet.Mode)
	}
}

func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	content := `version = 1

[checks]
cloc = true
escapes = false

[cloc]
max_lines_source = 500

[escapes]
patterns = [{ name = "unwrap", pattern = "\\.unwrap\\(\\)", scope = "source", action = "forbid" }]
`
	if err := os.WriteFile(filepath.Join(tempDir, "quench.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Checks.Escapes {
		t.Error("expected escapes check disabled by project config")
	}
	if cfg.Cloc.MaxLinesSource != 500 {
		t.Errorf("expected max_lines_source 500, got %d", cfg.Cloc.MaxLinesSource)
	}
	if len(cfg.Escapes.Patterns) != 1 || cfg.Escapes.Patterns[0].Name != "unwrap" {
		t.Errorf("expected one unwrap pattern, got %#v", cfg.Escapes.Patterns)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	tempDir := t.TempDir()
	content := "version = 2\n"
	if err := os.WriteFile(filepath.Join(tempDir, "quench.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(tempDir); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestLoadRejectsUnknownStrictKey(t *testing.T) {
	tempDir := t.TempDir()
	content := `version = 1

[suppress]
source_policy = "comment"
bogus_key = true
`
	if err := os.WriteFile(filepath.Join(tempDir, "quench.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	_, err := Load(tempDir)
	if err == nil {
		t.Fatal("expected error for unknown key in strict section")
	}
	var strictErr *StrictError
	if !asStrictError(err, &strictErr) {
		t.Fatalf("expected *StrictError, got %T: %v", err, err)
	}
	if strictErr.Section != "suppress" {
		t.Errorf("expected section suppress, got %q", strictErr.Section)
	}
}

func TestFindConfigFileSearchesParents(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "quench.toml"), []byte("version = 1\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	found := FindConfigFile(nested)
	if found == "" {
		t.Fatal("expected to find quench.toml in an ancestor directory")
	}
}

func asStrictError(err error, target **StrictError) bool {
	se, ok := err.(*StrictError)
	if ok {
		*target = se
	}
	return ok
}
