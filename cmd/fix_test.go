package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/pkg/config"
)

func TestFixLicenseWritesHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	registry := buildRegistry(dir, config.Config{})
	result := violation.Result{Violations: []violation.Violation{
		{File: violation.StrPtr("main.go"), Type: "missing_license"},
	}}

	var out bytes.Buffer
	fixLicense(dir, config.Config{License: config.LicenseConfig{SPDX: "Apache-2.0", Copyright: "Acme"}}, registry, result, false, &out)

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(written), "SPDX-License-Identifier: Apache-2.0") {
		t.Fatalf("expected a license header to be inserted, got %q", written)
	}
	if !strings.Contains(string(written), "package main") {
		t.Fatalf("expected original content to survive, got %q", written)
	}
}

func TestFixLicenseDryRunLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	original := "package main\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	registry := buildRegistry(dir, config.Config{})
	result := violation.Result{Violations: []violation.Violation{
		{File: violation.StrPtr("main.go"), Type: "missing_license"},
	}}

	var out bytes.Buffer
	fixLicense(dir, config.Config{License: config.LicenseConfig{SPDX: "Apache-2.0", Copyright: "Acme"}}, registry, result, true, &out)

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(written) != original {
		t.Fatalf("expected dry-run to leave the file untouched, got %q", written)
	}
	if !strings.Contains(out.String(), "preview: main.go") {
		t.Fatalf("expected a diff preview, got %q", out.String())
	}
}

func TestFixAgentsSyncsFromSource(t *testing.T) {
	dir := t.TempDir()
	source := "## Build\nrun make\n"
	target := "## Build\nold instructions\n"
	if err := os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte(source), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(target), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}

	cfg := config.AgentsConfig{Files: []config.AgentFile{
		{Path: "CLAUDE.md", Sync: true, SyncSource: "CLAUDE.md"},
		{Path: "AGENTS.md", Sync: true, SyncSource: "CLAUDE.md"},
	}}

	var out bytes.Buffer
	fixAgents(dir, cfg, false, &out)

	written, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(written), "run make") {
		t.Fatalf("expected AGENTS.md to be synced from CLAUDE.md, got %q", written)
	}
}

func TestEnrichSuppressBlameSkipsUnanchoredViolations(t *testing.T) {
	vs := []violation.Violation{{Type: "suppress_missing_comment"}}
	enrichSuppressBlame(t.TempDir(), vs)
	if vs[0].Commit != nil {
		t.Fatalf("expected no commit enrichment without a file/line, got %+v", vs[0])
	}
}
