package walk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alfredjeanlab/quench/pkg/ignore"
)

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	mustWrite := func(rel string, data string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	mustWrite("src/main.go", "package main\n")
	mustWrite("src/lib/helper.go", "package lib\n")
	mustWrite("vendor/dep/dep.go", "package dep\n")
	mustWrite(".git/HEAD", "ref: refs/heads/main\n")
	mustWrite("README.md", "# project\n")

	if err := os.MkdirAll(filepath.Join(root, "vendor"), 0o755); err != nil {
		t.Fatalf("mkdir vendor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("vendor/\n"), 0o644); err != nil {
		t.Fatalf("write gitignore: %v", err)
	}

	return root
}

func collect(t *testing.T, w *Walker) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, errc := w.Walk(ctx)
	var paths []string
	for entry := range out {
		paths = append(paths, entry.RelPath)
	}
	if err := <-errc; err != nil {
		t.Fatalf("walk returned error: %v", err)
	}
	sort.Strings(paths)
	return paths
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := setupTree(t)
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	w := New(root, matcher)
	paths := collect(t, w)

	for _, p := range paths {
		if filepath.Dir(p) == "vendor/dep" || p == "vendor/dep/dep.go" {
			t.Errorf("vendor/ should have been ignored, got %s", p)
		}
		if filepath.Dir(p) == ".git" {
			t.Errorf(".git should have been ignored, got %s", p)
		}
	}

	want := []string{"README.md", "src/lib/helper.go", "src/main.go"}
	if len(paths) != len(want) {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("at %d: expected %s, got %s", i, want[i], paths[i])
		}
	}
}

func TestWalkRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := root
	for i := 0; i < 5; i++ {
		deep = filepath.Join(deep, "d")
	}
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(deep, "leaf.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	w := New(root, matcher, WithMaxDepth(2))
	paths := collect(t, w)

	for _, p := range paths {
		if p == filepath.Join("d", "d", "d", "d", "d", "leaf.txt") {
			t.Errorf("leaf beyond max depth should not have been emitted, got %s", p)
		}
	}
}
