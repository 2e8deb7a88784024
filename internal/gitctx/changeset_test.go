package gitctx

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/quench/internal/violation"
)

func TestParseNameStatus(t *testing.T) {
	data := "A\tsrc/new.go\nM\tsrc/existing.go\nR100\tsrc/old.go\tsrc/renamed.go\n"
	out := parseNameStatus([]byte(data))
	if out["src/new.go"] != "A" {
		t.Errorf("expected A for new.go, got %q", out["src/new.go"])
	}
	if out["src/existing.go"] != "M" {
		t.Errorf("expected M for existing.go, got %q", out["src/existing.go"])
	}
	if out["src/renamed.go"] != "R" {
		t.Errorf("expected renamed.go recorded under its new path, got %+v", out)
	}
}

func TestParseNumstatPerFile(t *testing.T) {
	data := "5\t3\tsrc/main.go\n2\t0\tREADME.md\n"
	out := parseNumstatPerFile([]byte(data))
	if out["src/main.go"] != 8 {
		t.Errorf("expected 8 lines changed for main.go, got %d", out["src/main.go"])
	}
	if out["README.md"] != 2 {
		t.Errorf("expected 2 lines changed for README.md, got %d", out["README.md"])
	}
}

func TestDetectBaseRefFallsBackToHeadParent(t *testing.T) {
	tempDir := t.TempDir()
	if got := DetectBaseRef(tempDir); got != "HEAD^" {
		t.Errorf("expected HEAD^ fallback for a non-repo, got %q", got)
	}
}

func runGitT(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestExtractChangeSetWorkingTree(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	tempDir := t.TempDir()
	runGitT(t, tempDir, "init")
	runGitT(t, tempDir, "config", "user.name", "Test User")
	runGitT(t, tempDir, "config", "user.email", "test@example.com")

	existing := filepath.Join(tempDir, "existing.go")
	if err := os.WriteFile(existing, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGitT(t, tempDir, "add", "existing.go")
	runGitT(t, tempDir, "commit", "-m", "initial")

	if err := os.WriteFile(existing, []byte("package a\n\nfunc f() {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	newFile := filepath.Join(tempDir, "new.go")
	if err := os.WriteFile(newFile, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGitT(t, tempDir, "add", "new.go")

	cs, err := ExtractChangeSet(tempDir, ModeWorking, "")
	if err != nil {
		t.Fatalf("ExtractChangeSet: %v", err)
	}
	if !cs.HasFile("existing.go") {
		t.Errorf("expected existing.go (unstaged modification) in the working-tree change set, got %+v", cs.Files)
	}
	for _, f := range cs.Files {
		if f.RelPath == "existing.go" && f.ChangeType != violation.ChangeModified {
			t.Errorf("expected existing.go to be Modified, got %s", f.ChangeType)
		}
	}
}
