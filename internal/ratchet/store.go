package ratchet

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alfredjeanlab/quench/pkg/safeio"
)

// Mode selects where the baseline lives (spec §3's "exclusively owned by
// .quench/baseline.json OR by a dedicated VCS notes namespace... mutually
// exclusive per repo"). File mode is the decided default (see DESIGN.md's
// Open Question record); notes mode is opt-in.
type Mode string

const (
	ModeFile  Mode = "file"
	ModeNotes Mode = "notes"
)

// DefaultFilePath is the baseline file's canonical location (spec §6).
const DefaultFilePath = ".quench/baseline.json"

// DefaultNotesRef is the dedicated notes namespace used in notes mode.
const DefaultNotesRef = "refs/notes/quench-baseline"

// Store loads and saves a Baseline under the configured mode.
type Store struct {
	Mode     Mode
	Root     string
	FilePath string // relative to Root; defaults to DefaultFilePath
	NotesRef string // defaults to DefaultNotesRef
}

func (s Store) filePath() string {
	p := s.FilePath
	if p == "" {
		p = DefaultFilePath
	}
	return filepath.Join(s.Root, p)
}

func (s Store) notesRef() string {
	if s.NotesRef == "" {
		return DefaultNotesRef
	}
	return s.NotesRef
}

// Load reads the baseline for the given base ref. ok=false (not found, either
// because no baseline has ever been written or because notes mode found
// no note on the comparison commit) is a no-op for the caller, not an
// error (spec §4.18: "If none found, ratcheting is a no-op for the run").
func (s Store) Load(baseRef string) (Baseline, bool, error) {
	switch s.Mode {
	case ModeNotes:
		return s.loadFromNotes(baseRef)
	default:
		return s.loadFromFile()
	}
}

func (s Store) loadFromFile() (Baseline, bool, error) {
	data, err := os.ReadFile(s.filePath()) // #nosec G304 -- path is the tool-owned baseline file under the project root
	if err != nil {
		if os.IsNotExist(err) {
			return Baseline{}, false, nil
		}
		return Baseline{}, false, err
	}
	b, err := Unmarshal(data)
	if err != nil {
		return Baseline{}, false, err
	}
	return b, true, nil
}

// loadFromNotes consults the note attached to the comparison commit,
// falling back to HEAD's parent, then HEAD itself (spec §4.18).
func (s Store) loadFromNotes(baseRef string) (Baseline, bool, error) {
	candidates := []string{baseRef, "HEAD^", "HEAD"}
	for _, ref := range candidates {
		if ref == "" {
			continue
		}
		sha, err := runGit(s.Root, "rev-parse", "--verify", "--quiet", ref)
		if err != nil || sha == "" {
			continue
		}
		note, err := runGit(s.Root, "notes", "--ref="+s.notesRef(), "show", strings.TrimSpace(sha))
		if err != nil || note == "" {
			continue
		}
		b, err := Unmarshal([]byte(note))
		if err != nil {
			continue
		}
		return b, true, nil
	}
	return Baseline{}, false, nil
}

// Save persists the baseline. File mode writes atomically (temp file,
// fsync via safeio, rename); notes mode attaches the note to HEAD,
// overwriting any note already there (spec §6: "writing attaches to HEAD").
func (s Store) Save(b Baseline) error {
	b.Version = CurrentVersion
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	switch s.Mode {
	case ModeNotes:
		return s.saveToNotes(data)
	default:
		return s.saveToFile(data)
	}
}

func (s Store) saveToFile(data []byte) error {
	path := s.filePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return safeio.WriteFilePreservePerms(path, data)
}

func (s Store) saveToNotes(data []byte) error {
	tmp, err := os.CreateTemp("", "quench-baseline-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	_, err = runGit(s.Root, "notes", "--ref="+s.notesRef(), "add", "-f", "-F", tmp.Name(), "HEAD")
	return err
}

// Stale reports whether b's Updated timestamp is older than maxAge (spec
// §4.18: "age exceeding a configured limit → a one-line warning").
func Stale(b Baseline, maxAge time.Duration) bool {
	if maxAge <= 0 || b.Updated.IsZero() {
		return false
	}
	return time.Since(b.Updated) > maxAge
}

func runGit(root string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errOut.String())
	}
	return out.String(), nil
}
