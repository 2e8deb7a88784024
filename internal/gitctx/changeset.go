package gitctx

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/alfredjeanlab/quench/internal/violation"
)

// Mode selects how a ChangeSet is extracted (spec §4.14).
type Mode string

const (
	ModeStaged  Mode = "staged"
	ModeWorking Mode = "working"
	ModeBase    Mode = "base"
)

// baseRefCandidates is the auto-detection priority order (spec §4.14).
var baseRefCandidates = []string{"origin/main", "origin/master", "main", "master"}

// FileChange is one file's change-set entry.
type FileChange struct {
	RelPath      string
	ChangeType   violation.ChangeType
	LinesChanged int
	AddedLines   []int
}

// ChangeSet is the change-set extracted for one mode (spec §4.14), consumed
// by the policy, tests-correlation, and commit checks.
type ChangeSet struct {
	Mode    Mode
	BaseRef string // resolved ref actually used, when Mode == ModeBase
	Files   []FileChange
}

// HasFile reports whether relPath is present in the change set.
func (cs *ChangeSet) HasFile(relPath string) bool {
	for _, f := range cs.Files {
		if f.RelPath == relPath {
			return true
		}
	}
	return false
}

// DetectBaseRef resolves the auto-detected base ref (spec §4.14):
// origin/main > origin/master > main > master > parent of HEAD.
func DetectBaseRef(root string) string {
	for _, candidate := range baseRefCandidates {
		if refExists(root, candidate) {
			return candidate
		}
	}
	return "HEAD^"
}

func refExists(root, ref string) bool {
	out := runGit(root, "rev-parse", "--verify", "--quiet", ref)
	return out != ""
}

// ExtractChangeSet builds a ChangeSet for the given mode. For ModeBase, an
// empty baseRef triggers auto-detection.
func ExtractChangeSet(root string, mode Mode, baseRef string) (*ChangeSet, error) {
	var diffArgs []string
	switch mode {
	case ModeStaged:
		diffArgs = []string{"diff", "--cached"}
	case ModeWorking:
		diffArgs = []string{"diff"}
	case ModeBase:
		if baseRef == "" {
			baseRef = DetectBaseRef(root)
		}
		diffArgs = []string{"diff", baseRef}
	default:
		diffArgs = []string{"diff"}
	}

	status := parseNameStatus(runGitBytes(root, append(append([]string{}, diffArgs...), "--name-status")...))
	numstat := parseNumstatPerFile(runGitBytes(root, append(append([]string{}, diffArgs...), "--numstat")...))
	added := make(map[string][]int)
	parseUnifiedInto(added, runGitBytes(root, append(append([]string{}, diffArgs...), "--unified=0")...))

	cs := &ChangeSet{Mode: mode}
	if mode == ModeBase {
		cs.BaseRef = baseRef
	}

	seen := make(map[string]bool)
	for path, st := range status {
		if seen[path] {
			continue
		}
		seen[path] = true
		ct := violation.ChangeModified
		if st == "A" {
			ct = violation.ChangeAdded
		}
		cs.Files = append(cs.Files, FileChange{
			RelPath:      path,
			ChangeType:   ct,
			LinesChanged: numstat[path],
			AddedLines:   added[path],
		})
	}
	return cs, nil
}

// parseNameStatus parses `git diff --name-status` output into path -> status
// letter (A/M/D/R...; renames are reported as "R100<TAB>old<TAB>new" and are
// recorded under the new path).
func parseNameStatus(data []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 2 {
			continue
		}
		status := parts[0]
		path := parts[len(parts)-1]
		letter := status
		if len(status) > 0 {
			letter = status[:1]
		}
		out[path] = letter
	}
	return out
}

// parseNumstatPerFile sums added+deleted per file from `git diff --numstat`.
func parseNumstatPerFile(data []byte) map[string]int {
	out := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 3 {
			continue
		}
		out[parts[2]] = atoiSafe(parts[0]) + atoiSafe(parts[1])
	}
	return out
}
