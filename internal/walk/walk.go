// Package walk implements quench's parallel filesystem walker (spec §4.1):
// a worker-pool traversal that honors layered ignore files, caps descent
// depth, and detects symlink cycles, emitting (relative path, metadata)
// tuples to a bounded channel the check runner consumes.
package walk

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/alfredjeanlab/quench/pkg/ignore"
	"github.com/alfredjeanlab/quench/pkg/logger"
)

// MaxDepth is the default descent cap (spec §4.1). Past it, the walker
// stops descending and logs a single warning rather than aborting.
const MaxDepth = 100

// Entry is one emitted file: its path relative to the walk root and its
// metadata, as returned by os.Lstat at emission time (os.Stat of the target
// for a followed symlink).
type Entry struct {
	RelPath string
	Info    os.FileInfo
}

// Walker traverses a single root directory honoring ignorer and emitting
// non-ignored, non-directory entries.
type Walker struct {
	root        string
	ignorer     *ignore.Matcher
	concurrency int
	maxDepth    int
}

// Option configures a Walker beyond its defaults.
type Option func(*Walker)

// WithConcurrency overrides the worker pool size (defaults to
// runtime.NumCPU()).
func WithConcurrency(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithMaxDepth overrides the descent cap (defaults to MaxDepth).
func WithMaxDepth(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// New builds a Walker rooted at root, honoring ignorer's layered ignore
// rules.
func New(root string, ignorer *ignore.Matcher, opts ...Option) *Walker {
	w := &Walker{
		root:        root,
		ignorer:     ignorer,
		concurrency: runtime.NumCPU(),
		maxDepth:    MaxDepth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type dirJob struct {
	relPath   string
	depth     int
	ancestors map[inodeKey]bool
}

type inodeKey struct {
	dev uint64
	ino uint64
}

// Walk starts the traversal and returns a channel of entries and a channel
// that receives exactly one error (nil on a clean finish) once the walk is
// fully drained. Both channels are closed when the walk completes. Ordering
// of emitted entries is not guaranteed (spec §4.1); callers that need
// determinism sort at materialization.
func (w *Walker) Walk(ctx context.Context) (<-chan Entry, <-chan error) {
	out := make(chan Entry, 256) // bounded: provides backpressure to the traversal
	errc := make(chan error, 1)
	jobs := make(chan dirJob, 4096)

	var wg sync.WaitGroup
	var depthWarnOnce sync.Once

	_, rootAncestors := startAncestors(w.root)

	wg.Add(1)
	jobs <- dirJob{relPath: "", depth: 0, ancestors: rootAncestors}

	var active sync.WaitGroup
	active.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func() {
			defer active.Done()
			for job := range jobs {
				w.processDir(ctx, job, jobs, out, &wg, &depthWarnOnce)
				wg.Done()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(jobs)
		active.Wait()
		close(out)
		errc <- nil
		close(errc)
	}()

	return out, errc
}

func startAncestors(root string) (inodeKey, map[inodeKey]bool) {
	ancestors := make(map[inodeKey]bool, 8)
	if info, err := os.Lstat(root); err == nil {
		if key, ok := keyFor(info); ok {
			ancestors[key] = true
			return key, ancestors
		}
	}
	return inodeKey{}, ancestors
}

func keyFor(info os.FileInfo) (inodeKey, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(st.Dev), ino: st.Ino}, true
}

func (w *Walker) processDir(ctx context.Context, job dirJob, jobs chan<- dirJob, out chan<- Entry, wg *sync.WaitGroup, depthWarnOnce *sync.Once) {
	if ctx.Err() != nil {
		return
	}

	absDir := filepath.Join(w.root, job.relPath)
	entries, err := os.ReadDir(absDir)
	if err != nil {
		logger.Warn("walk: could not read directory, skipping", logger.String("dir", absDir), logger.Err(err))
		return
	}

	for _, entry := range entries {
		relPath := entry.Name()
		if job.relPath != "" {
			relPath = filepath.Join(job.relPath, entry.Name())
		}
		absPath := filepath.Join(w.root, relPath)

		info, err := entry.Info()
		if err != nil {
			logger.Warn("walk: could not stat entry, skipping", logger.String("path", absPath), logger.Err(err))
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			w.handleSymlink(ctx, job, relPath, absPath, jobs, out, wg, depthWarnOnce)
			continue
		}

		if info.IsDir() {
			if w.ignorer.IsIgnoredDirRel(relPath) {
				continue
			}
			key, keyOK := keyFor(info)
			w.descend(job, relPath, key, keyOK, jobs, wg, depthWarnOnce)
			continue
		}

		if w.ignorer.IsIgnoredRel(relPath) {
			continue
		}
		select {
		case out <- Entry{RelPath: relPath, Info: info}:
		case <-ctx.Done():
			return
		}
	}
}

// descend enqueues a subdirectory job, honoring the depth cap and cycle
// detection via the ancestor inode/device set carried down this path.
func (w *Walker) descend(job dirJob, relPath string, key inodeKey, keyOK bool, jobs chan<- dirJob, wg *sync.WaitGroup, depthWarnOnce *sync.Once) {
	if job.depth+1 > w.maxDepth {
		depthWarnOnce.Do(func() {
			logger.Warn("walk: maximum depth exceeded, not descending further", logger.Int("max_depth", w.maxDepth))
		})
		return
	}

	ancestors := job.ancestors
	if keyOK {
		if ancestors[key] {
			logger.Warn("walk: symlink cycle detected, skipping", logger.String("path", relPath))
			return
		}
		next := make(map[inodeKey]bool, len(ancestors)+1)
		for k := range ancestors {
			next[k] = true
		}
		next[key] = true
		ancestors = next
	}

	wg.Add(1)
	jobs <- dirJob{relPath: relPath, depth: job.depth + 1, ancestors: ancestors}
}

// handleSymlink resolves a symlink entry and, if it points at a directory
// inside the root, treats it like any other subdirectory (subject to the
// same depth cap and cycle detection); if it points outside the root, the
// entry is skipped entirely (spec §4.1: "does not follow symlinks that
// point outside the root").
func (w *Walker) handleSymlink(ctx context.Context, job dirJob, relPath, absPath string, jobs chan<- dirJob, out chan<- Entry, wg *sync.WaitGroup, depthWarnOnce *sync.Once) {
	target, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		logger.Warn("walk: broken symlink, skipping", logger.String("path", absPath), logger.Err(err))
		return
	}

	absRoot, err := filepath.Abs(w.root)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || (len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)) {
		logger.Warn("walk: symlink points outside root, not following", logger.String("path", absPath))
		return
	}

	targetInfo, err := os.Stat(target)
	if err != nil {
		logger.Warn("walk: unresolvable symlink target, skipping", logger.String("path", absPath), logger.Err(err))
		return
	}

	if targetInfo.IsDir() {
		if w.ignorer.IsIgnoredDirRel(relPath) {
			return
		}
		key, ok := keyFor(targetInfo)
		w.descend(job, relPath, key, ok, jobs, wg, depthWarnOnce)
		return
	}

	if w.ignorer.IsIgnoredRel(relPath) {
		return
	}
	select {
	case out <- Entry{RelPath: relPath, Info: targetInfo}:
	case <-ctx.Done():
	}
}
