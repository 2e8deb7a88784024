package check

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/cache"
	"github.com/alfredjeanlab/quench/internal/fsio"
	"github.com/alfredjeanlab/quench/internal/gitctx"
	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/internal/walk"
	"github.com/alfredjeanlab/quench/pkg/logger"
)

// DefaultViolationCap is the per-check violation cap applied in fast mode
// (spec §4.6). A cap of 0 disables capping entirely (CI mode).
const DefaultViolationCap = 15

// DefaultFileTimeout is the soft per-file processing budget (spec §4.4,
// §4.6): a file whose check exceeds it is skipped with a timeout warning.
const DefaultFileTimeout = 5 * time.Second

// Config tunes the runner's dispatch behavior.
type Config struct {
	ViolationCap int           // 0 disables capping (CI mode)
	FileTimeout  time.Duration // 0 uses DefaultFileTimeout
	Concurrency  int           // 0 uses runtime.NumCPU()
	ConfigHash   string        // folded into every cache key
}

func (c Config) withDefaults() Config {
	if c.FileTimeout <= 0 {
		c.FileTimeout = DefaultFileTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	return c
}

// Runner dispatches the enabled check set over a walker's output (spec
// §4.6): per-file checks run in a worker pool with cache-aware
// short-circuiting and a violation cap, aggregate checks run once at the
// end over the full classified file set.
type Runner struct {
	perFile   []PerFileCheck
	aggregate []AggregateCheck
	cache     *cache.Cache
	registry  *adapters.Registry
	cfg           Config
	changeSet     *gitctx.ChangeSet
	commitMessage string
}

// New builds a Runner. cache may be nil, in which case every file is
// treated as a cache miss (equivalent to a cold run).
func New(perFile []PerFileCheck, aggregate []AggregateCheck, c *cache.Cache, registry *adapters.Registry, cfg Config) *Runner {
	return &Runner{
		perFile:   perFile,
		aggregate: aggregate,
		cache:     c,
		registry:  registry,
		cfg:       cfg.withDefaults(),
	}
}

// WithChangeSet attaches change-set data so change-set-aware aggregate
// checks (policy, tests correlation, commit) can consult it via RunContext.
func (r *Runner) WithChangeSet(cs *gitctx.ChangeSet) *Runner {
	r.changeSet = cs
	return r
}

// WithCommitMessage attaches a commit message so the commit check can parse
// it when the runner is invoked from a commit-msg hook context.
func (r *Runner) WithCommitMessage(msg string) *Runner {
	r.commitMessage = msg
	return r
}

type checkState struct {
	mu         sync.Mutex
	violations []violation.Violation
	errs       []string
	capped     bool
}

// Run drains entries, dispatching every enabled per-file check over a
// worker pool, then runs every aggregate check once. The returned map is
// keyed by check name.
func (r *Runner) Run(ctx context.Context, root string, entries <-chan walk.Entry) map[string]violation.Result {
	states := make(map[string]*checkState, len(r.perFile))
	for _, c := range r.perFile {
		states[c.Name()] = &checkState{}
	}

	var fileContexts []FileContext
	var fcMu sync.Mutex

	type job struct {
		entry walk.Entry
	}
	jobs := make(chan job, 256)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				fc, ok := r.buildFileContext(root, j.entry)
				if !ok {
					continue
				}
				fcMu.Lock()
				fileContexts = append(fileContexts, fc)
				fcMu.Unlock()
				r.runPerFileChecks(ctx, fc, states)
				if fc.Content != nil {
					fc.Content.Close()
				}
			}
		}()
	}

	for entry := range entries {
		jobs <- job{entry: entry}
	}
	close(jobs)
	wg.Wait()

	results := make(map[string]violation.Result, len(r.perFile)+len(r.aggregate))
	for _, c := range r.perFile {
		st := states[c.Name()]
		st.mu.Lock()
		vs := append([]violation.Violation(nil), st.violations...)
		errs := append([]string(nil), st.errs...)
		st.mu.Unlock()

		sortViolations(vs)
		status := violation.StatusPassed
		if len(vs) > 0 {
			status = violation.StatusFailed
		}
		errMsg := ""
		if len(errs) > 0 {
			errMsg = errs[0]
		}
		results[c.Name()] = violation.Result{
			Name:       c.Name(),
			Status:     status,
			Violations: vs,
			Error:      errMsg,
		}
	}

	rc := RunContext{Root: root, Files: fileContexts, Registry: r.registry, ChangeSet: r.changeSet, CommitMessage: r.commitMessage}
	for _, ac := range r.aggregate {
		results[ac.Name()] = r.runAggregateCheck(ctx, ac, rc)
	}

	return results
}

func (r *Runner) buildFileContext(root string, entry walk.Entry) (FileContext, bool) {
	kind := r.registry.Classify(entry.RelPath)
	adapter := r.registry.AdapterFor(entry.RelPath)

	absPath := filepath.Join(root, entry.RelPath)
	content, err := fsio.Read(absPath)
	if err != nil {
		logger.Warn("check: skipping file", logger.String("path", entry.RelPath), logger.Err(err))
		return FileContext{}, false
	}

	mtime := entry.Info.ModTime()
	return FileContext{
		RelPath:    entry.RelPath,
		Kind:       kind,
		Adapter:    adapter,
		Content:    content,
		MtimeSecs:  mtime.Unix(),
		MtimeNanos: int64(mtime.Nanosecond()),
	}, true
}

func (r *Runner) runPerFileChecks(ctx context.Context, fc FileContext, states map[string]*checkState) {
	for _, c := range r.perFile {
		st := states[c.Name()]

		st.mu.Lock()
		capped := st.capped
		st.mu.Unlock()
		if capped {
			continue // spec §4.6: once a check's cap is hit, stop invoking it for further files
		}

		key := r.fileCacheKey(fc)
		if cached, ok := r.cacheGet(key, c.Name()); ok {
			r.recordViolations(st, cached, r.cfg.ViolationCap)
			continue
		}

		fctx, cancel := context.WithTimeout(ctx, r.cfg.FileTimeout)
		vs, err := r.invokeSafely(fctx, c, fc)
		cancel()

		if err != nil {
			st.mu.Lock()
			st.errs = append(st.errs, c.Name()+": "+fc.RelPath+": "+err.Error())
			st.mu.Unlock()
			continue // spec §4.6: an erroring check does not abort the run
		}

		r.cachePut(key, c.Name(), vs)
		r.recordViolations(st, vs, r.cfg.ViolationCap)
	}
}

// invokeSafely runs one check against one file, converting a panic into an
// error so a single defective check can never take down the run (spec §5:
// "the runner never lets an error in one check poison another").
func (r *Runner) invokeSafely(ctx context.Context, c PerFileCheck, fc FileContext) (vs []violation.Violation, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{check: c.Name(), value: p}
		}
	}()
	return c.CheckFile(ctx, fc)
}

type panicError struct {
	check string
	value interface{}
}

func (e panicError) Error() string {
	return e.check + " panicked"
}

func (r *Runner) recordViolations(st *checkState, vs []violation.Violation, capLimit int) {
	if len(vs) == 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.capped {
		return
	}
	if capLimit > 0 {
		remaining := capLimit - len(st.violations)
		if remaining <= 0 {
			st.capped = true
			return
		}
		if len(vs) > remaining {
			vs = vs[:remaining]
		}
	}
	st.violations = append(st.violations, vs...)
	if capLimit > 0 && len(st.violations) >= capLimit {
		st.capped = true
	}
}

func (r *Runner) fileCacheKey(fc FileContext) cache.Key {
	var size int64
	if fc.Content != nil {
		size = fc.Content.Size()
	}
	return cache.NewKey(fc.RelPath, fc.MtimeSecs, fc.MtimeNanos, size, r.cfg.ConfigHash)
}

func (r *Runner) cacheGet(key cache.Key, checkName string) ([]violation.Violation, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key, checkName)
}

func (r *Runner) cachePut(key cache.Key, checkName string, vs []violation.Violation) {
	if r.cache == nil {
		return
	}
	r.cache.Put(key, checkName, vs)
}

func (r *Runner) runAggregateCheck(ctx context.Context, ac AggregateCheck, rc RunContext) (out violation.Result) {
	defer func() {
		if p := recover(); p != nil {
			out = violation.Result{Name: ac.Name(), Status: violation.StatusFailed, Error: panicError{check: ac.Name(), value: p}.Error()}
		}
	}()
	result, err := ac.RunAggregate(ctx, rc)
	if err != nil {
		return violation.Result{Name: ac.Name(), Status: violation.StatusFailed, Error: err.Error()}
	}
	sortViolations(result.Violations)
	return result
}

// sortViolations enforces the output-ordering contract (spec §4.6): within
// one check's result, by (file, line, type).
func sortViolations(vs []violation.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		fi, fj := fileOf(vs[i]), fileOf(vs[j])
		if fi != fj {
			return fi < fj
		}
		li, lj := lineOf(vs[i]), lineOf(vs[j])
		if li != lj {
			return li < lj
		}
		return vs[i].Type < vs[j].Type
	})
}

func fileOf(v violation.Violation) string {
	if v.File == nil {
		return ""
	}
	return *v.File
}

func lineOf(v violation.Violation) int {
	if v.Line == nil {
		return 0
	}
	return *v.Line
}

// Flatten produces the full (check_name, file_path, line, type)-sorted
// violation list the output assembler consumes (spec §4.19).
func Flatten(results map[string]violation.Result) []violation.Violation {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []violation.Violation
	for _, name := range names {
		out = append(out, results[name].Violations...)
	}
	return out
}
