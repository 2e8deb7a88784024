// Package check defines the check contract and the file context each
// per-file check receives (spec §4.6). The runner (runner.go) is the only
// caller of these interfaces; individual checks under internal/checks/
// implement them.
package check

import (
	"context"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/fsio"
	"github.com/alfredjeanlab/quench/internal/gitctx"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// FileContext is everything a per-file check needs to examine one file:
// its classification, its adapter, and its content (already read under the
// size-gated policy).
type FileContext struct {
	RelPath    string
	Kind       adapters.FileKind
	Adapter    adapters.Adapter
	Content    *fsio.Content
	MtimeSecs  int64
	MtimeNanos int64
}

// PerFileCheck runs once per file the walker emits, for files the cache
// doesn't already have an entry for (spec §4.6's per-file dispatch model).
type PerFileCheck interface {
	Name() string
	CheckFile(ctx context.Context, fc FileContext) ([]violation.Violation, error)
}

// RunContext is everything an aggregate check needs: it runs once per scan
// after every per-file check has finished, over whole-tree or change-set
// granularity (docs index, tests correlation, commit parsing, build,
// ratchet comparison — spec §4.6).
type RunContext struct {
	Root      string
	Files     []FileContext
	Registry  *adapters.Registry
	ChangeSet *gitctx.ChangeSet // nil when the run has no git context available

	// CommitMessage is set only when a check is being driven from a
	// commit-msg hook context (spec §4.14); empty otherwise.
	CommitMessage string
}

// AggregateCheck runs once per scan at whole-tree or change-set granularity.
type AggregateCheck interface {
	Name() string
	RunAggregate(ctx context.Context, rc RunContext) (violation.Result, error)
}
