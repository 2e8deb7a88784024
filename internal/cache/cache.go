// Package cache implements quench's file cache (spec §4.5): a two-layer
// store keyed by (path, mtime, size, config hash, quench version, cache
// logic version) that maps to the per-check violations produced for that
// file. The in-memory layer (ristretto) serves every lookup during a run;
// the on-disk layer (badger) persists hits across runs.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/alfredjeanlab/quench/internal/violation"
	"github.com/alfredjeanlab/quench/pkg/buildinfo"
	"github.com/alfredjeanlab/quench/pkg/logger"
)

// LogicVersion is bumped by hand whenever a check's algorithm changes in a
// way that would make historically cached violations wrong. Because it is
// part of every cache key (see Key.String), a bump silently strands old
// entries rather than requiring an explicit migration.
const LogicVersion = 1

// Key identifies one cached file result. It is an injective function of
// everything that could alter a check's output for that file (spec §3).
type Key struct {
	Path          string
	MtimeSecs     int64
	MtimeNanos    int64
	Size          int64
	ConfigHash    string
	QuenchVersion string
	LogicVersion  int
}

// NewKey builds a Key stamped with the running binary's version and the
// package's current LogicVersion, so callers never forget to stamp either.
func NewKey(path string, mtimeSecs, mtimeNanos, size int64, configHash string) Key {
	return Key{
		Path:          path,
		MtimeSecs:     mtimeSecs,
		MtimeNanos:    mtimeNanos,
		Size:          size,
		ConfigHash:    configHash,
		QuenchVersion: buildinfo.BinaryVersion,
		LogicVersion:  LogicVersion,
	}
}

// String renders a stable cache key. Any field change produces a distinct
// string, so a version bump (logic or binary) naturally invalidates every
// prior entry: old keys simply become unreachable rather than requiring an
// explicit migration pass.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Path)
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(k.MtimeSecs, 10))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(k.MtimeNanos, 10))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(k.Size, 10))
	b.WriteByte('\x00')
	b.WriteString(k.ConfigHash)
	b.WriteByte('\x00')
	b.WriteString(k.QuenchVersion)
	b.WriteByte('\x00')
	b.WriteString(strconv.Itoa(k.LogicVersion))
	return b.String()
}

// Cache is the two-layer store. It is safe for concurrent use: ristretto is
// internally sharded and lock-free on the read path, and badger transactions
// serialize writes on the disk layer.
type Cache struct {
	hot  *ristretto.Cache[string, []violation.Violation]
	disk *badger.DB // nil if the on-disk layer failed to open or was disabled
}

// Open builds the cache, loading the on-disk snapshot at dir if present.
// A failure to open the disk layer is non-fatal (spec §4.5 "Failure model"):
// it is logged and the cache degrades to in-memory-only for this run.
func Open(dir string) (*Cache, error) {
	hot, err := ristretto.NewCache(&ristretto.Config[string, []violation.Violation]{
		NumCounters: 1e6,
		MaxCost:     1 << 27, // 128 MiB of violation data held hot
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("building in-memory cache layer: %w", err)
	}

	c := &Cache{hot: hot}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("cache: could not create snapshot directory, continuing without it", logger.String("dir", dir), logger.Err(err))
		return c, nil
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		logger.Warn("cache: on-disk snapshot unavailable, continuing without it", logger.String("dir", dir), logger.Err(err))
		return c, nil
	}
	c.disk = db
	return c, nil
}

// entryCheckKey composes a per-file key with a check name, since per-check
// entries must be looked up independently (spec §4.5 invariant 2).
func entryCheckKey(fileKey Key, checkName string) string {
	return fileKey.String() + "\x00" + checkName
}

// Get returns the cached violations for (fileKey, checkName), and whether
// they were present. A hit is guaranteed to equal what a fresh run of
// checkName against that exact file would produce (spec §4.5 invariant 1),
// because fileKey embeds every input that could change that output.
//
// The returned slice is shared with the cache's internal storage, not
// copied; callers must treat it as read-only (spec §4.5 invariant 3 — Go's
// slice header already makes this an O(1) handle rather than a deep clone).
func (c *Cache) Get(fileKey Key, checkName string) ([]violation.Violation, bool) {
	ck := entryCheckKey(fileKey, checkName)

	if v, ok := c.hot.Get(ck); ok {
		return v, true
	}

	if c.disk == nil {
		return nil, false
	}

	var violations []violation.Violation
	err := c.disk.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ck))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &violations)
		})
	})
	if err != nil {
		return nil, false
	}

	c.hot.Set(ck, violations, int64(len(violations)+1))
	return violations, true
}

// Put stores the violations checkName produced for fileKey, in both layers.
// A disk write failure is logged but does not fail the calling check (spec
// §4.5 "Failure model": save failure is reported, not fatal).
func (c *Cache) Put(fileKey Key, checkName string, violations []violation.Violation) {
	ck := entryCheckKey(fileKey, checkName)
	c.hot.Set(ck, violations, int64(len(violations)+1))

	if c.disk == nil {
		return
	}
	data, err := json.Marshal(violations)
	if err != nil {
		logger.Warn("cache: failed to encode violations for disk snapshot", logger.String("check", checkName))
		return
	}
	err = c.disk.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ck), data)
	})
	if err != nil {
		logger.Warn("cache: failed to persist cache entry", logger.String("check", checkName), logger.Err(err))
	}
}

// Close flushes the in-memory layer and syncs and closes the on-disk layer.
// Per spec §4.5, the snapshot must be durable only on successful completion:
// callers invoke Close on the happy path only, leaving an interrupted run's
// on-disk state as whatever badger's own WAL already committed.
func (c *Cache) Close() error {
	c.hot.Close()
	if c.disk == nil {
		return nil
	}
	if err := c.disk.Sync(); err != nil {
		return fmt.Errorf("syncing cache snapshot: %w", err)
	}
	return c.disk.Close()
}
