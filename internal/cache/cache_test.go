package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/quench/internal/violation"
)

func writeBlockerFile(path string) error {
	return os.WriteFile(path, []byte("not a directory"), 0o644)
}

func TestKeyStringChangesWithEveryField(t *testing.T) {
	base := Key{
		Path:          "src/main.rs",
		MtimeSecs:     100,
		MtimeNanos:    0,
		Size:          1024,
		ConfigHash:    "abc123",
		QuenchVersion: "1.0.0",
		LogicVersion:  LogicVersion,
	}

	variants := []Key{
		base,
		{base.Path, 101, base.MtimeNanos, base.Size, base.ConfigHash, base.QuenchVersion, base.LogicVersion},
		{base.Path, base.MtimeSecs, 5, base.Size, base.ConfigHash, base.QuenchVersion, base.LogicVersion},
		{base.Path, base.MtimeSecs, base.MtimeNanos, 2048, base.ConfigHash, base.QuenchVersion, base.LogicVersion},
		{base.Path, base.MtimeSecs, base.MtimeNanos, base.Size, "different", base.QuenchVersion, base.LogicVersion},
		{base.Path, base.MtimeSecs, base.MtimeNanos, base.Size, base.ConfigHash, "2.0.0", base.LogicVersion},
		{base.Path, base.MtimeSecs, base.MtimeNanos, base.Size, base.ConfigHash, base.QuenchVersion, base.LogicVersion + 1},
	}

	seen := map[string]bool{}
	for i, k := range variants {
		s := k.String()
		if seen[s] {
			t.Errorf("variant %d produced a duplicate key string %q", i, s)
		}
		seen[s] = true
	}
}

func TestCacheGetPutRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	key := NewKey("src/lib.rs", 100, 0, 512, "hash1")
	file := "src/lib.rs"
	want := []violation.Violation{
		{File: &file, Type: "forbidden", Advice: "remove the unwrap"},
	}

	if _, ok := c.Get(key, "escapes"); ok {
		t.Fatal("expected cache miss before Put")
	}

	c.Put(key, "escapes", want)
	c.hot.Wait()

	got, ok := c.Get(key, "escapes")
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if len(got) != 1 || got[0].Type != "forbidden" {
		t.Errorf("unexpected cached violations: %+v", got)
	}
}

func TestCachePerCheckIsolation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	key := NewKey("src/lib.rs", 100, 0, 512, "hash1")
	c.Put(key, "escapes", []violation.Violation{{Type: "forbidden"}})
	c.hot.Wait()

	if _, ok := c.Get(key, "cloc"); ok {
		t.Error("expected a miss for a check name that was never cached")
	}
}

func TestOpenDegradesGracefullyWhenDiskUnavailable(t *testing.T) {
	// A path under a file (not a directory) cannot be created as a badger
	// directory; Open must still succeed with an in-memory-only cache.
	parent := t.TempDir()
	blocker := filepath.Join(parent, "blocker")
	if err := writeBlockerFile(blocker); err != nil {
		t.Fatalf("writing blocker fixture: %v", err)
	}

	c, err := Open(filepath.Join(blocker, "cache.db"))
	if err != nil {
		t.Fatalf("Open should degrade, not fail: %v", err)
	}
	defer c.Close()

	key := NewKey("a.go", 1, 0, 1, "h")
	c.Put(key, "cloc", []violation.Violation{{Type: "size_exceeded"}})
	c.hot.Wait()
	if _, ok := c.Get(key, "cloc"); !ok {
		t.Error("expected in-memory hit even without a disk layer")
	}
}
