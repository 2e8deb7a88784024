package matcher

import "testing"

func TestCacheCompileMemoizes(t *testing.T) {
	c := NewCache()
	m1, tier1, err := c.Compile(`unwrap`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m2, tier2, err := c.Compile(`unwrap`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if tier1 != tier2 {
		t.Fatalf("expected identical tier across calls")
	}
	a := m1.FindAll([]byte("x.unwrap()"))
	b := m2.FindAll([]byte("x.unwrap()"))
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 match each, got %d and %d", len(a), len(b))
	}
}

func TestCacheCompileDistinctPatterns(t *testing.T) {
	c := NewCache()
	_, t1, err := c.Compile(`foo`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, t2, err := c.Compile(`foo|bar|baz`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if t1 != TierLiteral {
		t.Fatalf("expected literal tier, got %s", t1)
	}
	if t2 != TierMultiLiteral {
		t.Fatalf("expected multi-literal tier, got %s", t2)
	}
}
