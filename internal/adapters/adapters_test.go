package adapters

import "testing"

func newTestRegistry() *Registry {
	return New([]Adapter{Rust(), Go(), JavaScript(), Ruby(), Shell()}, LanguageRust)
}

func TestClassifyPrecedenceIgnoreOverTest(t *testing.T) {
	r := newTestRegistry()
	if got := r.Classify("target/debug/build/foo.rs"); got != KindOther {
		t.Errorf("expected ignored path to classify Other, got %s", got)
	}
}

func TestClassifyRustSourceVsTest(t *testing.T) {
	r := newTestRegistry()
	if got := r.Classify("src/lib.rs"); got != KindSource {
		t.Errorf("expected src/lib.rs to classify Source, got %s", got)
	}
	if got := r.Classify("tests/integration.rs"); got != KindTest {
		t.Errorf("expected tests/integration.rs to classify Test, got %s", got)
	}
}

func TestClassifyGoSourceVsTest(t *testing.T) {
	r := New([]Adapter{Go()}, LanguageGo)
	if got := r.Classify("internal/walk/walk.go"); got != KindSource {
		t.Errorf("expected walk.go to classify Source, got %s", got)
	}
	if got := r.Classify("internal/walk/walk_test.go"); got != KindTest {
		t.Errorf("expected walk_test.go to classify Test, got %s", got)
	}
}

func TestAdapterForSelectsByExtension(t *testing.T) {
	r := newTestRegistry()
	a := r.AdapterFor("src/main.rs")
	if a.Language != LanguageRust {
		t.Errorf("expected Rust adapter for .rs file, got %s", a.Language)
	}

	generic := r.AdapterFor("README.md")
	if generic.Language != LanguageGeneric {
		t.Errorf("expected Generic adapter for unclaimed extension, got %s", generic.Language)
	}
}

func TestDetectLanguagePrecedence(t *testing.T) {
	exists := func(name string) bool { return name == "go.mod" }
	lang := DetectLanguage("", exists, func() bool { return true })
	if lang != LanguageGo {
		t.Errorf("go.mod should win over shell detection, got %s", lang)
	}
}

func TestDetectLanguageFallsBackToGeneric(t *testing.T) {
	exists := func(string) bool { return false }
	lang := DetectLanguage("", exists, func() bool { return false })
	if lang != LanguageGeneric {
		t.Errorf("expected Generic fallback, got %s", lang)
	}
}
