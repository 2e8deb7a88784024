package cmd

import (
	"testing"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/pkg/config"
)

func TestFormatFor(t *testing.T) {
	if formatFor("json") != "json" {
		t.Error("formatFor(\"json\") should select the JSON renderer")
	}
	if formatFor("text") != "text" {
		t.Error("formatFor(\"text\") should select the text renderer")
	}
	if formatFor("bogus") != "text" {
		t.Error("formatFor should fall back to text for an unrecognized value")
	}
}

func TestConfigHash_Stable(t *testing.T) {
	cfg := &config.Config{Version: 1}
	a := configHash(cfg)
	b := configHash(cfg)
	if a != b {
		t.Errorf("configHash should be deterministic for the same config, got %q and %q", a, b)
	}
	other := &config.Config{Version: 1, Output: config.OutputConfig{ViolationCap: 5}}
	if configHash(other) == a {
		t.Error("configHash should differ for differing configs")
	}
}

func TestSuppressConfigFrom(t *testing.T) {
	sc := suppressConfigFrom(config.SuppressConfig{
		SourcePolicy: "forbid", TestPolicy: "allow",
		Forbid: []string{"TODO"}, Allow: []string{"NOLINT"},
	})
	if string(sc.Source.Default) != "forbid" || string(sc.Test.Default) != "allow" {
		t.Errorf("unexpected policy mapping: %+v", sc)
	}
	if len(sc.Source.ForbidCodes) != 1 || sc.Source.ForbidCodes[0] != "TODO" {
		t.Errorf("unexpected forbid codes: %+v", sc.Source.ForbidCodes)
	}
}

func TestEscapePatternsByLanguage(t *testing.T) {
	out := escapePatternsByLanguage([]config.EscapePattern{
		{Name: "unwrap", Pattern: `\.unwrap\(\)`, Scope: "both", Action: "comment", TestPolicy: "allow"},
	})
	for _, lang := range []adapters.Language{adapters.LanguageGo, adapters.LanguageRust, adapters.LanguageJavaScript, adapters.LanguageRuby, adapters.LanguageShell, adapters.LanguageGeneric} {
		patterns, ok := out[lang]
		if !ok || len(patterns) != 1 {
			t.Fatalf("expected one pattern for %s, got %+v", lang, patterns)
		}
		if patterns[0].TestPolicy != adapters.ActionAllow {
			t.Errorf("expected test scope to allow, got %v", patterns[0].TestPolicy)
		}
	}
}
