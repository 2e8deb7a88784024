package config

import "testing"

func TestValidateConfigDefaults(t *testing.T) {
	cfg := defaultConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("expected default config to validate, got: %v", err)
	}
}

func TestValidateConfigRejectsBadRatchetMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ratchet.Mode = "carrier-pigeon"
	if err := ValidateConfig(&cfg); err == nil {
		t.Error("expected validation error for unknown ratchet mode")
	}
}

func TestValidateConfigRejectsNegativeViolationCap(t *testing.T) {
	cfg := defaultConfig()
	cfg.Output.ViolationCap = -1
	if err := ValidateConfig(&cfg); err == nil {
		t.Error("expected validation error for negative violation cap")
	}
}

func TestValidateConfigRejectsUnknownDocsIndexMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Docs.IndexMode = "telepathic"
	if err := ValidateConfig(&cfg); err == nil {
		t.Error("expected validation error for unknown docs index mode")
	}
}
