package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var embeddedSchema []byte

// ValidateConfig round-trips the decoded config through JSON and checks it
// against the embedded schema — this is where shape violations that the
// TOML decode itself can't express are caught (negative violation_cap,
// an unknown ratchet mode, an index_mode outside the closed set, …).
func ValidateConfig(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config for validation: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(embeddedSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(problems, "\n"))
	}

	return nil
}
