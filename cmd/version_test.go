package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunVersion_Text(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := runVersion(cmd, nil); err != nil {
		t.Fatalf("runVersion: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "quench ") {
		t.Errorf("expected output to start with %q, got %q", "quench ", buf.String())
	}
}

func TestRunVersion_JSON(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", true, "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := runVersion(cmd, nil); err != nil {
		t.Fatalf("runVersion: %v", err)
	}
	for _, field := range []string{"version", "gitCommit", "buildTime", "goVersion", "platform"} {
		if !strings.Contains(buf.String(), field) {
			t.Errorf("expected JSON output to contain %q, got %q", field, buf.String())
		}
	}
}
