/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alfredjeanlab/quench/internal/matcher"
	"github.com/alfredjeanlab/quench/internal/output"
	"github.com/alfredjeanlab/quench/internal/ratchet"
	"github.com/alfredjeanlab/quench/pkg/config"
	"github.com/alfredjeanlab/quench/pkg/exitcode"
	"github.com/alfredjeanlab/quench/pkg/logger"
	"github.com/spf13/cobra"
)

// ErrUnsupportedFormat is returned by report for any format quench does not
// render. HTML output is explicitly out of scope.
var ErrUnsupportedFormat = errors.New("unsupported report format")

var reportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Run every enabled check and render the result to a file or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("format", "text", "Output format: text|json (html is not supported)")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	reportCmd.Flags().Bool("no-ratchet", false, "Skip baseline comparison even when a baseline exists")
}

func runReport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format == "html" {
		return ErrUnsupportedFormat
	}

	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		logger.Error("failed to load config", logger.Err(err))
		os.Exit(exitcode.ConfigError)
	}

	noRatchet, _ := cmd.Flags().GetBool("no-ratchet")
	registry := buildRegistry(absRoot, *cfg)
	matcherCache := matcher.NewCache()

	results, err := runChecks(cmd.Context(), absRoot, cfg, registry, matcherCache, checkOptions{}, nil)
	if err != nil {
		logger.Error("check run failed", logger.Err(err))
		os.Exit(exitcode.Internal)
	}
	if !noRatchet {
		current := ratchet.Baseline{Metrics: metricsFromResults(results)}
		applyRatchetCompare(absRoot, *cfg, results, current)
	}

	totals := output.NewTotals()
	totals.Violations = output.CountViolations(results)

	outPath, _ := cmd.Flags().GetString("output")
	writer := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath) // #nosec G304 -- user-supplied report destination
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		writer = f
	}

	assembler := output.New(output.Options{Format: formatFor(format), Writer: writer})
	if err := assembler.Render(results, totals); err != nil {
		return err
	}

	if !output.Passed(results) {
		os.Exit(exitcode.CheckFailed)
	}
	return nil
}
