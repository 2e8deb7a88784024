/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alfredjeanlab/quench/internal/cache"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/checks/cloc"
	"github.com/alfredjeanlab/quench/internal/output"
	"github.com/alfredjeanlab/quench/internal/walk"
	"github.com/alfredjeanlab/quench/pkg/config"
	"github.com/alfredjeanlab/quench/pkg/exitcode"
	"github.com/alfredjeanlab/quench/pkg/ignore"
	"github.com/alfredjeanlab/quench/pkg/logger"
	"github.com/spf13/cobra"
)

var clocCmd = &cobra.Command{
	Use:   "cloc [path]",
	Short: "Print per-file and per-package line/token counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCloc,
}

func init() {
	rootCmd.AddCommand(clocCmd)
	clocCmd.Flags().String("format", "text", "Output format: text|json")
}

func runCloc(cmd *cobra.Command, args []string) error {
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

	format, _ := cmd.Flags().GetString("format")
	registry := buildRegistry(absRoot, *cfg)

	ignorer, err := ignore.NewMatcher(absRoot)
	if err != nil {
		return fmt.Errorf("building ignore matcher: %w", err)
	}

	fileCache, err := cache.Open(filepath.Join(absRoot, ".quench", "cache"))
	if err != nil {
		logger.Warn("cache unavailable, running without it", logger.Err(err))
		fileCache = nil
	}
	if fileCache != nil {
		defer fileCache.Close()
	}

	clocCheck := cloc.New(cloc.Config{
		Default: cloc.Thresholds{
			MaxLinesSource: cfg.Cloc.MaxLinesSource,
			MaxLinesTest:   cfg.Cloc.MaxLinesTest,
			MaxTokens:      cfg.Cloc.MaxTokens,
		},
		Packages: cfg.Cloc.Packages,
	})

	runner := check.New(nil, []check.AggregateCheck{clocCheck}, fileCache, registry, check.Config{
		ViolationCap: cfg.Output.ViolationCap,
		ConfigHash:   configHash(cfg),
	})

	walker := walk.New(absRoot, ignorer, walk.WithMaxDepth(cfg.Walk.MaxDepth))
	entries, walkErrs := walker.Walk(cmd.Context())
	go func() {
		for e := range walkErrs {
			logger.Warn("walk error", logger.Err(e))
		}
	}()

	results := runner.Run(cmd.Context(), absRoot, entries)

	totals := output.NewTotals()
	totals.Violations = output.CountViolations(results)

	assembler := output.New(output.Options{Format: formatFor(format), Writer: cmd.OutOrStdout()})
	if err := assembler.Render(results, totals); err != nil {
		return err
	}

	if !output.Passed(results) {
		os.Exit(exitcode.CheckFailed)
	}
	return nil
}
