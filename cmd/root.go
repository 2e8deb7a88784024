/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"os"
	"strings"

	"github.com/alfredjeanlab/quench/pkg/buildinfo"
	"github.com/alfredjeanlab/quench/pkg/exitcode"
	"github.com/alfredjeanlab/quench/pkg/logger"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quench",
	Short: "A multi-check, polyglot source-tree quality gate",
	Long: `quench scans a source tree with a registry of language adapters and
runs a fixed set of checks against it: line/token budgets, escape-hatch
patterns, suppression comments, lint-config hygiene, doc coverage, test
correlation, commit hygiene, build size and time, and license headers.

Examples:
   quench check              # run every enabled check against the working tree
   quench report --format json
   quench init                # write a starter quench.toml
   quench cloc                # print per-file line/token counts`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initializeLogger(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		logger.Error("Command execution failed", logger.Err(err))
		os.Exit(exitcode.Internal)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	version := buildinfo.BinaryVersion
	if mv := buildinfo.ModuleVersion(); mv != "" {
		version = mv
	}
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("quench {{.Version}}\n")
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	var logLevel logger.Level
	switch strings.ToLower(logLevelStr) {
	case "trace":
		logLevel = logger.TraceLevel
	case "debug":
		logLevel = logger.DebugLevel
	case "info":
		logLevel = logger.InfoLevel
	case "warn":
		logLevel = logger.WarnLevel
	case "error":
		logLevel = logger.ErrorLevel
	default:
		logLevel = logger.InfoLevel
	}

	config := logger.Config{
		Level:     logLevel,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "quench",
	}

	if err := logger.Initialize(config); err != nil {
		if _, writeErr := os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n"); writeErr != nil {
			_ = writeErr
		}
		os.Exit(exitcode.ConfigError)
	}
}
