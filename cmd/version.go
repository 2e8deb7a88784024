/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/alfredjeanlab/quench/pkg/buildinfo"
	"github.com/spf13/cobra"
)

// versionCmd prints the quench binary version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the quench version",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output version information in JSON format")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	version := buildinfo.BinaryVersion
	if mv := buildinfo.ModuleVersion(); mv != "" {
		version = mv
	}

	if jsonOutput {
		info := map[string]string{
			"version":   version,
			"gitCommit": buildinfo.GitCommit,
			"buildTime": buildinfo.BuildTime,
			"goVersion": runtime.Version(),
			"platform":  runtime.GOOS + "/" + runtime.GOARCH,
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, err := fmt.Fprintf(out, "quench %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	return err
}
