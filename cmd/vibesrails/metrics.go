package main

import (
	"github.com/spf13/cobra"

	"vibesrails/internal/metrics"
)

var metricsFile string

var metricsCmd = &cobra.Command{
	Use:   "metrics [project]",
	Short: "Print structural metrics without recording a snapshot",
	Long: `Print the structural metrics used for drift tracking.

Go files are always analyzed. Python files need a build with cgo
(tree-sitter); without it they are skipped.

Examples:
  vibesrails metrics .
  vibesrails metrics --file internal/api/handler.go`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsFile, "file", "", "Analyze a single file instead of a project")
	rootCmd.AddCommand(metricsCmd)
}

type metricsResult struct {
	Path    string                  `json:"path" yaml:"path"`
	Project *metrics.ProjectMetrics `json:"project,omitempty" yaml:"project,omitempty"`
	File    *metrics.FileMetrics    `json:"file,omitempty" yaml:"file,omitempty"`
	Skipped bool                    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func runMetrics(cmd *cobra.Command, args []string) error {
	analyzer := newAnalyzer()

	if metricsFile != "" {
		fm, err := analyzer.AnalyzeFile(cmd.Context(), metricsFile)
		if err != nil {
			return err
		}
		return printResult(cmd, &metricsResult{Path: metricsFile, File: fm, Skipped: fm == nil})
	}

	root := projectArg(args, 0)
	pm, err := analyzer.Aggregate(cmd.Context(), root)
	if err != nil {
		return err
	}
	return printResult(cmd, &metricsResult{Path: root, Project: pm})
}
