package main

import (
	"github.com/spf13/cobra"

	"vibesrails/internal/drift"
	"vibesrails/internal/paths"
)

var (
	driftSessionID string
	driftLimit     int
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Snapshot project metrics and measure architectural drift",
	Long: `Record structural metric snapshots of a project and compare them.

Velocity is a weighted percentage change across imports, classes, functions,
dependencies, complexity and public API surface between the two most recent
snapshots. Three or more consecutive high-velocity snapshots require review.

Examples:
  vibesrails drift snapshot .
  vibesrails drift velocity .
  vibesrails drift history --limit 10 .`,
}

var driftSnapshotCmd = &cobra.Command{
	Use:   "snapshot [project]",
	Short: "Record a metrics snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDriftSnapshot,
}

var driftVelocityCmd = &cobra.Command{
	Use:   "velocity [project]",
	Short: "Compare the two most recent snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDriftVelocity,
}

var driftHistoryCmd = &cobra.Command{
	Use:   "history [project]",
	Short: "List snapshots, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDriftHistory,
}

func init() {
	driftSnapshotCmd.Flags().StringVar(&driftSessionID, "session", "", "Associate the snapshot with a session id")
	driftHistoryCmd.Flags().IntVar(&driftLimit, "limit", drift.HistoryWindow, "Maximum number of snapshots")

	driftCmd.AddCommand(driftSnapshotCmd, driftVelocityCmd, driftHistoryCmd)
	rootCmd.AddCommand(driftCmd)
}

// velocityResult keeps the project path when there is no comparison yet.
type velocityResult struct {
	ProjectPath string            `json:"project_path" yaml:"project_path"`
	Comparison  *drift.Comparison `json:"comparison" yaml:"comparison"`
}

func withDrift(fn func(*drift.Tracker) error) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(drift.NewTracker(db, logger, drift.WithAnalyzer(newAnalyzer())))
}

func runDriftSnapshot(cmd *cobra.Command, args []string) error {
	return withDrift(func(t *drift.Tracker) error {
		res, err := t.TakeSnapshot(cmd.Context(), projectArg(args, 0), driftSessionID)
		if err != nil {
			return err
		}
		return printResult(cmd, res)
	})
}

func runDriftVelocity(cmd *cobra.Command, args []string) error {
	project, err := paths.CanonicalizeProject(projectArg(args, 0))
	if err != nil {
		return err
	}
	return withDrift(func(t *drift.Tracker) error {
		cmp, err := t.ComputeVelocity(cmd.Context(), project)
		if err != nil {
			return err
		}
		return printResult(cmd, &velocityResult{ProjectPath: project, Comparison: cmp})
	})
}

func runDriftHistory(cmd *cobra.Command, args []string) error {
	return withDrift(func(t *drift.Tracker) error {
		snaps, err := t.History(cmd.Context(), projectArg(args, 0), driftLimit)
		if err != nil {
			return err
		}
		if snaps == nil {
			snaps = []drift.Snapshot{}
		}
		return printResult(cmd, snaps)
	})
}
