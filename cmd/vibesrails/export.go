package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vibesrails/internal/drift"
	"vibesrails/internal/export"
	"vibesrails/internal/session"
)

var (
	exportOutput        string
	exportZstd          bool
	exportVerify        bool
	exportSessionLimit  int
	exportSnapshotLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export [project]",
	Short: "Export session and drift history as JSON Lines",
	Long: `Write the sessions and drift snapshots of a project as JSON Lines.

The first line is a "meta" record; every following line is a "session" or
"snapshot" record. With --zstd the stream is zstd-compressed.

Examples:
  vibesrails export . -o history.jsonl
  vibesrails export . -o history.jsonl.zst --zstd --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportZstd, "zstd", false, "Compress the export with zstd")
	exportCmd.Flags().BoolVar(&exportVerify, "verify", false, "Read the written file back and check record counts")
	exportCmd.Flags().IntVar(&exportSessionLimit, "session-limit", 0, "Maximum sessions to export (default 1000)")
	exportCmd.Flags().IntVar(&exportSnapshotLimit, "snapshot-limit", 0, "Maximum snapshots to export (default 1000)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportVerify && exportOutput == "" {
		return fmt.Errorf("--verify requires --output")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	exporter := export.NewExporter(
		session.NewTracker(db, logger),
		drift.NewTracker(db, logger),
		logger,
	)

	var w io.Writer = cmd.OutOrStdout()
	var f *os.File
	if exportOutput != "" {
		f, err = os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}

	stats, err := exporter.Export(cmd.Context(), w, export.Options{
		ProjectPath:   projectArg(args, 0),
		Compress:      exportZstd,
		SessionLimit:  exportSessionLimit,
		SnapshotLimit: exportSnapshotLimit,
	})
	if err != nil {
		return err
	}
	if f == nil {
		// The records went to stdout; keep it machine-readable.
		return nil
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}

	if exportVerify {
		if err := verifyExport(exportOutput, stats); err != nil {
			return err
		}
	}
	return printResult(cmd, stats)
}

func verifyExport(path string, stats *export.Stats) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	archive, err := export.ReadAll(f)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if len(archive.Sessions) != stats.Sessions || len(archive.Snapshots) != stats.Snapshots {
		return fmt.Errorf("verify %s: read back %d sessions and %d snapshots, wrote %d and %d",
			path, len(archive.Sessions), len(archive.Snapshots), stats.Sessions, stats.Snapshots)
	}
	logger.Info("Export verified", "path", path)
	return nil
}
