package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"vibesrails/internal/config"
	"vibesrails/internal/metrics"
	"vibesrails/internal/slogutil"
	"vibesrails/internal/storage"
	"vibesrails/internal/version"
)

var (
	dbFlag     string
	formatFlag string
	configFlag string
	verbosity  int
	quietFlag  bool
)

// runtime state prepared by the root pre-run hook
var (
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "vibesrails",
	Short: "vibesrails - session entropy and architectural drift tracking",
	Long: `vibesrails scores AI-assisted coding sessions with a bounded entropy value
and tracks architectural drift across structural metric snapshots of a project.

Sessions and snapshots share one SQLite store (default ~/.vibesrails/vibesrails.db).`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("vibesrails version {{.Version}}\n")
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbFlag, "db", "", "Database path (default from config, then ~/.vibesrails/vibesrails.db)")
	pf.StringVar(&formatFlag, "format", "", "Output format: human, json, or yaml")
	pf.StringVar(&configFlag, "config", "", "Config file (default ~/.vibesrails/config.toml)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logs")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	cfg = loaded

	if formatFlag == "" {
		formatFlag = string(FormatHuman)
	}
	switch OutputFormat(formatFlag) {
	case FormatHuman, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unsupported format: %s", formatFlag)
	}

	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verbosity > 0 || quietFlag {
		level = slogutil.LevelFromVerbosity(verbosity, quietFlag)
	}
	logger, logCloser, err = slogutil.New(slogutil.Options{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	return nil
}

// dbPath resolves --db, then the config, then the default location.
func dbPath() (string, error) {
	if dbFlag != "" {
		return dbFlag, nil
	}
	return cfg.ResolveDBPath()
}

func openStore(opts ...storage.Option) (*storage.DB, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	opts = append([]storage.Option{storage.WithBusyTimeout(cfg.Database.BusyTimeoutMs)}, opts...)
	db, err := storage.Open(path, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

func newAnalyzer() *metrics.Analyzer {
	return metrics.NewAnalyzer(metrics.Options{
		MaxFiles:         cfg.Metrics.MaxFiles,
		MaxFileSizeBytes: cfg.Metrics.MaxFileSizeBytes,
		SkipDirs:         cfg.Metrics.SkipDirs,
		Logger:           logger,
	})
}

// printResult formats resp with --format and writes it to stdout.
func printResult(cmd *cobra.Command, resp any) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
