package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vibesrails/internal/config"
	"vibesrails/internal/paths"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the vibesrails configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

type configShowResult struct {
	ConfigPath   string         `json:"configPath" yaml:"configPath"`
	UsedDefaults bool           `json:"usedDefaults" yaml:"usedDefaults"`
	Config       *config.Config `json:"config" yaml:"config"`
}

type configInitResult struct {
	Path string `json:"path" yaml:"path"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	res, err := config.LoadConfigWithDetails(configFlag)
	if err != nil {
		return err
	}
	return printResult(cmd, &configShowResult{
		ConfigPath:   res.ConfigPath,
		UsedDefaults: res.UsedDefaults,
		Config:       res.Config,
	})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFlag
	if path == "" {
		if _, err := paths.EnsureHome(); err != nil {
			return err
		}
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	logger.Info("Config written", "path", path)
	return printResult(cmd, &configInitResult{Path: path})
}
