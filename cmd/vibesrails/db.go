package main

import (
	"context"

	"github.com/spf13/cobra"

	"vibesrails/internal/storage"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and migrate the vibesrails database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version and location of the database without migrating",
	Args:  cobra.NoArgs,
	RunE:  runDBStatus,
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd, dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}

type dbStatusResult struct {
	Path    string   `json:"path" yaml:"path"`
	Current int      `json:"current_version" yaml:"current_version"`
	Latest  int      `json:"latest_version" yaml:"latest_version"`
	Pending []string `json:"pending" yaml:"pending"`
	Applied int      `json:"applied,omitempty" yaml:"applied,omitempty"`
	Valid   bool     `json:"valid" yaml:"valid"`
	Problem string   `json:"problem,omitempty" yaml:"problem,omitempty"`
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	db, err := openStore(storage.WithoutMigrate())
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("Database migrated", "path", db.Path(), "applied", applied)

	res, err := collectDBStatus(cmd.Context(), db)
	if err != nil {
		return err
	}
	res.Applied = applied
	return printResult(cmd, res)
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore(storage.WithoutMigrate())
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := collectDBStatus(cmd.Context(), db)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func collectDBStatus(ctx context.Context, db *storage.DB) (*dbStatusResult, error) {
	st, err := db.Status(ctx)
	if err != nil {
		return nil, err
	}
	res := &dbStatusResult{
		Path:    db.Path(),
		Current: st.Current,
		Latest:  st.Latest,
		Pending: st.Pending,
		Valid:   true,
	}
	if err := db.ValidateSchema(ctx); err != nil {
		res.Valid = false
		res.Problem = err.Error()
	}
	return res, nil
}
