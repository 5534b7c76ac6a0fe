package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vibesrails/internal/monitor"
	"vibesrails/internal/session"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Handle one JSON session request from stdin",
	Long: `Read one request from stdin and write the response to stdout.

Requests:
  {"action":"start","project_path":"/repo","ai_tool":"claude"}
  {"action":"update","session_id":"...","files_modified":["a.py"],"changes_loc":12,"violations":0}
  {"action":"status","session_id":"..."}
  {"action":"end","session_id":"..."}

A failed request still prints a response with an "error" object and exits 1.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	return withSessions(func(t *session.Tracker) error {
		resp := monitor.NewHandler(t, logger).HandleJSON(cmd.Context(), data)
		if err := printResult(cmd, resp); err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
		}
		return nil
	})
}
