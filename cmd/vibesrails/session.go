package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vibesrails/internal/session"
	"vibesrails/internal/watcher"
)

var (
	sessionAITool     string
	sessionFiles      []string
	sessionChanges    int
	sessionViolations int
	sessionLimit      int
	watchDebounceMs   int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, update and end coding sessions",
	Long: `Track a coding session and its entropy score.

Entropy grows with session duration, distinct files touched, violations
reported and lines changed, and is classified as safe, warning, elevated
or critical.

Examples:
  vibesrails session start --ai-tool claude .
  vibesrails session update <id> --file internal/api.go --changes 40
  vibesrails session status <id>
  vibesrails session end <id>`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [project]",
	Short: "Start a new session for a project (default: current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionStart,
}

var sessionUpdateCmd = &cobra.Command{
	Use:   "update <session-id>",
	Short: "Record files, changed lines and violations for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionUpdate,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the live entropy of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStatus,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionEnd,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the stored session record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionListCmd = &cobra.Command{
	Use:   "list [project]",
	Short: "List recent sessions, optionally for one project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionList,
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch <session-id> [project]",
	Short: "Feed file changes under a project into a session until interrupted",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionWatch,
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionAITool, "ai-tool", "", "AI tool driving the session (e.g. claude, cursor)")
	sessionUpdateCmd.Flags().StringSliceVarP(&sessionFiles, "file", "f", nil, "Modified file (repeatable)")
	sessionUpdateCmd.Flags().IntVar(&sessionChanges, "changes", 0, "Lines changed since the last update")
	sessionUpdateCmd.Flags().IntVar(&sessionViolations, "violations", 0, "Violations found since the last update")
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 20, "Maximum number of sessions")
	sessionWatchCmd.Flags().IntVar(&watchDebounceMs, "debounce-ms", 0, "Quiet period before a batch is recorded (default from config)")

	sessionCmd.AddCommand(sessionStartCmd, sessionUpdateCmd, sessionStatusCmd,
		sessionEndCmd, sessionShowCmd, sessionListCmd, sessionWatchCmd)
	rootCmd.AddCommand(sessionCmd)
}

type startResult struct {
	SessionID   string `json:"session_id" yaml:"session_id"`
	ProjectPath string `json:"project_path" yaml:"project_path"`
}

type entropyResult struct {
	SessionID    string  `json:"session_id" yaml:"session_id"`
	EntropyScore float64 `json:"entropy_score" yaml:"entropy_score"`
	EntropyLevel string  `json:"entropy_level" yaml:"entropy_level"`
}

func newEntropyResult(id string, score float64) *entropyResult {
	return &entropyResult{SessionID: id, EntropyScore: score, EntropyLevel: session.ClassifyEntropy(score)}
}

func projectArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "."
}

// withSessions opens the store for the duration of fn.
func withSessions(fn func(*session.Tracker) error) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(session.NewTracker(db, logger))
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	return withSessions(func(t *session.Tracker) error {
		id, err := t.StartSession(cmd.Context(), projectArg(args, 0), sessionAITool)
		if err != nil {
			return err
		}
		s, err := t.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printResult(cmd, &startResult{SessionID: id, ProjectPath: s.ProjectPath})
	})
}

func runSessionUpdate(cmd *cobra.Command, args []string) error {
	return withSessions(func(t *session.Tracker) error {
		score, err := t.UpdateSession(cmd.Context(), args[0], sessionFiles, sessionChanges, sessionViolations)
		if err != nil {
			return err
		}
		return printResult(cmd, newEntropyResult(args[0], score))
	})
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	return withSessions(func(t *session.Tracker) error {
		score, err := t.GetEntropy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, newEntropyResult(args[0], score))
	})
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	return withSessions(func(t *session.Tracker) error {
		summary, err := t.EndSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, summary)
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return withSessions(func(t *session.Tracker) error {
		s, err := t.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("no session with id %s", args[0])
		}
		return printResult(cmd, s)
	})
}

func runSessionList(cmd *cobra.Command, args []string) error {
	project := ""
	if len(args) > 0 {
		project = args[0]
	}
	return withSessions(func(t *session.Tracker) error {
		list, err := t.ListSessions(cmd.Context(), project, sessionLimit)
		if err != nil {
			return err
		}
		if list == nil {
			list = []session.Session{}
		}
		return printResult(cmd, list)
	})
}

func runSessionWatch(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withSessions(func(t *session.Tracker) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := t.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("no session with id %s", id)
		}
		if s.Closed() {
			return fmt.Errorf("session %s has already ended", id)
		}

		wcfg := watcher.Config{
			DebounceMs:     cfg.Watcher.DebounceMs,
			IgnorePatterns: cfg.Watcher.IgnorePatterns,
			SkipDirs:       cfg.Metrics.SkipDirs,
		}
		if watchDebounceMs > 0 {
			wcfg.DebounceMs = watchDebounceMs
		}

		root := s.ProjectPath
		if len(args) > 1 {
			root = args[1]
		}
		feed := watcher.SessionFeed(t, id, logger, func(files []string, score float64) {
			out, err := FormatResponse(newEntropyResult(id, score), OutputFormat(formatFlag))
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
		})
		w, err := watcher.New(root, wcfg, logger, feed)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for session %s (Ctrl+C to stop)\n", w.Root(), id)

		<-ctx.Done()
		return w.Stop()
	})
}

