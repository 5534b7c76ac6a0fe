package watcher

import (
	"context"
	"log/slog"

	"vibesrails/internal/session"
)

// SessionUpdater is the part of the session tracker the feed needs.
type SessionUpdater interface {
	UpdateSession(ctx context.Context, id string, files []string, changesLOC, violations int) (float64, error)
}

var _ SessionUpdater = (*session.Tracker)(nil)

// SessionFeed returns a handler that records each batch as modified files of
// the session. onScore, when set, receives the new entropy.
func SessionFeed(tracker SessionUpdater, sessionID string, logger *slog.Logger, onScore func(files []string, score float64)) ChangeHandler {
	return func(ctx context.Context, files []string) {
		score, err := tracker.UpdateSession(ctx, sessionID, files, 0, 0)
		if err != nil {
			logger.Error("Failed to update session", "session_id", sessionID, "error", err)
			return
		}
		logger.Debug("Session updated from watcher",
			"session_id", sessionID,
			"files", len(files),
			"entropy", score,
			"level", session.ClassifyEntropy(score),
		)
		if onScore != nil {
			onScore(files, score)
		}
	}
}
