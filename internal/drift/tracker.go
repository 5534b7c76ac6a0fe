// Package drift records project metric snapshots and measures how fast the
// structure of a project changes between them.
package drift

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"vibesrails/internal/errors"
	"vibesrails/internal/metrics"
	"vibesrails/internal/paths"
	"vibesrails/internal/storage"
)

// HistoryWindow is how many recent snapshots ComputeVelocity loads.
const HistoryWindow = 50

// Snapshot is one stored, immutable set of project metrics.
type Snapshot struct {
	ID          int64                  `json:"id" yaml:"id"`
	ProjectPath string                 `json:"project_path" yaml:"project_path"`
	SessionID   string                 `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Timestamp   string                 `json:"timestamp" yaml:"timestamp"`
	Metrics     metrics.ProjectMetrics `json:"metrics" yaml:"metrics"`
}

// SnapshotResult is returned by TakeSnapshot. Error is set instead of the
// other fields when the path is not a directory.
type SnapshotResult struct {
	ID          int64                   `json:"id,omitempty" yaml:"id,omitempty"`
	ProjectPath string                  `json:"project_path,omitempty" yaml:"project_path,omitempty"`
	SessionID   string                  `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Timestamp   string                  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Metrics     *metrics.ProjectMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Error       string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Comparison is the derived drift between the most recent snapshots.
type Comparison struct {
	ProjectPath       string                 `json:"project_path" yaml:"project_path"`
	PreviousTimestamp string                 `json:"previous_timestamp" yaml:"previous_timestamp"`
	CurrentTimestamp  string                 `json:"current_timestamp" yaml:"current_timestamp"`
	MetricsDelta      map[string]MetricDelta `json:"metrics_delta" yaml:"metrics_delta"`
	VelocityScore     float64                `json:"velocity_score" yaml:"velocity_score"`
	VelocityLevel     string                 `json:"velocity_level" yaml:"velocity_level"`
	Trend             string                 `json:"trend" yaml:"trend"`
	ConsecutiveHigh   int                    `json:"consecutive_high" yaml:"consecutive_high"`
	ReviewRequired    bool                   `json:"review_required" yaml:"review_required"`
	SnapshotsAnalyzed int                    `json:"snapshots_analyzed" yaml:"snapshots_analyzed"`
}

// Tracker appends snapshots and computes velocity. It keeps no state besides
// its store handle, so any number of trackers may share one database.
type Tracker struct {
	db       *storage.DB
	logger   *slog.Logger
	analyzer *metrics.Analyzer
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMaxFiles bounds the metrics walk of each snapshot.
func WithMaxFiles(n int) Option {
	return func(t *Tracker) {
		t.analyzer = metrics.NewAnalyzer(metrics.Options{MaxFiles: n, Logger: t.logger})
	}
}

// WithAnalyzer sets a fully configured analyzer.
func WithAnalyzer(a *metrics.Analyzer) Option {
	return func(t *Tracker) { t.analyzer = a }
}

// NewTracker creates a drift tracker on an open store.
func NewTracker(db *storage.DB, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = db.Logger()
	}
	t := &Tracker{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.analyzer == nil {
		t.analyzer = metrics.NewAnalyzer(metrics.Options{Logger: logger})
	}
	return t
}

// TakeSnapshot aggregates the metrics of projectPath and appends them as a new
// snapshot. A path that is not a directory yields a result with Error set and
// a nil error.
func (t *Tracker) TakeSnapshot(ctx context.Context, projectPath, sessionID string) (*SnapshotResult, error) {
	info, err := os.Stat(projectPath)
	if err != nil || !info.IsDir() {
		t.logger.Debug("Snapshot skipped", "path", projectPath)
		return &SnapshotResult{Error: fmt.Sprintf("not a directory: %s", projectPath)}, nil
	}

	canonical, err := paths.CanonicalizeProject(projectPath)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput, "cannot resolve project path", err)
	}

	pm, err := t.analyzer.Aggregate(ctx, canonical)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "failed to aggregate metrics", err)
	}

	snap, err := t.appendSnapshot(ctx, canonical, sessionID, *pm)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Snapshot recorded",
		"path", canonical,
		"id", snap.ID,
		"files", pm.FileCount,
	)
	return &SnapshotResult{
		ID:          snap.ID,
		ProjectPath: snap.ProjectPath,
		SessionID:   snap.SessionID,
		Timestamp:   snap.Timestamp,
		Metrics:     pm,
	}, nil
}

func (t *Tracker) appendSnapshot(ctx context.Context, projectPath, sessionID string, pm metrics.ProjectMetrics) (*Snapshot, error) {
	blob, err := json.Marshal(pm)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "failed to encode metrics", err)
	}

	ts := storage.FormatTime(t.now())
	var sid any
	if sessionID != "" {
		sid = sessionID
	}

	res, err := t.db.ExecContext(ctx,
		`INSERT INTO drift_snapshots (file_path, session_id, timestamp, metrics_json) VALUES (?, ?, ?, ?)`,
		projectPath, sid, ts, string(blob))
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to insert snapshot", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to read snapshot id", err)
	}

	return &Snapshot{
		ID:          id,
		ProjectPath: projectPath,
		SessionID:   sessionID,
		Timestamp:   ts,
		Metrics:     pm,
	}, nil
}

// History returns up to limit snapshots of projectPath, newest first.
func (t *Tracker) History(ctx context.Context, projectPath string, limit int) ([]Snapshot, error) {
	canonical, err := paths.CanonicalizeProject(projectPath)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput, "cannot resolve project path", err)
	}
	if limit <= 0 {
		limit = HistoryWindow
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, file_path, session_id, timestamp, metrics_json
		FROM drift_snapshots
		WHERE file_path = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, canonical, limit)
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to query snapshots", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s    Snapshot
			sid  sql.NullString
			blob string
		)
		if err := rows.Scan(&s.ID, &s.ProjectPath, &sid, &s.Timestamp, &blob); err != nil {
			return nil, errors.Wrap(errors.StorageError, "failed to scan snapshot", err)
		}
		if err := json.Unmarshal([]byte(blob), &s.Metrics); err != nil {
			return nil, errors.Wrap(errors.StorageError, fmt.Sprintf("corrupt metrics in snapshot %d", s.ID), err)
		}
		s.SessionID = sid.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to iterate snapshots", err)
	}
	return out, nil
}

// ComputeVelocity compares the two most recent snapshots of projectPath.
// It returns nil, nil when fewer than two snapshots exist.
func (t *Tracker) ComputeVelocity(ctx context.Context, projectPath string) (*Comparison, error) {
	snaps, err := t.History(ctx, projectPath, HistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		return nil, nil
	}

	velocities := make([]float64, 0, len(snaps)-1)
	var deltas map[string]MetricDelta
	for i := 0; i+1 < len(snaps); i++ {
		v, d := PairVelocity(snaps[i+1].Metrics, snaps[i].Metrics)
		if i == 0 {
			deltas = d
		}
		velocities = append(velocities, v)
	}

	cmp := &Comparison{
		ProjectPath:       snaps[0].ProjectPath,
		PreviousTimestamp: snaps[1].Timestamp,
		CurrentTimestamp:  snaps[0].Timestamp,
		MetricsDelta:      deltas,
		VelocityScore:     velocities[0],
		VelocityLevel:     ClassifyVelocity(velocities[0]),
		Trend:             TrendStable,
		ConsecutiveHigh:   CountConsecutiveHigh(velocities),
		SnapshotsAnalyzed: len(snaps),
	}
	if len(velocities) >= 2 {
		cmp.Trend = ClassifyTrend(velocities[0], velocities[1])
	}
	cmp.ReviewRequired = cmp.ConsecutiveHigh >= ReviewThreshold

	if cmp.ReviewRequired {
		t.logger.Warn("Sustained drift requires review",
			"path", cmp.ProjectPath,
			"consecutive_high", cmp.ConsecutiveHigh,
			"velocity", cmp.VelocityScore,
		)
	}
	return cmp, nil
}
