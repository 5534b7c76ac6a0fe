// Package session tracks coding sessions and scores each with an entropy value
// that grows with duration, files touched, violations and changed lines.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibesrails/internal/errors"
	"vibesrails/internal/metrics"
	"vibesrails/internal/paths"
	"vibesrails/internal/storage"
)

// Session is the stored record of one coding session.
type Session struct {
	ID              string   `json:"id" yaml:"id"`
	ProjectPath     string   `json:"project_path" yaml:"project_path"`
	StartTime       string   `json:"start_time" yaml:"start_time"`
	EndTime         *string  `json:"end_time" yaml:"end_time"`
	AITool          *string  `json:"ai_tool" yaml:"ai_tool"`
	FilesModified   []string `json:"files_modified" yaml:"files_modified"`
	TotalChangesLOC int      `json:"total_changes_loc" yaml:"total_changes_loc"`
	ViolationsCount int      `json:"violations_count" yaml:"violations_count"`
	EntropyScore    float64  `json:"entropy_score" yaml:"entropy_score"`
}

// Closed reports whether EndSession has been called.
func (s *Session) Closed() bool {
	return s.EndTime != nil
}

// Summary is returned by EndSession.
type Summary struct {
	SessionID          string  `json:"session_id" yaml:"session_id"`
	ProjectPath        string  `json:"project_path" yaml:"project_path"`
	AITool             *string `json:"ai_tool" yaml:"ai_tool"`
	StartTime          string  `json:"start_time" yaml:"start_time"`
	EndTime            string  `json:"end_time" yaml:"end_time"`
	DurationMinutes    float64 `json:"duration_minutes" yaml:"duration_minutes"`
	FilesModifiedCount int     `json:"files_modified_count" yaml:"files_modified_count"`
	TotalChangesLOC    int     `json:"total_changes_loc" yaml:"total_changes_loc"`
	ViolationsCount    int     `json:"violations_count" yaml:"violations_count"`
	EntropyScore       float64 `json:"entropy_score" yaml:"entropy_score"`
	EntropyLevel       string  `json:"entropy_level" yaml:"entropy_level"`
}

// Tracker manages session rows. It holds no state besides its store handle.
type Tracker struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a session tracker on an open store.
func NewTracker(db *storage.DB, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = db.Logger()
	}
	t := &Tracker{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSession creates a session with zeroed counters and returns its id.
func (t *Tracker) StartSession(ctx context.Context, projectPath, aiTool string) (string, error) {
	canonical, err := paths.CanonicalizeProject(projectPath)
	if err != nil {
		return "", errors.Wrap(errors.InvalidInput, "cannot resolve project path", err)
	}

	id := uuid.New().String()
	var tool any
	if aiTool != "" {
		tool = aiTool
	}

	_, err = t.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_path, start_time, ai_tool, files_modified,
			total_changes_loc, violations_count, entropy_score)
		VALUES (?, ?, ?, ?, '[]', 0, 0, 0)
	`, id, canonical, storage.FormatTime(t.now()), tool)
	if err != nil {
		return "", errors.Wrap(errors.StorageError, "failed to create session", err)
	}

	t.logger.Info("Session started", "session_id", id, "project", canonical, "ai_tool", aiTool)
	return id, nil
}

// UpdateSession merges files into the session, adds the deltas to its running
// totals and returns the recomputed entropy. Unknown ids fail with
// SESSION_NOT_FOUND and ended sessions with SESSION_CLOSED.
func (t *Tracker) UpdateSession(ctx context.Context, id string, files []string, changesLOC, violations int) (float64, error) {
	if changesLOC < 0 || violations < 0 {
		return 0, errors.New(errors.InvalidInput, "changes and violations must not be negative")
	}

	var score float64
	err := t.db.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := loadSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return notFound(id)
		}
		if s.Closed() {
			return errors.Newf(errors.SessionClosed, "session %s has ended", id)
		}

		if changesLOC > math.MaxInt-s.TotalChangesLOC || violations > math.MaxInt-s.ViolationsCount {
			return errors.Newf(errors.InvalidInput, "update would overflow the totals of session %s", id)
		}

		s.FilesModified = unionFiles(s.FilesModified, files)
		s.TotalChangesLOC += changesLOC
		s.ViolationsCount += violations

		duration, err := t.durationMinutes(s, t.now())
		if err != nil {
			return err
		}
		score = CalculateEntropy(duration, len(s.FilesModified), s.ViolationsCount, s.TotalChangesLOC)

		blob, err := json.Marshal(s.FilesModified)
		if err != nil {
			return errors.Wrap(errors.InternalError, "failed to encode files", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET files_modified = ?, total_changes_loc = ?, violations_count = ?, entropy_score = ?
			WHERE id = ?
		`, string(blob), s.TotalChangesLOC, s.ViolationsCount, score, id)
		if err != nil {
			return errors.Wrap(errors.StorageError, "failed to update session", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	t.logger.Debug("Session updated", "session_id", id, "entropy", score)
	return score, nil
}

// GetEntropy recomputes the entropy of a session against the current time
// without persisting it. Ended sessions are measured up to their end time.
func (t *Tracker) GetEntropy(ctx context.Context, id string) (float64, error) {
	s, err := loadSession(ctx, t.db, id)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, notFound(id)
	}
	duration, err := t.durationMinutes(s, t.now())
	if err != nil {
		return 0, err
	}
	return CalculateEntropy(duration, len(s.FilesModified), s.ViolationsCount, s.TotalChangesLOC), nil
}

// EndSession records the end time, persists the final entropy and returns a
// summary.
func (t *Tracker) EndSession(ctx context.Context, id string) (*Summary, error) {
	var summary *Summary
	err := t.db.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := loadSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return notFound(id)
		}
		if s.Closed() {
			return errors.Newf(errors.SessionClosed, "session %s has already ended", id)
		}

		end := t.now()
		duration, err := t.durationMinutes(s, end)
		if err != nil {
			return err
		}
		score := CalculateEntropy(duration, len(s.FilesModified), s.ViolationsCount, s.TotalChangesLOC)
		endStr := storage.FormatTime(end)

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET end_time = ?, entropy_score = ? WHERE id = ?`,
			endStr, score, id)
		if err != nil {
			return errors.Wrap(errors.StorageError, "failed to end session", err)
		}

		summary = &Summary{
			SessionID:          s.ID,
			ProjectPath:        s.ProjectPath,
			AITool:             s.AITool,
			StartTime:          s.StartTime,
			EndTime:            endStr,
			DurationMinutes:    metrics.Round(duration, 2),
			FilesModifiedCount: len(s.FilesModified),
			TotalChangesLOC:    s.TotalChangesLOC,
			ViolationsCount:    s.ViolationsCount,
			EntropyScore:       score,
			EntropyLevel:       ClassifyEntropy(score),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("Session ended",
		"session_id", id,
		"entropy", summary.EntropyScore,
		"level", summary.EntropyLevel,
	)
	return summary, nil
}

// GetSession returns the stored session, or nil when the id is unknown.
func (t *Tracker) GetSession(ctx context.Context, id string) (*Session, error) {
	return loadSession(ctx, t.db, id)
}

// ListSessions returns up to limit sessions, newest first. An empty
// projectPath lists every project.
func (t *Tracker) ListSessions(ctx context.Context, projectPath string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if projectPath != "" {
		canonical, err := paths.CanonicalizeProject(projectPath)
		if err != nil {
			return nil, errors.Wrap(errors.InvalidInput, "cannot resolve project path", err)
		}
		query += ` WHERE project_path = ?`
		args = append(args, canonical)
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to list sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to iterate sessions", err)
	}
	return out, nil
}

// durationMinutes measures from start to at, capped at the end time of a
// closed session.
func (t *Tracker) durationMinutes(s *Session, at time.Time) (float64, error) {
	start, err := storage.ParseTime(s.StartTime)
	if err != nil {
		return 0, errors.Wrap(errors.StorageError, "corrupt session start time", err)
	}
	if s.EndTime != nil {
		end, err := storage.ParseTime(*s.EndTime)
		if err != nil {
			return 0, errors.Wrap(errors.StorageError, "corrupt session end time", err)
		}
		if end.Before(at) {
			at = end
		}
	}
	d := at.Sub(start).Minutes()
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

const sessionColumns = `id, project_path, start_time, end_time, ai_tool, files_modified,
	total_changes_loc, violations_count, entropy_score`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func loadSession(ctx context.Context, q queryRower, id string) (*Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		endTime sql.NullString
		aiTool  sql.NullString
		files   string
	)
	err := row.Scan(&s.ID, &s.ProjectPath, &s.StartTime, &endTime, &aiTool, &files,
		&s.TotalChangesLOC, &s.ViolationsCount, &s.EntropyScore)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "failed to read session", err)
	}
	if endTime.Valid {
		s.EndTime = &endTime.String
	}
	if aiTool.Valid {
		s.AITool = &aiTool.String
	}
	if err := json.Unmarshal([]byte(files), &s.FilesModified); err != nil {
		return nil, errors.Wrap(errors.StorageError, "corrupt files_modified for session "+s.ID, err)
	}
	if s.FilesModified == nil {
		s.FilesModified = []string{}
	}
	return &s, nil
}

func notFound(id string) error {
	return errors.Newf(errors.SessionNotFound, "session not found: %s", id).
		WithDetails(map[string]string{"session_id": id})
}

// unionFiles merges added into existing, dropping empty names, and returns a
// sorted set.
func unionFiles(existing, added []string) []string {
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, f := range existing {
		set[f] = struct{}{}
	}
	for _, f := range added {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
