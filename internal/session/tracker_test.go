package session

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"vibesrails/internal/errors"
	"vibesrails/internal/slogutil"
	"vibesrails/internal/storage"
	"vibesrails/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: testutil.Epoch}
	return NewTracker(testutil.OpenDB(t), nil, WithClock(clock.Now)), clock
}

func TestStartSession(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	project := t.TempDir()

	id, err := tracker.StartSession(ctx, project, "claude")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("id %q is not a UUID", id)
	}

	s, err := tracker.GetSession(ctx, id)
	if err != nil || s == nil {
		t.Fatalf("GetSession = %+v, %v", s, err)
	}
	if s.EntropyScore != 0 || s.TotalChangesLOC != 0 || s.ViolationsCount != 0 || len(s.FilesModified) != 0 {
		t.Errorf("new session should be zeroed: %+v", s)
	}
	if s.AITool == nil || *s.AITool != "claude" {
		t.Errorf("AITool = %v, want claude", s.AITool)
	}
	if s.Closed() {
		t.Error("new session should be open")
	}

	other, _ := tracker.StartSession(ctx, project, "")
	if other == id {
		t.Error("session ids should be unique")
	}
	s2, _ := tracker.GetSession(ctx, other)
	if s2.AITool != nil {
		t.Errorf("empty ai tool should be stored as null, got %q", *s2.AITool)
	}
}

func TestGetSession_Unknown(t *testing.T) {
	tracker, _ := newTestTracker(t)

	s, err := tracker.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession should not fail for unknown ids: %v", err)
	}
	if s != nil {
		t.Errorf("GetSession(unknown) = %+v, want nil", s)
	}
}

func TestUnknownSessionHardFails(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.UpdateSession(ctx, "nope", []string{"a.go"}, 1, 0)
	if !errors.HasCode(err, errors.SessionNotFound) {
		t.Errorf("UpdateSession error = %v, want SESSION_NOT_FOUND", err)
	}
	_, err = tracker.GetEntropy(ctx, "nope")
	if !errors.HasCode(err, errors.SessionNotFound) {
		t.Errorf("GetEntropy error = %v, want SESSION_NOT_FOUND", err)
	}
	_, err = tracker.EndSession(ctx, "nope")
	if !errors.HasCode(err, errors.SessionNotFound) {
		t.Errorf("EndSession error = %v, want SESSION_NOT_FOUND", err)
	}
}

func TestUpdateSession_UnionAndTotals(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	id, _ := tracker.StartSession(ctx, t.TempDir(), "")

	if _, err := tracker.UpdateSession(ctx, id, []string{"a", "b"}, 10, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.UpdateSession(ctx, id, []string{"a", "c"}, 5, 2); err != nil {
		t.Fatal(err)
	}

	s, _ := tracker.GetSession(ctx, id)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(s.FilesModified, want) {
		t.Errorf("FilesModified = %v, want %v", s.FilesModified, want)
	}
	if s.TotalChangesLOC != 15 || s.ViolationsCount != 3 {
		t.Errorf("totals = %d LOC, %d violations; want 15, 3", s.TotalChangesLOC, s.ViolationsCount)
	}

	again, _ := tracker.GetSession(ctx, id)
	if !reflect.DeepEqual(s, again) {
		t.Errorf("GetSession is not stable: %+v vs %+v", s, again)
	}
}

func TestUpdateSession_RejectsNegativeDeltas(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	id, _ := tracker.StartSession(ctx, t.TempDir(), "")

	_, err := tracker.UpdateSession(ctx, id, nil, -1, 0)
	if !errors.HasCode(err, errors.InvalidInput) {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestUpdateSession_RejectsOverflow(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	id, _ := tracker.StartSession(ctx, t.TempDir(), "")

	if _, err := tracker.UpdateSession(ctx, id, nil, math.MaxInt, math.MaxInt); err != nil {
		t.Fatalf("update to the maximum failed: %v", err)
	}
	for _, delta := range [][2]int{{1, 0}, {0, 1}} {
		_, err := tracker.UpdateSession(ctx, id, []string{"a.go"}, delta[0], delta[1])
		if !errors.HasCode(err, errors.InvalidInput) {
			t.Errorf("delta %v: error = %v, want INVALID_INPUT", delta, err)
		}
	}

	s, err := tracker.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalChangesLOC != math.MaxInt || s.ViolationsCount != math.MaxInt {
		t.Errorf("totals changed to %d/%d", s.TotalChangesLOC, s.ViolationsCount)
	}
	if len(s.FilesModified) != 0 {
		t.Errorf("rejected update must not record files, got %v", s.FilesModified)
	}

	// Zero deltas stay valid at the ceiling.
	if _, err := tracker.UpdateSession(ctx, id, nil, 0, 0); err != nil {
		t.Errorf("zero update at the ceiling failed: %v", err)
	}
}

func TestGetEntropy_LiveDuration(t *testing.T) {
	tracker, clock := newTestTracker(t)
	ctx := context.Background()
	id, _ := tracker.StartSession(ctx, t.TempDir(), "")

	before, err := tracker.GetEntropy(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(20 * time.Minute)
	after, err := tracker.GetEntropy(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if before != 0 || math.Abs(after-0.1) > 0.001 {
		t.Errorf("entropy before=%v after=%v, want 0 and 0.1", before, after)
	}
}

func TestSessionLifecycle(t *testing.T) {
	tracker, clock := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartSession(ctx, t.TempDir(), "cursor")
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(30 * time.Minute)
	files := make([]string, 10)
	for i := range files {
		files[i] = filepath.Join("pkg", string(rune('a'+i))+".go")
	}
	score, err := tracker.UpdateSession(ctx, id, files, 250, 5)
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if math.Abs(score-0.5) > 0.001 {
		t.Errorf("entropy = %v, want 0.50", score)
	}
	if ClassifyEntropy(score) != LevelWarning {
		t.Errorf("level = %s, want warning", ClassifyEntropy(score))
	}

	summary, err := tracker.EndSession(ctx, id)
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if summary.EntropyScore != score {
		t.Errorf("summary entropy = %v, want %v", summary.EntropyScore, score)
	}
	if summary.EntropyLevel != ClassifyEntropy(summary.EntropyScore) {
		t.Errorf("summary level %s does not match score", summary.EntropyLevel)
	}
	if summary.DurationMinutes != 30 || summary.FilesModifiedCount != 10 {
		t.Errorf("unexpected summary %+v", summary)
	}

	s, _ := tracker.GetSession(ctx, id)
	if !s.Closed() || *s.EndTime != summary.EndTime {
		t.Errorf("session not marked closed: %+v", s)
	}
}

func TestClosedSession(t *testing.T) {
	tracker, clock := newTestTracker(t)
	ctx := context.Background()
	id, _ := tracker.StartSession(ctx, t.TempDir(), "")

	clock.Advance(30 * time.Minute)
	summary, err := tracker.EndSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	_, err = tracker.UpdateSession(ctx, id, []string{"x"}, 1, 1)
	if !errors.HasCode(err, errors.SessionClosed) {
		t.Errorf("UpdateSession after end = %v, want SESSION_CLOSED", err)
	}
	_, err = tracker.EndSession(ctx, id)
	if !errors.HasCode(err, errors.SessionClosed) {
		t.Errorf("second EndSession = %v, want SESSION_CLOSED", err)
	}

	// Duration stops growing once the session has ended.
	clock.Advance(2 * time.Hour)
	score, err := tracker.GetEntropy(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if score != summary.EntropyScore {
		t.Errorf("GetEntropy after end = %v, want %v", score, summary.EntropyScore)
	}
}

func TestListSessions(t *testing.T) {
	tracker, clock := newTestTracker(t)
	ctx := context.Background()
	projA, projB := t.TempDir(), t.TempDir()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := tracker.StartSession(ctx, projA, "")
		ids = append(ids, id)
		clock.Advance(time.Minute)
	}
	if _, err := tracker.StartSession(ctx, projB, ""); err != nil {
		t.Fatal(err)
	}

	list, err := tracker.ListSessions(ctx, projA, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != ids[2] {
		t.Errorf("newest session should come first, got %s", list[0].ID)
	}

	all, _ := tracker.ListSessions(ctx, "", 0)
	if len(all) != 4 {
		t.Errorf("ListSessions(all) = %d, want 4", len(all))
	}
}

func TestConcurrentWriters(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	project := t.TempDir()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := storage.Open(dbPath, slogutil.NewDiscardLogger())
			if err != nil {
				errs <- err
				return
			}
			defer db.Close()

			tracker := NewTracker(db, nil)
			for i := 0; i < 10; i++ {
				id, err := tracker.StartSession(ctx, project, "")
				if err != nil {
					errs <- err
					return
				}
				if _, err := tracker.UpdateSession(ctx, id, []string{"a.go"}, 10, 1); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent writer failed: %v", err)
	}

	db, err := storage.Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	list, err := NewTracker(db, nil).ListSessions(ctx, project, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 20 {
		t.Errorf("stored sessions = %d, want 20", len(list))
	}
}
