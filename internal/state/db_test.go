package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/verifix-dev/verifix/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestRecordAndQueryRuns(t *testing.T) {
	db := openTestDB(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	run := RunRecord{
		ID:         "run-1",
		Artifact:   "src/stack.rs",
		State:      "VERIFIED",
		Score:      models.NewScore(5, 0),
		Rounds:     2,
		TrialCount: 4,
		Elapsed:    90 * time.Second,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}
	trials := []*models.Trial{
		{ID: 1, Score: models.CompilationFailure(), CreatedAt: started},
		{ID: 2, Score: models.NewScore(3, 2), CreatedAt: started.Add(30 * time.Second)},
		{ID: 3, Score: models.NewScore(5, 0), Path: "t3.rs", CreatedAt: started.Add(60 * time.Second)},
	}

	if err := db.RecordRun(run, trials); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := db.RecentRuns(5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != "run-1" || got.State != "VERIFIED" || got.Score != models.NewScore(5, 0) {
		t.Errorf("run = %+v", got)
	}
	if got.Elapsed != 90*time.Second || got.Rounds != 2 {
		t.Errorf("run bookkeeping = elapsed %s, rounds %d", got.Elapsed, got.Rounds)
	}

	stored, err := db.RunTrials("run-1")
	if err != nil {
		t.Fatalf("RunTrials: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d trials, want 3", len(stored))
	}
	if !stored[0].Score.CompilationError {
		t.Error("trial 1 lost its compilation-error flag")
	}
	if stored[2].Path != "t3.rs" {
		t.Errorf("trial 3 path = %q", stored[2].Path)
	}
}

func TestRecentRuns_OrderAndLimit(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := RunRecord{
			ID:         id,
			Artifact:   "x.rs",
			State:      "NO_PROGRESS",
			Score:      models.NewScore(i, 1),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := db.RecordRun(run, nil); err != nil {
			t.Fatalf("RecordRun %s: %v", id, err)
		}
	}

	runs, err := db.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %+v, want c then b", runs)
	}
}
