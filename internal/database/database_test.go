package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"anidl/internal/core"
)

func openTestDB(t *testing.T) *Recorder {
	t.Helper()
	db, applied, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if len(applied) != 1 || applied[0] != "001_run_history" {
		t.Fatalf("applied = %v", applied)
	}
	again, err := RunMigrations(db)
	if err != nil || len(again) != 0 {
		t.Fatalf("second migration pass applied %v, err %v", again, err)
	}
	return NewRecorder(db)
}

func TestRecordRunAndReadBack(t *testing.T) {
	rec := openTestDB(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := core.RunSummary{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Minute),
		Cancelled:  true,
		Results: []core.Result{
			{Name: "Beta", Episode: 4, Filename: "Beta_Ep_04.mkv", Path: "/m/Beta/Beta_Ep_04.mkv", Outcome: core.OutcomeFinished, Download: 2 * time.Second, Conversion: 90 * time.Second},
			{Name: "Alpha", Outcome: core.OutcomeSkipped, Reason: "episode 2 not released yet"},
			{Name: "Gamma", Episode: 1, Outcome: core.OutcomeCancelled, Err: core.ErrCancelled},
			{Name: "Delta", Episode: 9, Outcome: core.OutcomeFailed, Err: errors.New("download failed: 404")},
		},
	}
	if err := rec.RecordRun(summary); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	run, err := rec.Runs().GetByID("run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !run.Cancelled || run.FinishedCount != 1 || run.FailedCount != 1 || run.SkippedCount != 1 || run.CancelledCount != 1 {
		t.Fatalf("run = %+v", run)
	}
	if !run.StartedAt.Equal(start) {
		t.Fatalf("started_at = %v", run.StartedAt)
	}

	results, err := rec.Runs().Results("run-1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 4 || results[0].Series != "Alpha" || results[1].Series != "Beta" {
		t.Fatalf("results = %+v", results)
	}
	beta := results[1]
	if beta.Path == nil || *beta.Path != "/m/Beta/Beta_Ep_04.mkv" || beta.ConversionSeconds != 90 {
		t.Fatalf("beta = %+v", beta)
	}
	if results[0].Error != nil || results[0].Reason == nil {
		t.Fatalf("alpha = %+v", results[0])
	}
	if delta := results[2]; delta.Error == nil || *delta.Error != "download failed: 404" {
		t.Fatalf("delta = %+v", delta)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	rec := openTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		summary := core.RunSummary{ID: id, StartedAt: start, FinishedAt: start.Add(time.Minute),
			Results: []core.Result{{Name: "Show", Outcome: core.OutcomeFinished}}}
		if err := rec.RecordRun(summary); err != nil {
			t.Fatalf("RecordRun %s: %v", id, err)
		}
	}

	runs, err := rec.Runs().List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("runs = %+v", runs)
	}

	history, err := rec.Runs().SeriesHistory("Show", 10)
	if err != nil || len(history) != 3 || history[0].RunID != "new" {
		t.Fatalf("history = %+v, err %v", history, err)
	}

	n, err := rec.Runs().Prune(base.Add(36 * time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("Prune removed %d, err %v", n, err)
	}
	history, err = rec.Runs().SeriesHistory("Show", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("results of pruned runs survived: %+v", history)
	}
}
